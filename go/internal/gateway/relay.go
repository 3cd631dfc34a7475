package gateway

import (
	"context"
	"encoding/json"
	"fmt"
)

// Relay carries broadcasts between instances so that viewers connected to
// one process see events committed on another.
type Relay interface {
	Publish(ctx context.Context, b Broadcast) error
	// Subscribe blocks, handing every broadcast received from the shared
	// channel to deliver, until ctx is done.
	Subscribe(ctx context.Context, deliver func(Broadcast)) error
	Close() error
}

type noopRelay struct{}

func (noopRelay) Publish(context.Context, Broadcast) error { return nil }

func (noopRelay) Subscribe(ctx context.Context, _ func(Broadcast)) error {
	<-ctx.Done()
	return nil
}

func (noopRelay) Close() error { return nil }

func encodeBroadcast(b Broadcast) ([]byte, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("marshal broadcast: %w", err)
	}
	return data, nil
}

func decodeBroadcast(data []byte) (Broadcast, error) {
	var b Broadcast
	if err := json.Unmarshal(data, &b); err != nil {
		return b, fmt.Errorf("unmarshal broadcast: %w", err)
	}
	if b.Event == nil {
		return b, fmt.Errorf("broadcast without event")
	}
	return b, nil
}
