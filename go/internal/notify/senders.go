package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// DefaultSubjectPrefix is where NATSSender publishes, one subject per kind.
const DefaultSubjectPrefix = "auction.notifications"

// LogSender writes notifications to the log. It is the sender used when no
// delivery service is configured.
type LogSender struct{}

func (LogSender) Send(_ context.Context, n Notification) error {
	log.Info().
		Str("kind", string(n.Kind)).
		Str("user_id", n.UserID.String()).
		Str("email", n.Email).
		Str("item", n.ItemName).
		Str("auction", n.AuctionName).
		Str("amount", n.Amount.StringFixed(2)).
		Msg("notification")
	return nil
}

// NATSSender hands notifications to a mail worker over NATS.
type NATSSender struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSSender creates a sender on an open connection. The connection is
// owned by the caller.
func NewNATSSender(nc *nats.Conn, prefix string) *NATSSender {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSSender{nc: nc, prefix: prefix}
}

func (s *NATSSender) Send(_ context.Context, n Notification) error {
	msg, err := s.message(n)
	if err != nil {
		return err
	}
	if err := s.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

func (s *NATSSender) message(n Notification) (*nats.Msg, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification: %w", err)
	}
	msg := nats.NewMsg(fmt.Sprintf("%s.%s", s.prefix, n.Kind))
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, n.ID.String())
	return msg, nil
}
