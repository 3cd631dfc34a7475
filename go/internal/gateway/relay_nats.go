package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// JetStreamRelayConfig holds configuration for the JetStream relay
type JetStreamRelayConfig struct {
	URL           string
	StreamName    string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
	MaxAge        time.Duration // broadcasts are only useful while live
	Replicas      int
}

// DefaultJetStreamRelayConfig returns default JetStream relay configuration
func DefaultJetStreamRelayConfig() JetStreamRelayConfig {
	return JetStreamRelayConfig{
		URL:           nats.DefaultURL,
		StreamName:    "AUCTION_EVENTS",
		SubjectPrefix: "auction.events",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
		MaxAge:        10 * time.Minute,
		Replicas:      1,
	}
}

// JetStreamRelay publishes broadcasts to a stream and reads them back with
// one ordered consumer per instance, which preserves publish order.
type JetStreamRelay struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamRelayConfig
}

// NewJetStreamRelay connects to NATS and makes sure the stream exists.
func NewJetStreamRelay(ctx context.Context, cfg JetStreamRelayConfig) (*JetStreamRelay, error) {
	opts := []nats.Option{
		nats.Name("gavel-relay"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	r := &JetStreamRelay{nc: nc, js: js, config: cfg}
	if err := r.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return r, nil
}

func (r *JetStreamRelay) ensureStream(ctx context.Context) error {
	sc := jetstream.StreamConfig{
		Name:        r.config.StreamName,
		Description: "Auction broadcasts relayed between gateway instances",
		Subjects:    []string{r.config.SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      r.config.MaxAge,
		Storage:     jetstream.MemoryStorage,
		Replicas:    r.config.Replicas,
	}

	if _, err := r.js.CreateOrUpdateStream(ctx, sc); err != nil {
		return fmt.Errorf("create or update stream: %w", err)
	}
	log.Info().Str("stream", r.config.StreamName).Msg("JetStream relay stream ready")
	return nil
}

func (r *JetStreamRelay) subject(b Broadcast) string {
	if b.UserID != nil {
		return fmt.Sprintf("%s.user.%s", r.config.SubjectPrefix, b.UserID)
	}
	return fmt.Sprintf("%s.room.%s", r.config.SubjectPrefix, b.Room)
}

func (r *JetStreamRelay) Publish(ctx context.Context, b Broadcast) error {
	data, err := encodeBroadcast(b)
	if err != nil {
		return err
	}
	_, err = r.js.PublishMsg(ctx, &nats.Msg{
		Subject: r.subject(b),
		Data:    data,
		Header: nats.Header{
			"Event-Type": []string{string(b.Event.Type)},
			"Origin":     []string{b.Origin},
		},
	}, jetstream.WithExpectStream(r.config.StreamName))
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}
	return nil
}

func (r *JetStreamRelay) Subscribe(ctx context.Context, deliver func(Broadcast)) error {
	consumer, err := r.js.OrderedConsumer(ctx, r.config.StreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{r.config.SubjectPrefix + ".>"},
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create ordered consumer: %w", err)
	}

	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		b, err := decodeBroadcast(msg.Data())
		if err != nil {
			log.Error().Err(err).Str("subject", msg.Subject()).Msg("dropping malformed relay message")
			return
		}
		deliver(b)
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	log.Info().Str("stream", r.config.StreamName).Msg("JetStream relay consuming")
	<-ctx.Done()
	return nil
}

func (r *JetStreamRelay) Close() error {
	if r.nc != nil {
		r.nc.Close()
	}
	return nil
}
