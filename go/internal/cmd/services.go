package main

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/gavel/go/internal/auction"
	"github.com/mcdev12/gavel/go/internal/audit"
	"github.com/mcdev12/gavel/go/internal/auth"
	"github.com/mcdev12/gavel/go/internal/gateway"
	"github.com/mcdev12/gavel/go/internal/ledger"
	"github.com/mcdev12/gavel/go/internal/notify"
	"github.com/mcdev12/gavel/go/internal/scheduler"
	"github.com/mcdev12/gavel/go/internal/sequencer"
	"github.com/mcdev12/gavel/go/internal/users"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Services holds everything main starts, serves and stops.
type Services struct {
	Issuer      *auth.Issuer
	Coordinator *auction.App
	Gateway     *gateway.Service
	Scheduler   *scheduler.Scheduler
	Notifier    *notify.Dispatcher

	natsConn *nats.Conn
}

// Close releases connections opened while wiring.
func (s *Services) Close() {
	if s.natsConn != nil {
		s.natsConn.Close()
	}
}

func setupServices(ctx context.Context, cfg *Config, repos *Repositories, clock clockwork.Clock) (*Services, error) {
	// Wire up dependency injection chain
	// Repositories → App layer → Coordinator → Gateway
	issuer, err := auth.NewIssuer(cfg.JWTSecret, auth.DefaultTTL, clock)
	if err != nil {
		return nil, err
	}

	// Sequencer and ledger; the ledger takes the sequencer as its read gate
	seqApp := sequencer.NewApp(repos.Auctions, clock, sequencer.Config{
		BiddingWindow: cfg.Auction.BiddingWindow,
	})
	ledgerApp := ledger.NewApp(repos.Bids, seqApp, clock)

	services := &Services{Issuer: issuer}

	// Notifications go to NATS when it is configured, to the log otherwise
	var sender notify.Sender = notify.LogSender{}
	if cfg.Relay.NATSURL != "" {
		nc, err := nats.Connect(cfg.Relay.NATSURL, nats.Name("gavel-notify"), nats.MaxReconnects(-1))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS for notifications: %w", err)
		}
		services.natsConn = nc
		sender = notify.NewNATSSender(nc, notify.DefaultSubjectPrefix)
	}
	services.Notifier = notify.NewDispatcher(sender, notify.Config{
		QueueSize: cfg.Notifications.QueueSize,
		Workers:   cfg.Notifications.Workers,
	})

	// Coordinator registers itself as the ledger and sequencer event sink
	coordinator := auction.NewApp(auction.Deps{
		Ledger:    ledgerApp,
		Sequencer: seqApp,
		Users:     users.NewApp(repos.Users),
		Audit:     audit.NewApp(repos.Audit, clock),
		Notifier:  services.Notifier,
		Tokens:    issuer,
	}, auction.Config{
		AntiSnipeWindow:    cfg.Auction.AntiSnipeWindow,
		AntiSnipeExtension: cfg.Auction.AntiSnipeExtension,
	})
	services.Coordinator = coordinator

	relay, err := setupRelay(ctx, cfg)
	if err != nil {
		services.Close()
		return nil, err
	}
	services.Gateway = gateway.NewService(gateway.DefaultConfig(), coordinator, coordinator, relay)
	coordinator.SetBroadcaster(services.Gateway)

	services.Scheduler = scheduler.New(seqApp, coordinator, clock, scheduler.Config{
		Interval: cfg.Scheduler.Interval,
		Workers:  cfg.Scheduler.Workers,
	})
	return services, nil
}

func setupRelay(ctx context.Context, cfg *Config) (gateway.Relay, error) {
	switch cfg.Relay.Kind {
	case relayNATS:
		relayCfg := gateway.DefaultJetStreamRelayConfig()
		relayCfg.URL = cfg.Relay.NATSURL
		relay, err := gateway.NewJetStreamRelay(ctx, relayCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create NATS relay: %w", err)
		}
		log.Info().Str("url", relayCfg.URL).Str("stream", relayCfg.StreamName).Msg("using NATS JetStream relay")
		return relay, nil
	case relayRedis:
		relay, err := gateway.NewRedisRelay(ctx, cfg.Relay.RedisAddr, cfg.Relay.RedisPassword, cfg.Relay.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis relay: %w", err)
		}
		log.Info().Str("addr", cfg.Relay.RedisAddr).Msg("using Redis relay")
		return relay, nil
	default:
		log.Info().Msg("cross-instance relay disabled")
		return nil, nil
	}
}
