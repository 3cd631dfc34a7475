package main

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/gavel/go/internal/audit"
	"github.com/mcdev12/gavel/go/internal/dbconfig"
	"github.com/mcdev12/gavel/go/internal/ledger"
	"github.com/mcdev12/gavel/go/internal/sequencer"
	"github.com/mcdev12/gavel/go/internal/store/memstore"
	"github.com/mcdev12/gavel/go/internal/users"
	"github.com/rs/zerolog/log"
)

// Repositories is the persistent store, either Postgres or in-memory.
type Repositories struct {
	Bids     ledger.BidRepository
	Auctions sequencer.AuctionRepository
	Users    users.UsersRepository
	Audit    audit.AuditRepository

	close func()
}

// Close releases the store's connections.
func (r *Repositories) Close() {
	if r.close != nil {
		r.close()
	}
}

func setupStore(ctx context.Context, cfg *Config, clock clockwork.Clock) (*Repositories, error) {
	if cfg.Store == storeMemory {
		return setupMemoryStore(ctx, cfg, clock)
	}

	dbCfg := dbconfig.NewConfigFromEnv()
	pool, err := dbconfig.Open(ctx, dbCfg)
	if err != nil {
		return nil, err
	}
	if err := dbconfig.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &Repositories{
		Bids:     ledger.NewRepository(pool),
		Auctions: sequencer.NewRepository(pool),
		Users:    users.NewRepository(pool),
		Audit:    audit.NewRepository(pool),
		close:    pool.Close,
	}, nil
}

func setupMemoryStore(ctx context.Context, cfg *Config, clock clockwork.Clock) (*Repositories, error) {
	store := memstore.New()
	if cfg.SeedPath != "" {
		seed, err := memstore.LoadSeedFile(cfg.SeedPath)
		if err != nil {
			return nil, err
		}
		if err := store.Apply(ctx, seed, clock.Now()); err != nil {
			return nil, fmt.Errorf("failed to apply seed: %w", err)
		}
		log.Info().
			Str("path", cfg.SeedPath).
			Int("users", len(seed.Users)).
			Int("items", len(seed.Items)).
			Int("auctions", len(seed.Auctions)).
			Msg("loaded seed data")
	}
	log.Warn().Msg("using in-memory store, data is lost on restart")

	return &Repositories{
		Bids:     store,
		Auctions: store,
		Users:    store,
		Audit:    store,
	}, nil
}
