// Package testutil builds an in-memory engine with a fake clock for tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/gavel/go/internal/ledger"
	"github.com/mcdev12/gavel/go/internal/models"
	"github.com/mcdev12/gavel/go/internal/sequencer"
	"github.com/mcdev12/gavel/go/internal/store/memstore"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// Epoch is the fake clock's starting time.
var Epoch = time.Date(2024, time.March, 1, 18, 0, 0, 0, time.UTC)

// Fixture wires the ledger and sequencer over a memstore.
type Fixture struct {
	Store     *memstore.Store
	Clock     *clockwork.FakeClock
	Sequencer *sequencer.App
	Ledger    *ledger.App

	Admin    models.User
	Alice    models.User
	Bob      models.User
	Category models.Category
}

// Option adjusts the fixture before the apps are built.
type Option func(*sequencer.Config)

// WithBiddingWindow overrides the per-item bidding window.
func WithBiddingWindow(d time.Duration) Option {
	return func(c *sequencer.Config) { c.BiddingWindow = d }
}

// New builds a fixture with an admin, two participants and one category.
func New(t testing.TB, opts ...Option) *Fixture {
	t.Helper()
	ctx := context.Background()

	cfg := sequencer.Config{}
	for _, opt := range opts {
		opt(&cfg)
	}

	store := memstore.New()
	clock := clockwork.NewFakeClockAt(Epoch)
	seq := sequencer.NewApp(store, clock, cfg)
	led := ledger.NewApp(store, seq, clock)

	f := &Fixture{
		Store:     store,
		Clock:     clock,
		Sequencer: seq,
		Ledger:    led,
		Admin:     models.User{ID: uuid.New(), Name: "Admin", Email: "admin@example.com", Role: models.UserRoleAdmin, Status: models.UserStatusActive},
		Alice:     models.User{ID: uuid.New(), Name: "Alice", Email: "alice@example.com", Role: models.UserRoleParticipant, Status: models.UserStatusActive},
		Bob:       models.User{ID: uuid.New(), Name: "Bob", Email: "bob@example.com", Role: models.UserRoleParticipant, Status: models.UserStatusActive},
		Category:  models.Category{ID: uuid.New(), Name: "Art"},
	}
	for _, u := range []models.User{f.Admin, f.Alice, f.Bob} {
		u := u
		require.NoError(t, store.CreateUser(ctx, &u))
	}
	require.NoError(t, store.CreateCategory(ctx, &f.Category))
	return f
}

// Item creates an unlinked item.
func (f *Fixture) Item(t testing.TB, name, initial, increment string) models.Item {
	t.Helper()
	item := models.Item{
		ID:               uuid.New(),
		Name:             name,
		CategoryID:       f.Category.ID,
		InitialValue:     decimal.RequireFromString(initial),
		MinimumIncrement: decimal.RequireFromString(increment),
		CreatedAt:        f.Clock.Now(),
		UpdatedAt:        f.Clock.Now(),
	}
	require.NoError(t, f.Store.CreateItem(context.Background(), &item))
	item.CurrentValue = item.InitialValue
	return item
}

// Auction creates a Scheduled auction over items.
func (f *Fixture) Auction(t testing.TB, items ...models.Item) *models.Auction {
	t.Helper()
	ids := make([]uuid.UUID, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	a, err := f.Sequencer.CreateAuction(context.Background(), sequencer.CreateAuctionRequest{
		Name:            "Evening sale",
		StartDate:       f.Clock.Now(),
		ExpectedEndDate: f.Clock.Now().Add(time.Hour),
		ItemIDs:         ids,
		CreatedBy:       f.Admin.ID,
	})
	require.NoError(t, err)
	return a
}

// StartedAuction creates and starts an auction over items.
func (f *Fixture) StartedAuction(t testing.TB, items ...models.Item) *models.Auction {
	t.Helper()
	a := f.Auction(t, items...)
	tr, err := f.Sequencer.Start(context.Background(), a.ID)
	require.NoError(t, err)
	return tr.Auction
}

// Bid places a bid and requires it to be accepted.
func (f *Fixture) Bid(t testing.TB, item models.Item, bidder models.User, amount string) *models.Bid {
	t.Helper()
	res, err := f.Ledger.PlaceBid(context.Background(), ledger.PlaceBidRequest{
		ItemID:     item.ID,
		BidderID:   bidder.ID,
		BidderName: bidder.Name,
		Amount:     decimal.RequireFromString(amount),
	})
	require.NoError(t, err)
	return res.Bid
}

// CurrentItem reloads the item from the store.
func (f *Fixture) CurrentItem(t testing.TB, id uuid.UUID) *models.Item {
	t.Helper()
	item, err := f.Store.GetItem(context.Background(), id)
	require.NoError(t, err)
	return item
}
