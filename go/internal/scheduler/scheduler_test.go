package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/gavel/go/internal/models"
	"github.com/mcdev12/gavel/go/internal/scheduler"
	"github.com/mcdev12/gavel/go/internal/sequencer"
	"github.com/mcdev12/gavel/go/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tickRecorder struct {
	mu    sync.Mutex
	ticks map[uuid.UUID]int
}

func (r *tickRecorder) TimerTick(_ context.Context, a *models.Auction, remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ticks == nil {
		r.ticks = make(map[uuid.UUID]int)
	}
	r.ticks[a.ID] = remaining
}

func TestTickAdvancesThroughAuction(t *testing.T) {
	ctx := context.Background()
	f := testutil.New(t)
	i1 := f.Item(t, "First", "100", "10")
	i2 := f.Item(t, "Second", "100", "10")
	a := f.StartedAuction(t, i1, i2)
	winner := f.Bid(t, i1, f.Alice, "110")

	rec := &tickRecorder{}
	s := scheduler.New(f.Sequencer, rec, f.Clock, scheduler.Config{Workers: 2})

	res, err := s.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Active)
	assert.Equal(t, 0, res.Expired)
	assert.Equal(t, 300, rec.ticks[a.ID])

	f.Clock.Advance(5*time.Minute + time.Second)
	res, err = s.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Advanced)

	got, err := f.Sequencer.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, i2.ID, *got.CurrentItemID)
	assert.Equal(t, f.Clock.Now().Add(5*time.Minute), *got.CurrentItemDeadline)

	f.Clock.Advance(5*time.Minute + time.Second)
	res, err = s.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Advanced)

	got, err = f.Sequencer.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AuctionStatusCompleted, got.Status)
	assert.Nil(t, got.CurrentItemID)

	bid, err := f.Ledger.GetBid(ctx, winner.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BidStatusWon, bid.Status)

	res, err = s.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, scheduler.TickResult{}, res, "no active auctions is a no-op")
}

func TestTickRespectsExtension(t *testing.T) {
	ctx := context.Background()
	f := testutil.New(t)
	item := f.Item(t, "Only", "100", "10")
	a := f.StartedAuction(t, item)
	s := scheduler.New(f.Sequencer, nil, f.Clock, scheduler.Config{})

	_, err := f.Sequencer.Extend(ctx, a.ID, time.Minute)
	require.NoError(t, err)
	f.Clock.Advance(5*time.Minute + time.Second)

	res, err := s.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Expired)

	got, err := f.Sequencer.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AuctionStatusActive, got.Status)
}

type flakySequencer struct {
	auctions []models.Auction
	listErr  error
	failFor  uuid.UUID

	mu       sync.Mutex
	advanced []uuid.UUID
}

func (f *flakySequencer) ListActive(context.Context) ([]models.Auction, error) {
	return f.auctions, f.listErr
}

func (f *flakySequencer) AdvanceIfExpired(_ context.Context, auctionID, _ uuid.UUID) (*sequencer.Transition, error) {
	if auctionID == f.failFor {
		return nil, errors.New("connection refused")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.advanced = append(f.advanced, auctionID)
	return &sequencer.Transition{Auction: &models.Auction{ID: auctionID, Status: models.AuctionStatusCompleted}, Completed: true}, nil
}

func expiredAuction(now time.Time) models.Auction {
	item := uuid.New()
	deadline := now.Add(-time.Second)
	return models.Auction{ID: uuid.New(), Status: models.AuctionStatusActive, CurrentItemID: &item, CurrentItemDeadline: &deadline}
}

func TestTickIsolatesFailures(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testutil.Epoch)
	auctions := []models.Auction{expiredAuction(clock.Now()), expiredAuction(clock.Now()), expiredAuction(clock.Now())}
	seq := &flakySequencer{auctions: auctions, failFor: auctions[1].ID}
	s := scheduler.New(seq, nil, clock, scheduler.Config{Workers: 2})

	res, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Expired)
	assert.Equal(t, 2, res.Advanced)
	assert.Equal(t, 1, res.Failed)
	assert.ElementsMatch(t, []uuid.UUID{auctions[0].ID, auctions[2].ID}, seq.advanced)
}

func TestTickReturnsListError(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testutil.Epoch)
	seq := &flakySequencer{listErr: errors.New(`relation "auctions" does not exist`)}
	s := scheduler.New(seq, nil, clock, scheduler.Config{})

	_, err := s.Tick(context.Background())
	assert.Error(t, err)
}

func TestRunSurvivesStoreErrorsAndStops(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testutil.Epoch)
	seq := &flakySequencer{listErr: errors.New("store not ready")}
	s := scheduler.New(seq, nil, clock, scheduler.Config{Interval: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Second)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
