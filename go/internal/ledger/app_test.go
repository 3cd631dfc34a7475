package ledger_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/gavel/go/internal/apperr"
	"github.com/mcdev12/gavel/go/internal/ledger"
	"github.com/mcdev12/gavel/go/internal/models"
	"github.com/mcdev12/gavel/go/internal/sequencer"
	"github.com/mcdev12/gavel/go/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func place(f *testutil.Fixture, item models.Item, bidder models.User, amount string) (*ledger.PlaceBidResult, error) {
	return f.Ledger.PlaceBid(context.Background(), ledger.PlaceBidRequest{
		ItemID:     item.ID,
		BidderID:   bidder.ID,
		BidderName: bidder.Name,
		Amount:     decimal.RequireFromString(amount),
	})
}

func winningCount(t *testing.T, f *testutil.Fixture, itemID uuid.UUID) int {
	t.Helper()
	bids, err := f.Ledger.GetItemBids(context.Background(), itemID)
	require.NoError(t, err)
	n := 0
	for _, b := range bids {
		if b.Status == models.BidStatusWinning {
			n++
		}
	}
	return n
}

func TestBidCancelScenario(t *testing.T) {
	ctx := context.Background()
	f := testutil.New(t)
	item := f.Item(t, "Painting", "100000", "1000")
	f.StartedAuction(t, item)

	a := f.Bid(t, item, f.Alice, "101000")
	assert.Equal(t, models.BidStatusWinning, a.Status)
	assert.True(t, f.CurrentItem(t, item.ID).CurrentValue.Equal(decimal.NewFromInt(101000)))

	_, err := place(f, item, f.Bob, "101000")
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	f.Clock.Advance(time.Second)
	c := f.Bid(t, item, f.Bob, "105000")
	assert.True(t, f.CurrentItem(t, item.ID).CurrentValue.Equal(decimal.NewFromInt(105000)))

	prevA, err := f.Ledger.GetBid(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BidStatusOutbid, prevA.Status)

	res, err := f.Ledger.CancelBid(ctx, ledger.CancelBidRequest{BidID: c.ID, AdminID: f.Admin.ID})
	require.NoError(t, err)
	require.NotNil(t, res.Promoted)
	assert.Equal(t, a.ID, res.Promoted.ID)
	assert.Nil(t, res.Bid.CancelReason)

	winning, err := f.Ledger.GetWinningBid(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, winning.ID)
	assert.Equal(t, models.BidStatusWinning, winning.Status)
	assert.True(t, f.CurrentItem(t, item.ID).CurrentValue.Equal(decimal.NewFromInt(101000)))
}

func TestBidBelowMinimumIsRejected(t *testing.T) {
	f := testutil.New(t)
	item := f.Item(t, "Vase", "100", "10")
	f.StartedAuction(t, item)

	for _, amount := range []string{"0.01", "50", "100", "105", "109.99"} {
		_, err := place(f, item, f.Alice, amount)
		require.Error(t, err, amount)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), amount)
	}
	f.Bid(t, item, f.Alice, "110")

	for _, amount := range []string{"110", "115"} {
		_, err := place(f, item, f.Bob, amount)
		require.Error(t, err, amount)
	}
	_, err := place(f, item, f.Bob, "119.99")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = place(f, item, f.Bob, "110")
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	f.Bid(t, item, f.Bob, "120")
	assert.Equal(t, 1, winningCount(t, f, item.ID))
}

func TestPlaceBidRequestValidation(t *testing.T) {
	f := testutil.New(t)
	item := f.Item(t, "Vase", "100", "10")
	f.StartedAuction(t, item)

	cases := []ledger.PlaceBidRequest{
		{BidderID: f.Alice.ID, Amount: decimal.NewFromInt(200)},
		{ItemID: item.ID, Amount: decimal.NewFromInt(200)},
		{ItemID: item.ID, BidderID: f.Alice.ID, Amount: decimal.NewFromInt(-5)},
		{ItemID: item.ID, BidderID: f.Alice.ID, Amount: decimal.RequireFromString("200.001")},
	}
	for i, req := range cases {
		_, err := f.Ledger.PlaceBid(context.Background(), req)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), "case %d", i)
	}

	_, err := f.Ledger.PlaceBid(context.Background(), ledger.PlaceBidRequest{
		ItemID: uuid.New(), BidderID: f.Alice.ID, Amount: decimal.NewFromInt(200),
	})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestBidOnNonCurrentItemIsStateError(t *testing.T) {
	f := testutil.New(t)
	i1 := f.Item(t, "First", "100", "10")
	i2 := f.Item(t, "Second", "100", "10")
	f.StartedAuction(t, i1, i2)

	_, err := place(f, i2, f.Alice, "200")
	require.Error(t, err)
	assert.Equal(t, apperr.KindState, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "not currently being auctioned")

	bids, err := f.Ledger.GetItemBids(context.Background(), i2.ID)
	require.NoError(t, err)
	assert.Empty(t, bids)
	assert.True(t, f.CurrentItem(t, i2.ID).CurrentValue.Equal(decimal.NewFromInt(100)))
}

func TestBidOnScheduledAuctionOrUnlinkedItem(t *testing.T) {
	f := testutil.New(t)
	scheduled := f.Item(t, "Later", "100", "10")
	f.Auction(t, scheduled)
	loose := f.Item(t, "Loose", "100", "10")

	_, err := place(f, scheduled, f.Alice, "200")
	assert.Equal(t, apperr.KindState, apperr.KindOf(err))
	_, err = place(f, loose, f.Alice, "200")
	assert.Equal(t, apperr.KindState, apperr.KindOf(err))
}

func TestConcurrentBidsKeepOneWinner(t *testing.T) {
	f := testutil.New(t)
	item := f.Item(t, "Watch", "1000", "10")
	f.StartedAuction(t, item)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			bidder := f.Alice
			if i%2 == 0 {
				bidder = f.Bob
			}
			amount := fmt.Sprintf("%d", 1010+(i%10)*10)
			if _, err := place(f, item, bidder, amount); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			} else {
				kind := apperr.KindOf(err)
				assert.True(t, kind == apperr.KindConflict || kind == apperr.KindValidation, err.Error())
			}
		}(i)
	}
	wg.Wait()

	require.GreaterOrEqual(t, accepted, 1)
	assert.Equal(t, 1, winningCount(t, f, item.ID))

	winning, err := f.Ledger.GetWinningBid(context.Background(), item.ID)
	require.NoError(t, err)
	assert.True(t, f.CurrentItem(t, item.ID).CurrentValue.Equal(winning.Amount))

	bids, err := f.Ledger.GetItemBids(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Len(t, bids, accepted)
}

func TestCancelOnlyBidResetsToInitialValue(t *testing.T) {
	ctx := context.Background()
	f := testutil.New(t)
	item := f.Item(t, "Lamp", "500", "25")
	f.StartedAuction(t, item)
	bid := f.Bid(t, item, f.Alice, "600")

	res, err := f.Ledger.CancelBid(ctx, ledger.CancelBidRequest{BidID: bid.ID, AdminID: f.Admin.ID, Reason: " duplicate "})
	require.NoError(t, err)
	assert.Nil(t, res.Promoted)
	require.NotNil(t, res.Bid.CancelReason)
	assert.Equal(t, "duplicate", *res.Bid.CancelReason)
	assert.Equal(t, f.Admin.ID, *res.Bid.CancelledBy)
	assert.True(t, f.CurrentItem(t, item.ID).CurrentValue.Equal(decimal.NewFromInt(500)))

	_, err = f.Ledger.GetWinningBid(ctx, item.ID)
	assert.ErrorIs(t, err, ledger.ErrNoWinningBid)

	_, err = f.Ledger.CancelBid(ctx, ledger.CancelBidRequest{BidID: bid.ID, AdminID: f.Admin.ID})
	assert.Equal(t, apperr.KindState, apperr.KindOf(err))

	// Bidding resumes from the initial value.
	f.Bid(t, item, f.Bob, "525")
}

func TestCancelOutbidBidLeavesWinnerAlone(t *testing.T) {
	ctx := context.Background()
	f := testutil.New(t)
	item := f.Item(t, "Rug", "100", "10")
	f.StartedAuction(t, item)
	first := f.Bid(t, item, f.Alice, "110")
	f.Clock.Advance(time.Second)
	second := f.Bid(t, item, f.Bob, "120")

	res, err := f.Ledger.CancelBid(ctx, ledger.CancelBidRequest{BidID: first.ID, AdminID: f.Admin.ID})
	require.NoError(t, err)
	assert.Nil(t, res.Promoted)

	winning, err := f.Ledger.GetWinningBid(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, winning.ID)
	assert.True(t, f.CurrentItem(t, item.ID).CurrentValue.Equal(decimal.NewFromInt(120)))

	// With the only Outbid bid gone, cancelling the winner falls back to the initial value.
	_, err = f.Ledger.CancelBid(ctx, ledger.CancelBidRequest{BidID: second.ID, AdminID: f.Admin.ID})
	require.NoError(t, err)
	assert.True(t, f.CurrentItem(t, item.ID).CurrentValue.Equal(decimal.NewFromInt(100)))
}

func TestCancelPromotesMostRecentOutbid(t *testing.T) {
	ctx := context.Background()
	f := testutil.New(t)
	item := f.Item(t, "Clock", "100", "10")
	f.StartedAuction(t, item)
	f.Bid(t, item, f.Alice, "110")
	f.Clock.Advance(time.Second)
	middle := f.Bid(t, item, f.Bob, "130")
	f.Clock.Advance(time.Second)
	top := f.Bid(t, item, f.Alice, "150")

	res, err := f.Ledger.CancelBid(ctx, ledger.CancelBidRequest{BidID: top.ID, AdminID: f.Admin.ID})
	require.NoError(t, err)
	require.NotNil(t, res.Promoted)
	assert.Equal(t, middle.ID, res.Promoted.ID)
	assert.True(t, res.Item.CurrentValue.Equal(decimal.NewFromInt(130)))
	assert.Equal(t, 1, winningCount(t, f, item.ID))
}

func TestCancelAfterCompletionPromotesToWon(t *testing.T) {
	ctx := context.Background()
	f := testutil.New(t)
	item := f.Item(t, "Chair", "100", "10")
	a := f.StartedAuction(t, item)
	first := f.Bid(t, item, f.Alice, "110")
	f.Clock.Advance(time.Second)
	second := f.Bid(t, item, f.Bob, "120")

	_, err := f.Sequencer.End(ctx, a.ID)
	require.NoError(t, err)

	won, err := f.Ledger.GetBid(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BidStatusWon, won.Status)

	res, err := f.Ledger.CancelBid(ctx, ledger.CancelBidRequest{BidID: second.ID, AdminID: f.Admin.ID, Reason: "payment failed"})
	require.NoError(t, err)
	require.NotNil(t, res.Promoted)
	assert.Equal(t, first.ID, res.Promoted.ID)
	assert.Equal(t, models.BidStatusWon, res.Promoted.Status)
}

func TestUserBidQueries(t *testing.T) {
	ctx := context.Background()
	f := testutil.New(t)
	i1 := f.Item(t, "One", "100", "10")
	i2 := f.Item(t, "Two", "100", "10")
	a := f.StartedAuction(t, i1, i2)

	f.Bid(t, i1, f.Alice, "110")
	f.Clock.Advance(time.Second)
	f.Bid(t, i1, f.Bob, "120")
	_, err := f.Sequencer.Advance(ctx, sequencer.AdvanceRequest{AuctionID: a.ID, FromItemID: i1.ID})
	require.NoError(t, err)
	f.Clock.Advance(time.Second)
	latest := f.Bid(t, i2, f.Alice, "150")

	bids, err := f.Ledger.GetUserBids(ctx, f.Alice.ID)
	require.NoError(t, err)
	require.Len(t, bids, 2)
	assert.Equal(t, latest.ID, bids[0].ID, "newest first")
	assert.Equal(t, "Alice", bids[0].BidderName)

	winning, err := f.Ledger.GetUserWinningBids(ctx, f.Alice.ID)
	require.NoError(t, err)
	require.Len(t, winning, 1)
	assert.Equal(t, latest.ID, winning[0].ID)

	bobWinning, err := f.Ledger.GetUserWinningBids(ctx, f.Bob.ID)
	require.NoError(t, err)
	assert.Len(t, bobWinning, 1, "bid on a closed item stays winning until the auction completes")
}

type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (s *recordingSink) BidPlaced(_ context.Context, res *ledger.PlaceBidResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "placed:"+res.Bid.Amount.String())
}

func (s *recordingSink) BidCancelled(_ context.Context, res *ledger.CancelBidResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "cancelled:"+res.Item.CurrentValue.String())
}

func TestEventSinkSeesCommitOrder(t *testing.T) {
	f := testutil.New(t)
	sink := &recordingSink{}
	f.Ledger.SetEventSink(sink)
	item := f.Item(t, "Map", "100", "10")
	f.StartedAuction(t, item)

	f.Bid(t, item, f.Alice, "110")
	top := f.Bid(t, item, f.Bob, "130")
	_, err := place(f, item, f.Alice, "120")
	require.Error(t, err)
	_, err = f.Ledger.CancelBid(context.Background(), ledger.CancelBidRequest{BidID: top.ID, AdminID: f.Admin.ID})
	require.NoError(t, err)

	assert.Equal(t, []string{"placed:110", "placed:130", "cancelled:110"}, sink.events)
}
