package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestAuctionNextItemID(t *testing.T) {
	i1, i2 := uuid.New(), uuid.New()
	a := &Auction{ItemIDs: []uuid.UUID{i1, i2}}

	_, ok := a.NextItemID()
	assert.False(t, ok, "no current item")

	a.CurrentItemID = &i1
	next, ok := a.NextItemID()
	assert.True(t, ok)
	assert.Equal(t, i2, next)

	a.CurrentItemID = &i2
	_, ok = a.NextItemID()
	assert.False(t, ok, "last item has no successor")
}

func TestAuctionRemainingSeconds(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	a := &Auction{}
	assert.Equal(t, 0, a.RemainingSeconds(now))

	deadline := now.Add(90 * time.Second)
	a.CurrentItemDeadline = &deadline
	assert.Equal(t, 90, a.RemainingSeconds(now))
	assert.Equal(t, 0, a.RemainingSeconds(now.Add(2*time.Minute)))
}

func TestAuctionCloneIsIndependent(t *testing.T) {
	id := uuid.New()
	a := &Auction{ItemIDs: []uuid.UUID{id}, CurrentItemID: &id}
	c := a.Clone()
	c.ItemIDs[0] = uuid.New()
	*c.CurrentItemID = uuid.New()
	assert.Equal(t, id, a.ItemIDs[0])
	assert.Equal(t, id, *a.CurrentItemID)
}

func TestParseBidStatusLegacy(t *testing.T) {
	assert.Equal(t, BidStatusOutbid, ParseBidStatus("VALID"))
	assert.Equal(t, BidStatusWinning, ParseBidStatus("WINNING"))
}
