package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BidStatus defines the state of a bid.
type BidStatus string

const (
	BidStatusWinning   BidStatus = "WINNING"
	BidStatusOutbid    BidStatus = "OUTBID"
	BidStatusWon       BidStatus = "WON"
	BidStatusCancelled BidStatus = "CANCELLED"

	// bidStatusLegacyValid was written by older releases for superseded bids.
	bidStatusLegacyValid BidStatus = "VALID"
)

// ParseBidStatus maps a stored status to a BidStatus, reading the legacy VALID value as Outbid.
func ParseBidStatus(s string) BidStatus {
	switch st := BidStatus(s); st {
	case bidStatusLegacyValid:
		return BidStatusOutbid
	default:
		return st
	}
}

// Bid is an offer on an item.
type Bid struct {
	ID           uuid.UUID       `json:"id"`
	ItemID       uuid.UUID       `json:"item_id"`
	BidderID     uuid.UUID       `json:"bidder_id"`
	BidderName   string          `json:"bidder_name"`
	Amount       decimal.Decimal `json:"amount"`
	Status       BidStatus       `json:"status"`
	CancelledBy  *uuid.UUID      `json:"cancelled_by,omitempty"`
	CancelReason *string         `json:"cancel_reason,omitempty"`
	CancelledAt  *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// IsLeading reports whether the bid currently holds the item (Winning, or Won after completion).
func (b *Bid) IsLeading() bool {
	return b.Status == BidStatusWinning || b.Status == BidStatusWon
}

// Clone returns a copy with its own pointer fields.
func (b *Bid) Clone() *Bid {
	c := *b
	c.CancelledBy = cloneUUID(b.CancelledBy)
	c.CancelledAt = cloneTime(b.CancelledAt)
	if b.CancelReason != nil {
		r := *b.CancelReason
		c.CancelReason = &r
	}
	return &c
}
