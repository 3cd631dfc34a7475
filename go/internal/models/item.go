package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Category groups items.
type Category struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Item is a lot offered in an auction.
type Item struct {
	ID               uuid.UUID       `json:"id"`
	Name             string          `json:"name"`
	Description      string          `json:"description,omitempty"`
	CategoryID       uuid.UUID       `json:"category_id"`
	AuctionID        *uuid.UUID      `json:"auction_id,omitempty"`
	InitialValue     decimal.Decimal `json:"initial_value"`
	MinimumIncrement decimal.Decimal `json:"minimum_increment"`
	CurrentValue     decimal.Decimal `json:"current_value"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// MinimumNextBid is the lowest amount a new bid must reach.
func (i *Item) MinimumNextBid() decimal.Decimal {
	return i.CurrentValue.Add(i.MinimumIncrement)
}

// Clone returns a copy with its own pointer fields.
func (i *Item) Clone() *Item {
	c := *i
	c.AuctionID = cloneUUID(i.AuctionID)
	return &c
}
