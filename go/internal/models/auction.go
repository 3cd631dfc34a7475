package models

import (
	"time"

	"github.com/google/uuid"
)

// AuctionStatus defines the lifecycle state of an auction.
type AuctionStatus string

const (
	AuctionStatusScheduled AuctionStatus = "SCHEDULED"
	AuctionStatusActive    AuctionStatus = "ACTIVE"
	AuctionStatusCompleted AuctionStatus = "COMPLETED"
)

// Auction is a session in which items are auctioned one after another.
type Auction struct {
	ID                  uuid.UUID     `json:"id"`
	Name                string        `json:"name"`
	Description         string        `json:"description,omitempty"`
	Status              AuctionStatus `json:"status"`
	ItemIDs             []uuid.UUID   `json:"item_ids"`
	Items               []Item        `json:"items,omitempty"`
	CurrentItemID       *uuid.UUID    `json:"current_item_id,omitempty"`
	CurrentItemDeadline *time.Time    `json:"current_item_deadline,omitempty"`
	StartDate           time.Time     `json:"start_date"`
	ExpectedEndDate     time.Time     `json:"expected_end_date"`
	StartedAt           *time.Time    `json:"started_at,omitempty"`
	ActualEndDate       *time.Time    `json:"actual_end_date,omitempty"`
	CreatedBy           uuid.UUID     `json:"created_by"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// IsLive reports whether the auction has an item open for bidding.
func (a *Auction) IsLive() bool {
	return a.Status == AuctionStatusActive && a.CurrentItemID != nil && a.CurrentItemDeadline != nil
}

// IsCurrentItem reports whether itemID is the item presently open for bidding.
func (a *Auction) IsCurrentItem(itemID uuid.UUID) bool {
	return a.CurrentItemID != nil && *a.CurrentItemID == itemID
}

// ItemIndex returns the position of itemID in the ordered item list, or -1.
func (a *Auction) ItemIndex(itemID uuid.UUID) int {
	for i, id := range a.ItemIDs {
		if id == itemID {
			return i
		}
	}
	return -1
}

// NextItemID returns the item after the current one. The second return value
// is false when the current item is the last one (or there is no current item).
func (a *Auction) NextItemID() (uuid.UUID, bool) {
	if a.CurrentItemID == nil {
		return uuid.Nil, false
	}
	idx := a.ItemIndex(*a.CurrentItemID)
	if idx < 0 || idx+1 >= len(a.ItemIDs) {
		return uuid.Nil, false
	}
	return a.ItemIDs[idx+1], true
}

// RemainingSeconds is the whole number of seconds until the current deadline, clamped at 0.
func (a *Auction) RemainingSeconds(now time.Time) int {
	if a.CurrentItemDeadline == nil {
		return 0
	}
	remaining := a.CurrentItemDeadline.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(remaining.Round(time.Second) / time.Second)
}

// FindItem returns the loaded item relation entry for id, if present.
func (a *Auction) FindItem(id uuid.UUID) *Item {
	for i := range a.Items {
		if a.Items[i].ID == id {
			return &a.Items[i]
		}
	}
	return nil
}

// Clone returns a deep copy so callers may mutate it freely.
func (a *Auction) Clone() *Auction {
	c := *a
	c.ItemIDs = append([]uuid.UUID(nil), a.ItemIDs...)
	if a.Items != nil {
		c.Items = make([]Item, len(a.Items))
		for i := range a.Items {
			c.Items[i] = *a.Items[i].Clone()
		}
	}
	c.CurrentItemID = cloneUUID(a.CurrentItemID)
	c.CurrentItemDeadline = cloneTime(a.CurrentItemDeadline)
	c.StartedAt = cloneTime(a.StartedAt)
	c.ActualEndDate = cloneTime(a.ActualEndDate)
	return &c
}

func cloneUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
