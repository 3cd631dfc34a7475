package sequencer

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/gavel/go/internal/models"
)

// CreateAuctionRequest represents a request to create a new auction
type CreateAuctionRequest struct {
	Name            string      `json:"name"`
	Description     string      `json:"description,omitempty"`
	StartDate       time.Time   `json:"start_date"`
	ExpectedEndDate time.Time   `json:"expected_end_date"`
	ItemIDs         []uuid.UUID `json:"item_ids"`
	CreatedBy       uuid.UUID   `json:"created_by"`
}

// UpdateAuctionRequest represents a request to update an auction. Nil fields
// are left unchanged; ItemIDs replaces the whole item list.
type UpdateAuctionRequest struct {
	Name            *string     `json:"name,omitempty"`
	Description     *string     `json:"description,omitempty"`
	StartDate       *time.Time  `json:"start_date,omitempty"`
	ExpectedEndDate *time.Time  `json:"expected_end_date,omitempty"`
	ItemIDs         []uuid.UUID `json:"item_ids,omitempty"`
}

// AdvanceRequest moves an auction past FromItemID. The advance only happens
// while that item is still current, so concurrent advances collapse into one
// step.
type AdvanceRequest struct {
	AuctionID  uuid.UUID `json:"auction_id"`
	FromItemID uuid.UUID `json:"from_item_id"`
}

// Transition describes a committed sequencing change.
type Transition struct {
	Auction *models.Auction `json:"auction"`
	// PreviousItemID is the item that was current before the change, if any.
	PreviousItemID *uuid.UUID `json:"previous_item_id,omitempty"`
	// Completed is set when this change ended the auction.
	Completed bool `json:"completed"`
	// Won lists the bids settled as Won when the auction completed.
	Won []models.Bid `json:"won,omitempty"`
}
