package ledger

import (
	"github.com/google/uuid"
	"github.com/mcdev12/gavel/go/internal/models"
	"github.com/shopspring/decimal"
)

// PlaceBidRequest represents a request to bid on an item
type PlaceBidRequest struct {
	ItemID     uuid.UUID       `json:"item_id"`
	BidderID   uuid.UUID       `json:"bidder_id"`
	BidderName string          `json:"bidder_name"`
	Amount     decimal.Decimal `json:"amount"`
}

// CancelBidRequest represents an admin request to cancel a bid
type CancelBidRequest struct {
	BidID   uuid.UUID `json:"bid_id"`
	AdminID uuid.UUID `json:"admin_id"`
	Reason  string    `json:"reason,omitempty"`
}

// PlaceBidResult is what an accepted bid changed.
type PlaceBidResult struct {
	Bid       *models.Bid  `json:"bid"`
	Item      *models.Item `json:"item"`
	AuctionID uuid.UUID    `json:"auction_id"`
	// Previous is the bid that held Winning before this one, now Outbid.
	Previous *models.Bid `json:"previous,omitempty"`
	// Auction is the auction snapshot the bid was validated against.
	Auction *models.Auction `json:"-"`
}

// CancelBidResult is what a cancellation changed.
type CancelBidResult struct {
	Bid       *models.Bid  `json:"bid"`
	Item      *models.Item `json:"item"`
	AuctionID *uuid.UUID   `json:"auction_id,omitempty"`
	// Promoted is the bid that took over as leader, if any.
	Promoted *models.Bid `json:"promoted,omitempty"`
}
