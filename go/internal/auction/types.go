package auction

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/gavel/go/internal/models"
	"github.com/shopspring/decimal"
)

// PlaceBidRequest is the bid submission sent over the request/response channel.
type PlaceBidRequest struct {
	ItemID uuid.UUID       `json:"itemId"`
	Amount decimal.Decimal `json:"amount"`
}

type PlaceBidResponse struct {
	Bid *models.Bid `json:"bid"`
}

type CancelBidRequest struct {
	BidID  uuid.UUID `json:"bidId"`
	Reason string    `json:"reason,omitempty"`
}

type CancelBidResponse struct {
	Bid          *models.Bid     `json:"bid"`
	CurrentValue decimal.Decimal `json:"currentValue"`
	Promoted     *models.Bid     `json:"promoted,omitempty"`
}

type CreateAuctionRequest struct {
	Name            string      `json:"name"`
	Description     string      `json:"description,omitempty"`
	StartDate       time.Time   `json:"startDate"`
	ExpectedEndDate time.Time   `json:"expectedEndDate"`
	ItemIDs         []uuid.UUID `json:"itemIds"`
}

type UpdateAuctionRequest struct {
	AuctionID       uuid.UUID   `json:"auctionId"`
	Name            *string     `json:"name,omitempty"`
	Description     *string     `json:"description,omitempty"`
	StartDate       *time.Time  `json:"startDate,omitempty"`
	ExpectedEndDate *time.Time  `json:"expectedEndDate,omitempty"`
	ItemIDs         []uuid.UUID `json:"itemIds,omitempty"`
}

// AuctionRequest names the auction an admin control call acts on.
type AuctionRequest struct {
	AuctionID uuid.UUID `json:"auctionId"`
}

type AdvanceAuctionRequest struct {
	AuctionID uuid.UUID `json:"auctionId"`
	// FromItemID is the item the caller saw as current. The advance fails
	// with a State error when another caller has already moved past it.
	FromItemID uuid.UUID `json:"fromItemId"`
}

type ExtendAuctionRequest struct {
	AuctionID uuid.UUID `json:"auctionId"`
	// Seconds defaults to 15 when zero.
	Seconds int `json:"seconds,omitempty"`
}

type AuctionResponse struct {
	Auction *models.Auction `json:"auction"`
}

type UserRequest struct {
	UserID uuid.UUID `json:"userId"`
}

type UserResponse struct {
	User *models.User `json:"user"`
}

type ListAuditRequest struct {
	Action *models.AuditAction `json:"action,omitempty"`
	UserID *uuid.UUID          `json:"userId,omitempty"`
	Limit  int                 `json:"limit,omitempty"`
}

type ListAuditResponse struct {
	Entries []models.AuditEntry `json:"entries"`
}
