package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/gavel/go/internal/models"
	"github.com/shopspring/decimal"
)

// EventType names a server to client push.
type EventType string

const (
	EventAuctionsActive EventType = "auctions:active"
	EventAuctionState   EventType = "auction:state"
	EventItemBids       EventType = "item:bids"
	EventBidNew         EventType = "bid:new"
	EventItemUpdated    EventType = "item:updated"
	EventBidCancelled   EventType = "bid:cancelled"
	EventTimerExtended  EventType = "timer:extended"
	EventTimerUpdate    EventType = "timer:update"
	EventItemChanged    EventType = "item:changed"
	EventAuctionStarted EventType = "auction:started"
	EventAuctionEnded   EventType = "auction:ended"
	EventUserOutbid     EventType = "user:outbid"
	EventError          EventType = "error"
)

// Commands a client may send over the socket.
const (
	CommandJoinAuction  = "auction:join"
	CommandLeaveAuction = "auction:leave"
	CommandJoinItem     = "item:join"
	CommandLeaveItem    = "item:leave"
)

// Event is the frame written to clients.
type Event struct {
	Type      EventType       `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent marshals payload into an event. A nil payload leaves Data empty.
func NewEvent(t EventType, payload any) (*Event, error) {
	ev := &Event{Type: t, Timestamp: time.Now().UTC()}
	if payload == nil {
		return ev, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", t, err)
	}
	ev.Data = data
	return ev, nil
}

// ClientMessage is a command frame read from clients. Data carries the
// auction or item id as a JSON string.
type ClientMessage struct {
	Event string `json:"event"`
	Data  string `json:"data"`
}

// AuctionRoom and ItemRoom name the broadcast groups.
func AuctionRoom(id uuid.UUID) string { return "auction:" + id.String() }
func ItemRoom(id uuid.UUID) string    { return "item:" + id.String() }

// Payloads

// AuctionState is pushed on auction:join.
type AuctionState struct {
	Auction     *models.Auction `json:"auction"`
	CurrentItem *models.Item    `json:"currentItem"`
	Bids        []models.Bid    `json:"bids"`
	EndTime     *time.Time      `json:"endTime"`
}

// ItemUpdatedPayload goes to the auction room when an item's value moves.
type ItemUpdatedPayload struct {
	ItemID        uuid.UUID       `json:"itemId"`
	CurrentValue  decimal.Decimal `json:"currentValue"`
	HighestBidder string          `json:"highestBidder,omitempty"`
}

type BidCancelledPayload struct {
	Bid          *models.Bid     `json:"bid"`
	ItemID       uuid.UUID       `json:"itemId"`
	CurrentValue decimal.Decimal `json:"currentValue"`
	Promoted     *models.Bid     `json:"promoted,omitempty"`
}

type TimerExtendedPayload struct {
	ItemID     uuid.UUID `json:"itemId"`
	NewEndTime time.Time `json:"newEndTime"`
}

type TimerUpdatePayload struct {
	ItemID           uuid.UUID `json:"itemId"`
	RemainingSeconds int       `json:"remainingSeconds"`
}

type ItemChangedPayload struct {
	ItemID  uuid.UUID `json:"itemId"`
	EndTime time.Time `json:"endTime"`
}

type AuctionStartedPayload struct {
	AuctionID uuid.UUID `json:"auctionId"`
	ItemID    uuid.UUID `json:"itemId"`
	EndTime   time.Time `json:"endTime"`
}

type AuctionEndedPayload struct {
	AuctionID uuid.UUID `json:"auctionId"`
}

type UserOutbidPayload struct {
	ItemID   uuid.UUID       `json:"itemId"`
	ItemName string          `json:"itemName"`
	Amount   decimal.Decimal `json:"amount"`
}

type ErrorPayload struct {
	Command string `json:"command,omitempty"`
	Message string `json:"message"`
}
