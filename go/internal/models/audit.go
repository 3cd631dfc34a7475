package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction names a recorded event.
type AuditAction string

const (
	AuditBidPlaced      AuditAction = "BID_PLACED"
	AuditBidCancelled   AuditAction = "BID_CANCELLED"
	AuditAuctionStarted AuditAction = "AUCTION_STARTED"
	AuditAuctionEnded   AuditAction = "AUCTION_ENDED"
	AuditUserBlocked    AuditAction = "USER_BLOCKED"
	AuditUserUnblocked  AuditAction = "USER_UNBLOCKED"
)

// AuditEntry is one row of the audit trail.
type AuditEntry struct {
	ID        uuid.UUID       `json:"id"`
	Action    AuditAction     `json:"action"`
	UserID    *uuid.UUID      `json:"user_id,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
