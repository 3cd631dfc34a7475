package gateway

import (
	"context"

	"github.com/google/uuid"
	"github.com/mcdev12/gavel/go/internal/models"
)

// StateProvider computes the snapshots pushed to a session when it connects
// or joins a room.
type StateProvider interface {
	ActiveAuctions(ctx context.Context) ([]models.Auction, error)
	JoinState(ctx context.Context, auctionID uuid.UUID) (*AuctionState, error)
	ItemBids(ctx context.Context, itemID uuid.UUID) ([]models.Bid, error)
}

// Authenticator resolves a bearer credential to the user allowed to open a
// session. It fails with an Auth error for a bad credential and a Forbidden
// error for a blocked user.
type Authenticator interface {
	AuthenticateSession(ctx context.Context, token string) (uuid.UUID, error)
}
