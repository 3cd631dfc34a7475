// Package ledger keeps each item's bid history and the atomic place/cancel
// operations that decide which bid is winning.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/gavel/go/internal/apperr"
	"github.com/mcdev12/gavel/go/internal/keylock"
	"github.com/mcdev12/gavel/go/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ErrNoWinningBid is returned when an item has no bid holding Winning or Won.
var ErrNoWinningBid = errors.New("no winning bid")

// ItemTx is a unit of work scoped to one item's rows. Writes made through it
// become visible together when the enclosing WithItemTx returns nil, and not
// at all otherwise.
type ItemTx interface {
	Item(ctx context.Context) (*models.Item, error)
	// Auction returns the owning auction as seen inside the unit of work, or
	// nil when the item is not linked. Stores that span processes share-lock
	// the auction row here so sequencing cannot move underneath the commit.
	Auction(ctx context.Context) (*models.Auction, error)
	Bid(ctx context.Context, id uuid.UUID) (*models.Bid, error)
	// LeadingBid returns the bid holding Winning or Won, or ErrNoWinningBid.
	LeadingBid(ctx context.Context) (*models.Bid, error)
	// LatestOutbidBid returns the most recent Outbid bid, or nil when none remain.
	LatestOutbidBid(ctx context.Context) (*models.Bid, error)
	InsertBid(ctx context.Context, bid *models.Bid) error
	SetBidStatus(ctx context.Context, bidID uuid.UUID, status models.BidStatus) error
	MarkCancelled(ctx context.Context, bid *models.Bid) error
	SetCurrentValue(ctx context.Context, value decimal.Decimal) error
}

// BidRepository defines what the ledger needs from the persistent store
type BidRepository interface {
	WithItemTx(ctx context.Context, itemID uuid.UUID, fn func(tx ItemTx) error) error
	GetItem(ctx context.Context, id uuid.UUID) (*models.Item, error)
	GetBid(ctx context.Context, id uuid.UUID) (*models.Bid, error)
	GetLeadingBid(ctx context.Context, itemID uuid.UUID) (*models.Bid, error)
	ListItemBids(ctx context.Context, itemID uuid.UUID) ([]models.Bid, error)
	ListUserBids(ctx context.Context, userID uuid.UUID) ([]models.Bid, error)
	ListUserWinningBids(ctx context.Context, userID uuid.UUID) ([]models.Bid, error)
}

// AuctionGate holds an auction's sequencing state stable while fn runs, so
// the current item cannot change between validation and commit.
type AuctionGate interface {
	WithAuctionRead(ctx context.Context, auctionID uuid.UUID, fn func(a *models.Auction) error) error
}

// EventSink receives committed ledger changes. It is called while the item is
// still locked, so events for one item arrive in commit order.
type EventSink interface {
	BidPlaced(ctx context.Context, res *PlaceBidResult)
	BidCancelled(ctx context.Context, res *CancelBidResult)
}

type noopSink struct{}

func (noopSink) BidPlaced(context.Context, *PlaceBidResult)    {}
func (noopSink) BidCancelled(context.Context, *CancelBidResult) {}

// App handles bid business logic
type App struct {
	repo  BidRepository
	gate  AuctionGate
	clock clockwork.Clock
	items *keylock.Map
	sink  EventSink
}

// NewApp creates a new ledger App
func NewApp(repo BidRepository, gate AuctionGate, clock clockwork.Clock) *App {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &App{
		repo:  repo,
		gate:  gate,
		clock: clock,
		items: keylock.New(),
		sink:  noopSink{},
	}
}

// SetEventSink registers the receiver of committed changes.
func (a *App) SetEventSink(sink EventSink) {
	if sink == nil {
		sink = noopSink{}
	}
	a.sink = sink
}

// PlaceBid accepts a bid on the auction's current item if it clears the
// minimum increment. The previous Winning bid becomes Outbid, the new bid
// becomes Winning and the item's current value moves to the bid amount, all
// in one unit of work.
func (a *App) PlaceBid(ctx context.Context, req PlaceBidRequest) (*PlaceBidResult, error) {
	if err := validatePlaceBidRequest(req); err != nil {
		return nil, err
	}

	item, err := a.repo.GetItem(ctx, req.ItemID)
	if err != nil {
		return nil, err
	}
	if item.AuctionID == nil {
		return nil, apperr.State("item %s is not part of an auction", item.ID)
	}

	var result *PlaceBidResult
	err = a.gate.WithAuctionRead(ctx, *item.AuctionID, func(auction *models.Auction) error {
		if auction.Status != models.AuctionStatusActive {
			return apperr.State("auction %s is not active", auction.ID)
		}
		if !auction.IsCurrentItem(item.ID) {
			return apperr.State("item %s is not currently being auctioned", item.ID)
		}

		unlock := a.items.Lock(item.ID)
		defer unlock()

		err := a.repo.WithItemTx(ctx, item.ID, func(tx ItemTx) error {
			current, err := tx.Item(ctx)
			if err != nil {
				return err
			}
			latest, err := tx.Auction(ctx)
			if err != nil {
				return err
			}
			if latest == nil || latest.Status != models.AuctionStatusActive || !latest.IsCurrentItem(current.ID) {
				return apperr.State("item %s is not currently being auctioned", current.ID)
			}
			previous, err := tx.LeadingBid(ctx)
			if err != nil && !errors.Is(err, ErrNoWinningBid) {
				return fmt.Errorf("failed to load winning bid: %w", err)
			}
			if errors.Is(err, ErrNoWinningBid) {
				previous = nil
			}

			if err := checkAmount(current, previous, req.Amount); err != nil {
				return err
			}

			if previous != nil {
				if err := tx.SetBidStatus(ctx, previous.ID, models.BidStatusOutbid); err != nil {
					return fmt.Errorf("failed to downgrade previous bid: %w", err)
				}
				previous.Status = models.BidStatusOutbid
			}

			bid := &models.Bid{
				ID:         uuid.New(),
				ItemID:     current.ID,
				BidderID:   req.BidderID,
				BidderName: req.BidderName,
				Amount:     req.Amount,
				Status:     models.BidStatusWinning,
				CreatedAt:  a.clock.Now(),
			}
			if err := tx.InsertBid(ctx, bid); err != nil {
				return fmt.Errorf("failed to insert bid: %w", err)
			}
			if err := tx.SetCurrentValue(ctx, req.Amount); err != nil {
				return fmt.Errorf("failed to update current value: %w", err)
			}
			current.CurrentValue = req.Amount

			result = &PlaceBidResult{
				Bid:       bid,
				Item:      current,
				AuctionID: auction.ID,
				Previous:  previous,
				Auction:   auction,
			}
			return nil
		})
		if err != nil {
			return err
		}

		a.sink.BidPlaced(ctx, result)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("item_id", result.Item.ID.String()).
		Str("bid_id", result.Bid.ID.String()).
		Str("bidder_id", req.BidderID.String()).
		Str("amount", req.Amount.StringFixed(2)).
		Msg("bid accepted")
	return result, nil
}

// checkAmount decides whether amount may become the new Winning bid. A bid
// that does not exceed what is already winning lost a race (Conflict); one
// that exceeds it by less than the increment is simply too low (Validation).
func checkAmount(item *models.Item, leading *models.Bid, amount decimal.Decimal) error {
	if leading != nil {
		if amount.LessThanOrEqual(item.CurrentValue) || amount.LessThanOrEqual(leading.Amount) {
			return apperr.Conflict("bid of %s no longer exceeds the current value %s, refresh and retry",
				amount.StringFixed(2), item.CurrentValue.StringFixed(2))
		}
	}
	if minimum := item.MinimumNextBid(); amount.LessThan(minimum) {
		return apperr.Validation("bid must be at least %s", minimum.StringFixed(2))
	}
	return nil
}

// CancelBid cancels a bid on behalf of an admin. When the cancelled bid was
// leading, the most recent Outbid bid takes its place and the item's current
// value follows it, or falls back to the initial value when no bid remains.
func (a *App) CancelBid(ctx context.Context, req CancelBidRequest) (*CancelBidResult, error) {
	if req.BidID == uuid.Nil {
		return nil, apperr.Validation("bid id is required")
	}
	if req.AdminID == uuid.Nil {
		return nil, apperr.Validation("admin id is required")
	}

	bid, err := a.repo.GetBid(ctx, req.BidID)
	if err != nil {
		return nil, err
	}
	if bid.Status == models.BidStatusCancelled {
		return nil, apperr.State("bid %s is already cancelled", bid.ID)
	}
	item, err := a.repo.GetItem(ctx, bid.ItemID)
	if err != nil {
		return nil, err
	}

	if item.AuctionID == nil {
		return a.cancelLocked(ctx, req, item.ID, nil)
	}

	var result *CancelBidResult
	err = a.gate.WithAuctionRead(ctx, *item.AuctionID, func(auction *models.Auction) error {
		var err error
		result, err = a.cancelLocked(ctx, req, item.ID, auction)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (a *App) cancelLocked(ctx context.Context, req CancelBidRequest, itemID uuid.UUID, auction *models.Auction) (*CancelBidResult, error) {
	unlock := a.items.Lock(itemID)
	defer unlock()

	var result *CancelBidResult
	err := a.repo.WithItemTx(ctx, itemID, func(tx ItemTx) error {
		bid, err := tx.Bid(ctx, req.BidID)
		if err != nil {
			return err
		}
		if bid.Status == models.BidStatusCancelled {
			return apperr.State("bid %s is already cancelled", bid.ID)
		}
		wasLeading := bid.IsLeading()

		now := a.clock.Now()
		bid.Status = models.BidStatusCancelled
		bid.CancelledBy = &req.AdminID
		bid.CancelledAt = &now
		if reason := strings.TrimSpace(req.Reason); reason != "" {
			bid.CancelReason = &reason
		}
		if err := tx.MarkCancelled(ctx, bid); err != nil {
			return fmt.Errorf("failed to cancel bid: %w", err)
		}

		item, err := tx.Item(ctx)
		if err != nil {
			return err
		}

		result = &CancelBidResult{Bid: bid, Item: item}
		if auction != nil {
			result.AuctionID = &auction.ID
		}
		if !wasLeading {
			return nil
		}

		latest, err := tx.Auction(ctx)
		if err != nil {
			return err
		}
		// Promoted bids keep the item won once the auction is over.
		promoteTo := models.BidStatusWinning
		if latest != nil && latest.Status == models.AuctionStatusCompleted {
			promoteTo = models.BidStatusWon
		}

		next, err := tx.LatestOutbidBid(ctx)
		if err != nil {
			return fmt.Errorf("failed to find previous bid: %w", err)
		}
		value := item.InitialValue
		if next != nil {
			if err := tx.SetBidStatus(ctx, next.ID, promoteTo); err != nil {
				return fmt.Errorf("failed to promote bid: %w", err)
			}
			next.Status = promoteTo
			value = next.Amount
			result.Promoted = next
		}
		if err := tx.SetCurrentValue(ctx, value); err != nil {
			return fmt.Errorf("failed to reset current value: %w", err)
		}
		item.CurrentValue = value
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.sink.BidCancelled(ctx, result)

	ev := log.Info().
		Str("item_id", itemID.String()).
		Str("bid_id", req.BidID.String()).
		Str("admin_id", req.AdminID.String()).
		Str("current_value", result.Item.CurrentValue.StringFixed(2))
	if result.Promoted != nil {
		ev = ev.Str("promoted_bid_id", result.Promoted.ID.String())
	}
	ev.Msg("bid cancelled")
	return result, nil
}

// GetItem retrieves an item by ID
func (a *App) GetItem(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	return a.repo.GetItem(ctx, id)
}

// GetBid retrieves a bid by ID
func (a *App) GetBid(ctx context.Context, id uuid.UUID) (*models.Bid, error) {
	return a.repo.GetBid(ctx, id)
}

// GetItemBids returns an item's bids, newest first
func (a *App) GetItemBids(ctx context.Context, itemID uuid.UUID) ([]models.Bid, error) {
	bids, err := a.repo.ListItemBids(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to get item bids: %w", err)
	}
	return bids, nil
}

// GetUserBids returns a user's bids, newest first
func (a *App) GetUserBids(ctx context.Context, userID uuid.UUID) ([]models.Bid, error) {
	bids, err := a.repo.ListUserBids(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user bids: %w", err)
	}
	return bids, nil
}

// GetUserWinningBids returns the user's Winning and Won bids, newest first
func (a *App) GetUserWinningBids(ctx context.Context, userID uuid.UUID) ([]models.Bid, error) {
	bids, err := a.repo.ListUserWinningBids(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user winning bids: %w", err)
	}
	return bids, nil
}

// GetWinningBid returns the item's leading bid, or ErrNoWinningBid
func (a *App) GetWinningBid(ctx context.Context, itemID uuid.UUID) (*models.Bid, error) {
	bid, err := a.repo.GetLeadingBid(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return bid, nil
}

func validatePlaceBidRequest(req PlaceBidRequest) error {
	if req.ItemID == uuid.Nil {
		return apperr.Validation("item id is required")
	}
	if req.BidderID == uuid.Nil {
		return apperr.Validation("bidder id is required")
	}
	if !req.Amount.IsPositive() {
		return apperr.Validation("amount must be greater than 0")
	}
	if !req.Amount.Equal(req.Amount.Round(2)) {
		return apperr.Validation("amount must have at most two decimal places")
	}
	return nil
}
