// Package sequencer owns each auction's ordered item list, which item is
// open for bidding and until when.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/gavel/go/internal/apperr"
	"github.com/mcdev12/gavel/go/internal/keylock"
	"github.com/mcdev12/gavel/go/internal/models"
	"github.com/rs/zerolog/log"
)

const (
	DefaultBiddingWindow   = 5 * time.Minute
	DefaultExtensionLength = 15 * time.Second
)

// AuctionTx is a unit of work scoped to one auction row. Writes become
// visible together when the enclosing WithAuctionTx returns nil.
type AuctionTx interface {
	Auction(ctx context.Context) (*models.Auction, error)
	// Save persists status, current item, deadline and timestamps.
	Save(ctx context.Context, a *models.Auction) error
	// SaveDetails persists name, description and schedule dates.
	SaveDetails(ctx context.Context, a *models.Auction) error
	// ReplaceItems unlinks the auction's items and links itemIDs in order.
	// It fails with a State error when an item belongs to another open auction
	// or already has a Won bid.
	ReplaceItems(ctx context.Context, itemIDs []uuid.UUID) error
	// SettleWinningBids turns every Winning bid on the auction's items into Won.
	SettleWinningBids(ctx context.Context) ([]models.Bid, error)
}

// AuctionRepository defines what the sequencer needs from the persistent store
type AuctionRepository interface {
	// CreateAuction inserts the auction and links its items. It fails with a
	// State error when an item belongs to another open auction.
	CreateAuction(ctx context.Context, a *models.Auction) error
	WithAuctionTx(ctx context.Context, id uuid.UUID, fn func(tx AuctionTx) error) error
	GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error)
	ListAuctions(ctx context.Context, status *models.AuctionStatus) ([]models.Auction, error)
	GetItems(ctx context.Context, ids []uuid.UUID) ([]models.Item, error)
}

// EventSink receives committed sequencing changes while the auction is still
// locked, so events for one auction arrive in commit order.
type EventSink interface {
	AuctionStarted(ctx context.Context, t *Transition)
	ItemChanged(ctx context.Context, t *Transition)
	AuctionEnded(ctx context.Context, t *Transition)
	TimerExtended(ctx context.Context, t *Transition)
}

type noopSink struct{}

func (noopSink) AuctionStarted(context.Context, *Transition) {}
func (noopSink) ItemChanged(context.Context, *Transition)    {}
func (noopSink) AuctionEnded(context.Context, *Transition)   {}
func (noopSink) TimerExtended(context.Context, *Transition)  {}

// Config holds sequencing settings.
type Config struct {
	BiddingWindow    time.Duration
	DefaultExtension time.Duration
}

// App handles auction sequencing business logic
type App struct {
	repo     AuctionRepository
	clock    clockwork.Clock
	cfg      Config
	auctions *keylock.Map
	sink     EventSink
}

// NewApp creates a new sequencer App
func NewApp(repo AuctionRepository, clock clockwork.Clock, cfg Config) *App {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.BiddingWindow <= 0 {
		cfg.BiddingWindow = DefaultBiddingWindow
	}
	if cfg.DefaultExtension <= 0 {
		cfg.DefaultExtension = DefaultExtensionLength
	}
	return &App{
		repo:     repo,
		clock:    clock,
		cfg:      cfg,
		auctions: keylock.New(),
		sink:     noopSink{},
	}
}

// SetEventSink registers the receiver of committed changes.
func (a *App) SetEventSink(sink EventSink) {
	if sink == nil {
		sink = noopSink{}
	}
	a.sink = sink
}

// BiddingWindow is how long each item stays open.
func (a *App) BiddingWindow() time.Duration { return a.cfg.BiddingWindow }

// CreateAuction creates a Scheduled auction over an ordered item list
func (a *App) CreateAuction(ctx context.Context, req CreateAuctionRequest) (*models.Auction, error) {
	if err := validateCreateAuctionRequest(req); err != nil {
		return nil, err
	}
	if err := a.checkItemsExist(ctx, req.ItemIDs); err != nil {
		return nil, err
	}

	now := a.clock.Now()
	auction := &models.Auction{
		ID:              uuid.New(),
		Name:            strings.TrimSpace(req.Name),
		Description:     req.Description,
		Status:          models.AuctionStatusScheduled,
		ItemIDs:         append([]uuid.UUID(nil), req.ItemIDs...),
		StartDate:       req.StartDate,
		ExpectedEndDate: req.ExpectedEndDate,
		CreatedBy:       req.CreatedBy,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := a.repo.CreateAuction(ctx, auction); err != nil {
		return nil, fmt.Errorf("failed to create auction: %w", err)
	}

	log.Info().Str("auction_id", auction.ID.String()).Int("items", len(auction.ItemIDs)).Msg("auction created")
	return a.GetAuction(ctx, auction.ID)
}

// UpdateAuction changes an auction's details. Completed auctions cannot be
// updated and the item list can only be replaced before the auction starts.
func (a *App) UpdateAuction(ctx context.Context, id uuid.UUID, req UpdateAuctionRequest) (*models.Auction, error) {
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return nil, apperr.Validation("name cannot be empty")
	}
	if req.ItemIDs != nil {
		if err := validateItemIDs(req.ItemIDs); err != nil {
			return nil, err
		}
		if err := a.checkItemsExist(ctx, req.ItemIDs); err != nil {
			return nil, err
		}
	}

	unlock := a.auctions.Lock(id)
	defer unlock()

	err := a.repo.WithAuctionTx(ctx, id, func(tx AuctionTx) error {
		auction, err := tx.Auction(ctx)
		if err != nil {
			return err
		}
		if auction.Status == models.AuctionStatusCompleted {
			return apperr.State("auction %s is completed and cannot be updated", id)
		}
		if req.ItemIDs != nil && auction.Status != models.AuctionStatusScheduled {
			return apperr.State("items of auction %s cannot change once it has started", id)
		}

		if req.Name != nil {
			auction.Name = strings.TrimSpace(*req.Name)
		}
		if req.Description != nil {
			auction.Description = *req.Description
		}
		if req.StartDate != nil {
			auction.StartDate = *req.StartDate
		}
		if req.ExpectedEndDate != nil {
			auction.ExpectedEndDate = *req.ExpectedEndDate
		}
		if auction.ExpectedEndDate.Before(auction.StartDate) {
			return apperr.Validation("expected end date must not be before start date")
		}
		auction.UpdatedAt = a.clock.Now()

		if err := tx.SaveDetails(ctx, auction); err != nil {
			return fmt.Errorf("failed to update auction: %w", err)
		}
		if req.ItemIDs != nil {
			if err := tx.ReplaceItems(ctx, req.ItemIDs); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a.GetAuction(ctx, id)
}

// Start opens the first item of a Scheduled auction.
func (a *App) Start(ctx context.Context, id uuid.UUID) (*Transition, error) {
	return a.mutate(ctx, id, func(auction *models.Auction, tx AuctionTx) (*Transition, error) {
		if auction.Status != models.AuctionStatusScheduled {
			return nil, apperr.State("auction %s is not scheduled", id)
		}
		if len(auction.ItemIDs) == 0 {
			return nil, apperr.State("auction %s has no items", id)
		}

		now := a.clock.Now()
		first := auction.ItemIDs[0]
		deadline := now.Add(a.cfg.BiddingWindow)
		auction.Status = models.AuctionStatusActive
		auction.CurrentItemID = &first
		auction.CurrentItemDeadline = &deadline
		auction.StartedAt = &now
		auction.UpdatedAt = now
		if err := tx.Save(ctx, auction); err != nil {
			return nil, fmt.Errorf("failed to start auction: %w", err)
		}
		return &Transition{Auction: auction}, nil
	}, a.sink.AuctionStarted)
}

// Advance closes the current item and opens the next one, or completes the
// auction when the current item is the last.
func (a *App) Advance(ctx context.Context, req AdvanceRequest) (*Transition, error) {
	if req.FromItemID == uuid.Nil {
		return nil, apperr.Validation("from_item_id is required")
	}
	return a.mutateAdvance(ctx, req.AuctionID, func(auction *models.Auction) error {
		if auction.Status != models.AuctionStatusActive {
			return apperr.State("auction %s is not active", auction.ID)
		}
		if !auction.IsCurrentItem(req.FromItemID) {
			return apperr.State("auction %s has already moved past item %s", auction.ID, req.FromItemID)
		}
		return nil
	})
}

// AdvanceIfExpired advances the auction only if itemID is still current and
// its deadline has passed. It returns a nil Transition when there was
// nothing to do, e.g. because an extension or another caller got there first.
func (a *App) AdvanceIfExpired(ctx context.Context, auctionID, itemID uuid.UUID) (*Transition, error) {
	t, err := a.mutateAdvance(ctx, auctionID, func(auction *models.Auction) error {
		if !auction.IsLive() || !auction.IsCurrentItem(itemID) {
			return errSkip
		}
		if a.clock.Now().Before(*auction.CurrentItemDeadline) {
			return errSkip
		}
		return nil
	})
	if errors.Is(err, errSkip) {
		return nil, nil
	}
	return t, err
}

// End completes an Active auction regardless of remaining items.
func (a *App) End(ctx context.Context, id uuid.UUID) (*Transition, error) {
	return a.mutate(ctx, id, func(auction *models.Auction, tx AuctionTx) (*Transition, error) {
		if auction.Status != models.AuctionStatusActive {
			return nil, apperr.State("auction %s is not active", id)
		}
		return a.complete(ctx, auction, tx)
	}, a.sink.AuctionEnded)
}

// Extend pushes the current item's deadline back. A non-positive duration
// uses the configured default extension.
func (a *App) Extend(ctx context.Context, id uuid.UUID, by time.Duration) (*Transition, error) {
	if by <= 0 {
		by = a.cfg.DefaultExtension
	}
	return a.mutate(ctx, id, func(auction *models.Auction, tx AuctionTx) (*Transition, error) {
		if !auction.IsLive() {
			return nil, apperr.State("auction %s has no item open for bidding", id)
		}
		return a.extend(ctx, auction, tx, by)
	}, a.sink.TimerExtended)
}

// ExtendIfClosing extends the deadline by `by` when itemID is still current
// and fewer than `within` remain. It returns a nil Transition otherwise.
func (a *App) ExtendIfClosing(ctx context.Context, id, itemID uuid.UUID, within, by time.Duration) (*Transition, error) {
	if within <= 0 || by <= 0 {
		return nil, nil
	}
	t, err := a.mutate(ctx, id, func(auction *models.Auction, tx AuctionTx) (*Transition, error) {
		if !auction.IsLive() || !auction.IsCurrentItem(itemID) {
			return nil, errSkip
		}
		remaining := auction.CurrentItemDeadline.Sub(a.clock.Now())
		if remaining <= 0 || remaining > within {
			return nil, errSkip
		}
		return a.extend(ctx, auction, tx, by)
	}, a.sink.TimerExtended)
	if errors.Is(err, errSkip) {
		return nil, nil
	}
	return t, err
}

func (a *App) extend(ctx context.Context, auction *models.Auction, tx AuctionTx, by time.Duration) (*Transition, error) {
	deadline := auction.CurrentItemDeadline.Add(by)
	auction.CurrentItemDeadline = &deadline
	auction.UpdatedAt = a.clock.Now()
	if err := tx.Save(ctx, auction); err != nil {
		return nil, fmt.Errorf("failed to extend auction: %w", err)
	}
	return &Transition{Auction: auction, PreviousItemID: auction.CurrentItemID}, nil
}

// WithAuctionRead runs fn with a snapshot of the auction while holding its
// shared lock, so no sequencing change can commit until fn returns.
func (a *App) WithAuctionRead(ctx context.Context, id uuid.UUID, fn func(auction *models.Auction) error) error {
	unlock := a.auctions.RLock(id)
	defer unlock()

	auction, err := a.repo.GetAuction(ctx, id)
	if err != nil {
		return err
	}
	return fn(auction)
}

// GetAuction retrieves an auction with its items loaded
func (a *App) GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	auction, err := a.repo.GetAuction(ctx, id)
	if err != nil {
		return nil, err
	}
	return auction, nil
}

// ListAuctions lists auctions, optionally filtered by status
func (a *App) ListAuctions(ctx context.Context, status *models.AuctionStatus) ([]models.Auction, error) {
	auctions, err := a.repo.ListAuctions(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list auctions: %w", err)
	}
	return auctions, nil
}

// ListActive lists Active auctions
func (a *App) ListActive(ctx context.Context) ([]models.Auction, error) {
	status := models.AuctionStatusActive
	return a.ListAuctions(ctx, &status)
}

var errSkip = errors.New("nothing to do")

type mutation func(auction *models.Auction, tx AuctionTx) (*Transition, error)

// mutate runs fn under the auction's exclusive lock and transaction, then
// hands the committed transition to notify before releasing the lock.
func (a *App) mutate(ctx context.Context, id uuid.UUID, fn mutation, notify func(context.Context, *Transition)) (*Transition, error) {
	unlock := a.auctions.Lock(id)
	defer unlock()

	var t *Transition
	err := a.repo.WithAuctionTx(ctx, id, func(tx AuctionTx) error {
		auction, err := tx.Auction(ctx)
		if err != nil {
			return err
		}
		t, err = fn(auction, tx)
		return err
	})
	if err != nil {
		return nil, err
	}

	notify(ctx, t)
	logTransition(t)
	return t, nil
}

func (a *App) mutateAdvance(ctx context.Context, id uuid.UUID, check func(*models.Auction) error) (*Transition, error) {
	return a.mutate(ctx, id, func(auction *models.Auction, tx AuctionTx) (*Transition, error) {
		if err := check(auction); err != nil {
			return nil, err
		}

		next, ok := auction.NextItemID()
		if !ok {
			return a.complete(ctx, auction, tx)
		}

		now := a.clock.Now()
		previous := auction.CurrentItemID
		deadline := now.Add(a.cfg.BiddingWindow)
		auction.CurrentItemID = &next
		auction.CurrentItemDeadline = &deadline
		auction.UpdatedAt = now
		if err := tx.Save(ctx, auction); err != nil {
			return nil, fmt.Errorf("failed to advance auction: %w", err)
		}
		return &Transition{Auction: auction, PreviousItemID: previous}, nil
	}, func(ctx context.Context, t *Transition) {
		if t.Completed {
			a.sink.AuctionEnded(ctx, t)
			return
		}
		a.sink.ItemChanged(ctx, t)
	})
}

// complete settles the auction's Winning bids and marks it Completed in the
// same unit of work.
func (a *App) complete(ctx context.Context, auction *models.Auction, tx AuctionTx) (*Transition, error) {
	won, err := tx.SettleWinningBids(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to settle winning bids: %w", err)
	}

	now := a.clock.Now()
	previous := auction.CurrentItemID
	auction.Status = models.AuctionStatusCompleted
	auction.CurrentItemID = nil
	auction.CurrentItemDeadline = nil
	auction.ActualEndDate = &now
	auction.UpdatedAt = now
	if err := tx.Save(ctx, auction); err != nil {
		return nil, fmt.Errorf("failed to complete auction: %w", err)
	}
	return &Transition{Auction: auction, PreviousItemID: previous, Completed: true, Won: won}, nil
}

func logTransition(t *Transition) {
	ev := log.Info().
		Str("auction_id", t.Auction.ID.String()).
		Str("status", string(t.Auction.Status))
	if t.Auction.CurrentItemID != nil {
		ev = ev.Str("item_id", t.Auction.CurrentItemID.String()).Time("deadline", *t.Auction.CurrentItemDeadline)
	}
	if t.Completed {
		ev = ev.Int("won", len(t.Won))
	}
	ev.Msg("auction sequencing changed")
}

func (a *App) checkItemsExist(ctx context.Context, ids []uuid.UUID) error {
	items, err := a.repo.GetItems(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to load items: %w", err)
	}
	found := make(map[uuid.UUID]bool, len(items))
	for _, item := range items {
		found[item.ID] = true
	}
	for _, id := range ids {
		if !found[id] {
			return apperr.NotFound("item %s not found", id)
		}
	}
	return nil
}

// Validation methods

func validateCreateAuctionRequest(req CreateAuctionRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return apperr.Validation("name is required")
	}
	if req.CreatedBy == uuid.Nil {
		return apperr.Validation("created_by is required")
	}
	if req.StartDate.IsZero() || req.ExpectedEndDate.IsZero() {
		return apperr.Validation("start_date and expected_end_date are required")
	}
	if req.ExpectedEndDate.Before(req.StartDate) {
		return apperr.Validation("expected end date must not be before start date")
	}
	return validateItemIDs(req.ItemIDs)
}

func validateItemIDs(ids []uuid.UUID) error {
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			return apperr.Validation("item ids must not be empty")
		}
		if seen[id] {
			return apperr.Validation("item %s is listed more than once", id)
		}
		seen[id] = true
	}
	return nil
}
