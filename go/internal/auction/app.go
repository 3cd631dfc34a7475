// Package auction coordinates the bid ledger, the item sequencer and the
// realtime gateway: every mutation goes through here so that it is
// followed by the right broadcasts, notifications and audit records.
package auction

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/gavel/go/internal/apperr"
	"github.com/mcdev12/gavel/go/internal/audit"
	"github.com/mcdev12/gavel/go/internal/auth"
	"github.com/mcdev12/gavel/go/internal/gateway"
	"github.com/mcdev12/gavel/go/internal/ledger"
	"github.com/mcdev12/gavel/go/internal/metrics"
	"github.com/mcdev12/gavel/go/internal/models"
	"github.com/mcdev12/gavel/go/internal/sequencer"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	DefaultAntiSnipeWindow    = 15 * time.Second
	DefaultAntiSnipeExtension = 15 * time.Second
)

// Broadcaster pushes events to realtime viewers.
type Broadcaster interface {
	Publish(room string, t gateway.EventType, payload any)
	PublishToUser(userID uuid.UUID, t gateway.EventType, payload any)
}

// Notifier sends best-effort participant notifications.
type Notifier interface {
	Outbid(user *models.User, itemName string, amount decimal.Decimal)
	Won(user *models.User, itemName string, amount decimal.Decimal)
	AuctionStarted(users []models.User, auctionName string)
}

// Directory is the user directory.
type Directory interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	Block(ctx context.Context, id uuid.UUID) (*models.User, error)
	Unblock(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// AuditLog records and lists audit entries.
type AuditLog interface {
	Record(ctx context.Context, action models.AuditAction, userID *uuid.UUID, metadata any)
	List(ctx context.Context, filter audit.Filter) ([]models.AuditEntry, error)
}

// TokenVerifier checks bearer credentials.
type TokenVerifier interface {
	Verify(token string) (auth.Principal, error)
}

// Config holds the anti-snipe settings.
type Config struct {
	// A bid accepted with less than AntiSnipeWindow left on the item pushes
	// its deadline back by AntiSnipeExtension.
	AntiSnipeWindow    time.Duration
	AntiSnipeExtension time.Duration
}

// Deps are the collaborators of the coordinator. Notifier and Tokens may be
// nil.
type Deps struct {
	Ledger    *ledger.App
	Sequencer *sequencer.App
	Users     Directory
	Audit     AuditLog
	Notifier  Notifier
	Tokens    TokenVerifier
}

// App is the auction coordinator.
type App struct {
	ledger      *ledger.App
	seq         *sequencer.App
	users       Directory
	audit       AuditLog
	notifier    Notifier
	tokens      TokenVerifier
	broadcaster Broadcaster
	cfg         Config
	logger      zerolog.Logger
}

// NewApp creates the coordinator and registers it as the event sink of the
// ledger and the sequencer.
func NewApp(deps Deps, cfg Config) *App {
	if deps.Notifier == nil {
		deps.Notifier = noopNotifier{}
	}
	if cfg.AntiSnipeWindow == 0 {
		cfg.AntiSnipeWindow = DefaultAntiSnipeWindow
	}
	if cfg.AntiSnipeExtension == 0 {
		cfg.AntiSnipeExtension = DefaultAntiSnipeExtension
	}
	a := &App{
		ledger:      deps.Ledger,
		seq:         deps.Sequencer,
		users:       deps.Users,
		audit:       deps.Audit,
		notifier:    deps.Notifier,
		tokens:      deps.Tokens,
		broadcaster: noopBroadcaster{},
		cfg:         cfg,
		logger:      log.With().Str("component", "coordinator").Logger(),
	}
	a.ledger.SetEventSink(a)
	a.seq.SetEventSink(a)
	return a
}

// SetBroadcaster connects the realtime gateway. The gateway needs the
// coordinator as its state provider, so it is attached after construction.
func (a *App) SetBroadcaster(b Broadcaster) {
	if b == nil {
		b = noopBroadcaster{}
	}
	a.broadcaster = b
}

// PlaceBid places a bid for bidderID on the auction's current item. An
// accepted bid that lands inside the anti-snipe window extends the item's
// deadline.
func (a *App) PlaceBid(ctx context.Context, bidderID uuid.UUID, req PlaceBidRequest) (*models.Bid, error) {
	start := time.Now()
	bid, err := a.placeBid(ctx, bidderID, req)
	outcome := "accepted"
	if err != nil {
		outcome = apperr.KindOf(err).String()
	}
	metrics.RecordBid(outcome, time.Since(start))
	return bid, err
}

func (a *App) placeBid(ctx context.Context, bidderID uuid.UUID, req PlaceBidRequest) (*models.Bid, error) {
	user, err := a.activeUser(ctx, bidderID)
	if err != nil {
		return nil, err
	}

	res, err := a.ledger.PlaceBid(withActor(ctx, bidderID), ledger.PlaceBidRequest{
		ItemID:     req.ItemID,
		BidderID:   user.ID,
		BidderName: user.Name,
		Amount:     req.Amount,
	})
	if err != nil {
		return nil, err
	}

	if _, err := a.seq.ExtendIfClosing(ctx, res.AuctionID, res.Item.ID, a.cfg.AntiSnipeWindow, a.cfg.AntiSnipeExtension); err != nil {
		// The bid is committed; a failed extension only costs bidders time.
		a.logger.Error().
			Err(err).
			Str("auction_id", res.AuctionID.String()).
			Str("item_id", res.Item.ID.String()).
			Msg("failed to apply anti-snipe extension")
	}
	return res.Bid, nil
}

// CancelBid cancels a bid on behalf of an admin.
func (a *App) CancelBid(ctx context.Context, adminID uuid.UUID, req CancelBidRequest) (*ledger.CancelBidResult, error) {
	if _, err := a.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	return a.ledger.CancelBid(withActor(ctx, adminID), ledger.CancelBidRequest{
		BidID:   req.BidID,
		AdminID: adminID,
		Reason:  req.Reason,
	})
}

// CreateAuction creates a Scheduled auction.
func (a *App) CreateAuction(ctx context.Context, adminID uuid.UUID, req CreateAuctionRequest) (*models.Auction, error) {
	if _, err := a.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	return a.seq.CreateAuction(ctx, sequencer.CreateAuctionRequest{
		Name:            req.Name,
		Description:     req.Description,
		StartDate:       req.StartDate,
		ExpectedEndDate: req.ExpectedEndDate,
		ItemIDs:         req.ItemIDs,
		CreatedBy:       adminID,
	})
}

// UpdateAuction edits an auction that has not completed.
func (a *App) UpdateAuction(ctx context.Context, adminID uuid.UUID, req UpdateAuctionRequest) (*models.Auction, error) {
	if _, err := a.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	return a.seq.UpdateAuction(ctx, req.AuctionID, sequencer.UpdateAuctionRequest{
		Name:            req.Name,
		Description:     req.Description,
		StartDate:       req.StartDate,
		ExpectedEndDate: req.ExpectedEndDate,
		ItemIDs:         req.ItemIDs,
	})
}

// StartAuction opens the first item of a Scheduled auction.
func (a *App) StartAuction(ctx context.Context, adminID, auctionID uuid.UUID) (*models.Auction, error) {
	if _, err := a.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	t, err := a.seq.Start(withActor(ctx, adminID), auctionID)
	if err != nil {
		return nil, err
	}
	return t.Auction, nil
}

// AdvanceAuction moves to the next item, completing the auction after the
// last one.
func (a *App) AdvanceAuction(ctx context.Context, adminID uuid.UUID, req AdvanceAuctionRequest) (*models.Auction, error) {
	if _, err := a.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	t, err := a.seq.Advance(withActor(ctx, adminID), sequencer.AdvanceRequest{
		AuctionID:  req.AuctionID,
		FromItemID: req.FromItemID,
	})
	if err != nil {
		return nil, err
	}
	return t.Auction, nil
}

// ExtendAuction pushes the current item's deadline back.
func (a *App) ExtendAuction(ctx context.Context, adminID uuid.UUID, req ExtendAuctionRequest) (*models.Auction, error) {
	if _, err := a.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	if req.Seconds < 0 {
		return nil, apperr.Validation("seconds must not be negative")
	}
	t, err := a.seq.Extend(withActor(ctx, adminID), req.AuctionID, time.Duration(req.Seconds)*time.Second)
	if err != nil {
		return nil, err
	}
	return t.Auction, nil
}

// EndAuction completes an Active auction early.
func (a *App) EndAuction(ctx context.Context, adminID, auctionID uuid.UUID) (*models.Auction, error) {
	if _, err := a.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	t, err := a.seq.End(withActor(ctx, adminID), auctionID)
	if err != nil {
		return nil, err
	}
	return t.Auction, nil
}

// BlockUser stops a participant from bidding and connecting.
func (a *App) BlockUser(ctx context.Context, adminID, userID uuid.UUID) (*models.User, error) {
	if _, err := a.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	user, err := a.users.Block(ctx, userID)
	if err != nil {
		return nil, err
	}
	a.audit.Record(ctx, models.AuditUserBlocked, &adminID, map[string]string{"user_id": userID.String()})
	return user, nil
}

// UnblockUser lifts a block.
func (a *App) UnblockUser(ctx context.Context, adminID, userID uuid.UUID) (*models.User, error) {
	if _, err := a.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	user, err := a.users.Unblock(ctx, userID)
	if err != nil {
		return nil, err
	}
	a.audit.Record(ctx, models.AuditUserUnblocked, &adminID, map[string]string{"user_id": userID.String()})
	return user, nil
}

// ListAudit returns audit entries for an admin.
func (a *App) ListAudit(ctx context.Context, adminID uuid.UUID, filter audit.Filter) ([]models.AuditEntry, error) {
	if _, err := a.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	return a.audit.List(ctx, filter)
}

// GetAuction retrieves an auction with its items.
func (a *App) GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	return a.seq.GetAuction(ctx, id)
}

// ActiveAuctions lists the Active auctions.
func (a *App) ActiveAuctions(ctx context.Context) ([]models.Auction, error) {
	return a.seq.ListActive(ctx)
}

// JoinState builds the snapshot pushed to a viewer joining an auction.
func (a *App) JoinState(ctx context.Context, auctionID uuid.UUID) (*gateway.AuctionState, error) {
	auction, err := a.seq.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	state := &gateway.AuctionState{
		Auction: auction,
		Bids:    []models.Bid{},
		EndTime: auction.CurrentItemDeadline,
	}
	if auction.CurrentItemID == nil {
		return state, nil
	}

	item := auction.FindItem(*auction.CurrentItemID)
	if item == nil {
		a.logger.Warn().
			Str("auction_id", auction.ID.String()).
			Str("item_id", auction.CurrentItemID.String()).
			Msg("current item missing from auction items, loading directly")
		item, err = a.ledger.GetItem(ctx, *auction.CurrentItemID)
		if err != nil {
			return nil, err
		}
	}
	state.CurrentItem = item

	bids, err := a.ledger.GetItemBids(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	state.Bids = bids
	return state, nil
}

// ItemBids returns an item's bid history, newest first.
func (a *App) ItemBids(ctx context.Context, itemID uuid.UUID) ([]models.Bid, error) {
	return a.ledger.GetItemBids(ctx, itemID)
}

// UserBids returns a user's bids, newest first.
func (a *App) UserBids(ctx context.Context, userID uuid.UUID) ([]models.Bid, error) {
	return a.ledger.GetUserBids(ctx, userID)
}

// UserWinningBids returns a user's Winning and Won bids, newest first.
func (a *App) UserWinningBids(ctx context.Context, userID uuid.UUID) ([]models.Bid, error) {
	return a.ledger.GetUserWinningBids(ctx, userID)
}

// AuthenticateSession resolves a realtime credential to an active user.
func (a *App) AuthenticateSession(ctx context.Context, token string) (uuid.UUID, error) {
	if a.tokens == nil {
		return uuid.Nil, apperr.Auth("authentication is not configured")
	}
	p, err := a.tokens.Verify(token)
	if err != nil {
		return uuid.Nil, err
	}
	user, err := a.activeUser(ctx, p.UserID)
	if err != nil {
		return uuid.Nil, err
	}
	return user.ID, nil
}

// activeUser loads a user that may act: unknown users fail authentication
// and blocked users are forbidden.
func (a *App) activeUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := a.users.GetUser(ctx, id)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, apperr.Auth("unknown user %s", id)
		}
		return nil, err
	}
	if user.IsBlocked() {
		return nil, apperr.Forbidden("user %s is blocked", id)
	}
	return user, nil
}

func (a *App) requireAdmin(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := a.activeUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if !user.IsAdmin() {
		return nil, apperr.Forbidden("admin role required")
	}
	return user, nil
}

type actorKey struct{}

// withActor records who triggered a mutation so the event sinks can audit it.
// Mutations driven by the scheduler carry no actor.
func withActor(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, actorKey{}, id)
}

func actorFrom(ctx context.Context) *uuid.UUID {
	if id, ok := ctx.Value(actorKey{}).(uuid.UUID); ok {
		return &id
	}
	return nil
}

type noopBroadcaster struct{}

func (noopBroadcaster) Publish(string, gateway.EventType, any)          {}
func (noopBroadcaster) PublishToUser(uuid.UUID, gateway.EventType, any) {}

type noopNotifier struct{}

func (noopNotifier) Outbid(*models.User, string, decimal.Decimal) {}
func (noopNotifier) Won(*models.User, string, decimal.Decimal)    {}
func (noopNotifier) AuctionStarted([]models.User, string)         {}
