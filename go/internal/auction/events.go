package auction

import (
	"context"

	"github.com/google/uuid"
	"github.com/mcdev12/gavel/go/internal/gateway"
	"github.com/mcdev12/gavel/go/internal/ledger"
	"github.com/mcdev12/gavel/go/internal/metrics"
	"github.com/mcdev12/gavel/go/internal/models"
	"github.com/mcdev12/gavel/go/internal/sequencer"
)

// The sink methods below run while the ledger or sequencer still holds the
// item or auction lock, which is what keeps each room's events in commit
// order. They must not call back into a mutating ledger or sequencer method.

var (
	_ ledger.EventSink    = (*App)(nil)
	_ sequencer.EventSink = (*App)(nil)
)

// BidPlaced sends the full bid to the item room and the new value to the
// auction room, then tells the previous leader they were outbid.
func (a *App) BidPlaced(ctx context.Context, res *ledger.PlaceBidResult) {
	bid := res.Bid
	a.broadcaster.Publish(gateway.ItemRoom(res.Item.ID), gateway.EventBidNew, bid)
	a.broadcaster.Publish(gateway.AuctionRoom(res.AuctionID), gateway.EventItemUpdated, gateway.ItemUpdatedPayload{
		ItemID:        res.Item.ID,
		CurrentValue:  res.Item.CurrentValue,
		HighestBidder: bid.BidderName,
	})

	if prev := res.Previous; prev != nil && prev.BidderID != bid.BidderID {
		a.broadcaster.PublishToUser(prev.BidderID, gateway.EventUserOutbid, gateway.UserOutbidPayload{
			ItemID:   res.Item.ID,
			ItemName: res.Item.Name,
			Amount:   bid.Amount,
		})
		if user := a.lookupUser(ctx, prev.BidderID); user != nil {
			a.notifier.Outbid(user, res.Item.Name, bid.Amount)
		}
	}

	a.audit.Record(ctx, models.AuditBidPlaced, &bid.BidderID, map[string]string{
		"bid_id":     bid.ID.String(),
		"item_id":    res.Item.ID.String(),
		"auction_id": res.AuctionID.String(),
		"amount":     bid.Amount.StringFixed(2),
	})
}

// BidCancelled tells the item room what was cancelled and the auction room
// where the value moved.
func (a *App) BidCancelled(ctx context.Context, res *ledger.CancelBidResult) {
	metrics.RecordBidCancelled()

	a.broadcaster.Publish(gateway.ItemRoom(res.Item.ID), gateway.EventBidCancelled, gateway.BidCancelledPayload{
		Bid:          res.Bid,
		ItemID:       res.Item.ID,
		CurrentValue: res.Item.CurrentValue,
		Promoted:     res.Promoted,
	})
	if res.AuctionID != nil {
		update := gateway.ItemUpdatedPayload{ItemID: res.Item.ID, CurrentValue: res.Item.CurrentValue}
		if res.Promoted != nil {
			update.HighestBidder = res.Promoted.BidderName
		}
		a.broadcaster.Publish(gateway.AuctionRoom(*res.AuctionID), gateway.EventItemUpdated, update)
	}

	metadata := map[string]string{
		"bid_id":  res.Bid.ID.String(),
		"item_id": res.Item.ID.String(),
	}
	if res.Bid.CancelReason != nil {
		metadata["reason"] = *res.Bid.CancelReason
	}
	if res.Promoted != nil {
		metadata["promoted_bid_id"] = res.Promoted.ID.String()
	}
	a.audit.Record(ctx, models.AuditBidCancelled, res.Bid.CancelledBy, metadata)
}

// AuctionStarted announces the first item and notifies participants.
func (a *App) AuctionStarted(ctx context.Context, t *sequencer.Transition) {
	metrics.RecordTransition("started")
	auction := t.Auction
	a.broadcaster.Publish(gateway.AuctionRoom(auction.ID), gateway.EventAuctionStarted, gateway.AuctionStartedPayload{
		AuctionID: auction.ID,
		ItemID:    *auction.CurrentItemID,
		EndTime:   *auction.CurrentItemDeadline,
	})

	a.audit.Record(ctx, models.AuditAuctionStarted, actorFrom(ctx), map[string]string{"auction_id": auction.ID.String()})

	users, err := a.users.ListUsers(ctx)
	if err != nil {
		a.logger.Error().Err(err).Str("auction_id", auction.ID.String()).Msg("failed to list users for start notification")
		return
	}
	participants := users[:0]
	for _, u := range users {
		if u.Role == models.UserRoleParticipant && !u.IsBlocked() {
			participants = append(participants, u)
		}
	}
	a.notifier.AuctionStarted(participants, auction.Name)
}

// ItemChanged announces the next item. Viewers fetch its bids by joining.
func (a *App) ItemChanged(_ context.Context, t *sequencer.Transition) {
	metrics.RecordTransition("advanced")
	auction := t.Auction
	a.broadcaster.Publish(gateway.AuctionRoom(auction.ID), gateway.EventItemChanged, gateway.ItemChangedPayload{
		ItemID:  *auction.CurrentItemID,
		EndTime: *auction.CurrentItemDeadline,
	})
}

// AuctionEnded announces completion and notifies the winners.
func (a *App) AuctionEnded(ctx context.Context, t *sequencer.Transition) {
	metrics.RecordTransition("ended")
	auction := t.Auction
	a.broadcaster.Publish(gateway.AuctionRoom(auction.ID), gateway.EventAuctionEnded, gateway.AuctionEndedPayload{
		AuctionID: auction.ID,
	})

	a.audit.Record(ctx, models.AuditAuctionEnded, actorFrom(ctx), map[string]any{
		"auction_id": auction.ID.String(),
		"won_bids":   len(t.Won),
	})

	for i := range t.Won {
		bid := &t.Won[i]
		user := a.lookupUser(ctx, bid.BidderID)
		if user == nil {
			continue
		}
		a.notifier.Won(user, a.itemName(ctx, auction, bid.ItemID), bid.Amount)
	}
}

// TimerExtended announces the new deadline of the current item.
func (a *App) TimerExtended(_ context.Context, t *sequencer.Transition) {
	metrics.RecordTransition("extended")
	auction := t.Auction
	a.broadcaster.Publish(gateway.AuctionRoom(auction.ID), gateway.EventTimerExtended, gateway.TimerExtendedPayload{
		ItemID:     *auction.CurrentItemID,
		NewEndTime: *auction.CurrentItemDeadline,
	})
}

// TimerTick pushes the remaining time of a live item to its auction room.
func (a *App) TimerTick(_ context.Context, auction *models.Auction, remainingSeconds int) {
	if auction.CurrentItemID == nil {
		return
	}
	a.broadcaster.Publish(gateway.AuctionRoom(auction.ID), gateway.EventTimerUpdate, gateway.TimerUpdatePayload{
		ItemID:           *auction.CurrentItemID,
		RemainingSeconds: remainingSeconds,
	})
}

func (a *App) lookupUser(ctx context.Context, id uuid.UUID) *models.User {
	user, err := a.users.GetUser(ctx, id)
	if err != nil {
		a.logger.Warn().Err(err).Str("user_id", id.String()).Msg("failed to load user for notification")
		return nil
	}
	return user
}

func (a *App) itemName(ctx context.Context, auction *models.Auction, itemID uuid.UUID) string {
	if item := auction.FindItem(itemID); item != nil {
		return item.Name
	}
	item, err := a.ledger.GetItem(ctx, itemID)
	if err != nil {
		a.logger.Warn().Err(err).Str("item_id", itemID.String()).Msg("failed to load item name")
		return ""
	}
	return item.Name
}
