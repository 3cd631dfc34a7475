package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/gavel/go/internal/apperr"
	"github.com/mcdev12/gavel/go/internal/models"
	"github.com/mcdev12/gavel/go/internal/sqlutil"
	"github.com/shopspring/decimal"
)

const bidColumns = `b.id, b.item_id, b.bidder_id, COALESCE(u.name, ''), b.amount::text, b.status,
	b.cancelled_by, b.cancel_reason, b.cancelled_at, b.created_at`

const bidFrom = `FROM bids b LEFT JOIN users u ON u.id = b.bidder_id`

const itemColumns = `id, name, description, category_id, auction_id, initial_value::text,
	minimum_increment::text, current_value::text, created_at, updated_at`

// Repository handles bid and item persistence in Postgres
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new ledger repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithItemTx locks the item row for the duration of fn.
func (r *Repository) WithItemTx(ctx context.Context, itemID uuid.UUID, fn func(tx ItemTx) error) error {
	return sqlutil.Run(ctx, r.pool, func(tx pgx.Tx) *pgItemTx {
		return &pgItemTx{tx: tx, itemID: itemID}
	}, func(q *pgItemTx) error {
		if _, err := q.lockItem(ctx); err != nil {
			return err
		}
		return fn(q)
	})
}

// GetItem retrieves an item by ID
func (r *Repository) GetItem(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id)
	return scanItem(row)
}

// GetBid retrieves a bid by ID
func (r *Repository) GetBid(ctx context.Context, id uuid.UUID) (*models.Bid, error) {
	return getBid(ctx, r.pool, id)
}

// GetLeadingBid retrieves the Winning or Won bid for an item
func (r *Repository) GetLeadingBid(ctx context.Context, itemID uuid.UUID) (*models.Bid, error) {
	return leadingBid(ctx, r.pool, itemID)
}

// ListItemBids lists an item's bids newest first
func (r *Repository) ListItemBids(ctx context.Context, itemID uuid.UUID) ([]models.Bid, error) {
	return queryBids(ctx, r.pool, `SELECT `+bidColumns+` `+bidFrom+`
		WHERE b.item_id = $1 ORDER BY b.created_at DESC, b.seq DESC`, itemID)
}

// ListUserBids lists a bidder's bids newest first
func (r *Repository) ListUserBids(ctx context.Context, userID uuid.UUID) ([]models.Bid, error) {
	return queryBids(ctx, r.pool, `SELECT `+bidColumns+` `+bidFrom+`
		WHERE b.bidder_id = $1 ORDER BY b.created_at DESC, b.seq DESC`, userID)
}

// ListUserWinningBids lists a bidder's Winning and Won bids newest first
func (r *Repository) ListUserWinningBids(ctx context.Context, userID uuid.UUID) ([]models.Bid, error) {
	return queryBids(ctx, r.pool, `SELECT `+bidColumns+` `+bidFrom+`
		WHERE b.bidder_id = $1 AND b.status IN ('WINNING', 'WON')
		ORDER BY b.created_at DESC, b.seq DESC`, userID)
}

type pgItemTx struct {
	tx     pgx.Tx
	itemID uuid.UUID
	item   *models.Item
}

func (q *pgItemTx) lockItem(ctx context.Context) (*models.Item, error) {
	row := q.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1 FOR UPDATE`, q.itemID)
	item, err := scanItem(row)
	if err != nil {
		return nil, err
	}
	q.item = item
	return item, nil
}

func (q *pgItemTx) Item(ctx context.Context) (*models.Item, error) {
	if q.item == nil {
		return q.lockItem(ctx)
	}
	return q.item.Clone(), nil
}

func (q *pgItemTx) Auction(ctx context.Context) (*models.Auction, error) {
	item, err := q.Item(ctx)
	if err != nil {
		return nil, err
	}
	if item.AuctionID == nil {
		return nil, nil
	}

	var (
		a        models.Auction
		current  pgtype.UUID
		deadline pgtype.Timestamptz
	)
	err = q.tx.QueryRow(ctx, `SELECT id, status, current_item_id, current_item_deadline
		FROM auctions WHERE id = $1 FOR SHARE`, *item.AuctionID).
		Scan(&a.ID, &a.Status, &current, &deadline)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock auction: %w", err)
	}
	a.CurrentItemID = sqlutil.FromPgUUID(current)
	a.CurrentItemDeadline = sqlutil.FromPgTimestamptz(deadline)
	return &a, nil
}

func (q *pgItemTx) Bid(ctx context.Context, id uuid.UUID) (*models.Bid, error) {
	bid, err := getBid(ctx, q.tx, id)
	if err != nil {
		return nil, err
	}
	if bid.ItemID != q.itemID {
		return nil, apperr.NotFound("bid %s not found on item %s", id, q.itemID)
	}
	return bid, nil
}

func (q *pgItemTx) LeadingBid(ctx context.Context) (*models.Bid, error) {
	return leadingBid(ctx, q.tx, q.itemID)
}

func (q *pgItemTx) LatestOutbidBid(ctx context.Context) (*models.Bid, error) {
	bids, err := queryBids(ctx, q.tx, `SELECT `+bidColumns+` `+bidFrom+`
		WHERE b.item_id = $1 AND b.status IN ('OUTBID', 'VALID')
		ORDER BY b.created_at DESC, b.seq DESC LIMIT 1`, q.itemID)
	if err != nil {
		return nil, err
	}
	if len(bids) == 0 {
		return nil, nil
	}
	return &bids[0], nil
}

func (q *pgItemTx) InsertBid(ctx context.Context, bid *models.Bid) error {
	_, err := q.tx.Exec(ctx, `INSERT INTO bids (id, item_id, bidder_id, amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		bid.ID, bid.ItemID, bid.BidderID, sqlutil.AmountParam(bid.Amount), string(bid.Status), bid.CreatedAt)
	return err
}

func (q *pgItemTx) SetBidStatus(ctx context.Context, bidID uuid.UUID, status models.BidStatus) error {
	tag, err := q.tx.Exec(ctx, `UPDATE bids SET status = $2 WHERE id = $1 AND item_id = $3`, bidID, string(status), q.itemID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("bid %s not found", bidID)
	}
	return nil
}

func (q *pgItemTx) MarkCancelled(ctx context.Context, bid *models.Bid) error {
	_, err := q.tx.Exec(ctx, `UPDATE bids SET status = $2, cancelled_by = $3, cancel_reason = $4, cancelled_at = $5
		WHERE id = $1`,
		bid.ID, string(models.BidStatusCancelled), sqlutil.ToPgUUID(bid.CancelledBy),
		sqlutil.ToPgText(bid.CancelReason), sqlutil.ToPgTimestamptz(bid.CancelledAt))
	return err
}

func (q *pgItemTx) SetCurrentValue(ctx context.Context, value decimal.Decimal) error {
	_, err := q.tx.Exec(ctx, `UPDATE items SET current_value = $2, updated_at = now() WHERE id = $1`,
		q.itemID, sqlutil.AmountParam(value))
	if err == nil && q.item != nil {
		q.item.CurrentValue = value
	}
	return err
}

func getBid(ctx context.Context, db sqlutil.DBTX, id uuid.UUID) (*models.Bid, error) {
	bids, err := queryBids(ctx, db, `SELECT `+bidColumns+` `+bidFrom+` WHERE b.id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(bids) == 0 {
		return nil, apperr.NotFound("bid %s not found", id)
	}
	return &bids[0], nil
}

func leadingBid(ctx context.Context, db sqlutil.DBTX, itemID uuid.UUID) (*models.Bid, error) {
	bids, err := queryBids(ctx, db, `SELECT `+bidColumns+` `+bidFrom+`
		WHERE b.item_id = $1 AND b.status IN ('WINNING', 'WON') LIMIT 1`, itemID)
	if err != nil {
		return nil, err
	}
	if len(bids) == 0 {
		return nil, ErrNoWinningBid
	}
	return &bids[0], nil
}

func queryBids(ctx context.Context, db sqlutil.DBTX, sql string, args ...any) ([]models.Bid, error) {
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bids: %w", err)
	}
	defer rows.Close()

	var bids []models.Bid
	for rows.Next() {
		var (
			b           models.Bid
			amount      string
			status      string
			cancelledBy pgtype.UUID
			reason      pgtype.Text
			cancelledAt pgtype.Timestamptz
		)
		if err := rows.Scan(&b.ID, &b.ItemID, &b.BidderID, &b.BidderName, &amount, &status,
			&cancelledBy, &reason, &cancelledAt, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		if b.Amount, err = sqlutil.ParseAmount(amount); err != nil {
			return nil, err
		}
		b.Status = models.ParseBidStatus(status)
		b.CancelledBy = sqlutil.FromPgUUID(cancelledBy)
		b.CancelReason = sqlutil.FromPgText(reason)
		b.CancelledAt = sqlutil.FromPgTimestamptz(cancelledAt)
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

func scanItem(row pgx.Row) (*models.Item, error) {
	var (
		item      models.Item
		auctionID pgtype.UUID
	)
	var initial, increment, currentVal string
	err := row.Scan(&item.ID, &item.Name, &item.Description, &item.CategoryID, &auctionID,
		&initial, &increment, &currentVal, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("item not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan item: %w", err)
	}
	item.AuctionID = sqlutil.FromPgUUID(auctionID)
	if item.InitialValue, err = sqlutil.ParseAmount(initial); err != nil {
		return nil, err
	}
	if item.MinimumIncrement, err = sqlutil.ParseAmount(increment); err != nil {
		return nil, err
	}
	if item.CurrentValue, err = sqlutil.ParseAmount(currentVal); err != nil {
		return nil, err
	}
	return &item, nil
}
