package sequencer

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
)

const auctionColumns = `id, name, description, status, current_item_id, current_item_deadline,
	start_date, expected_end_date, started_at, actual_end_date, created_by, created_at, updated_at`

const itemColumns = `id, name, description, category_id, auction_id, initial_value::text,
	minimum_increment::text, current_value::text, created_at, updated_at`

// Repository handles auction persistence in Postgres
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new sequencer repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateAuction inserts the auction and claims its items in one transaction.
func (r *Repository) CreateAuction(ctx context.Context, a *models.Auction) error {
	return sqlutil.Run(ctx, r.pool, func(tx pgx.Tx) *pgAuctionTx {
		return &pgAuctionTx{tx: tx, id: a.ID}
	}, func(q *pgAuctionTx) error {
		_, err := q.tx.Exec(ctx, `INSERT INTO auctions (id, name, description, status, start_date,
			expected_end_date, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			a.ID, a.Name, a.Description, string(a.Status), a.StartDate, a.ExpectedEndDate,
			a.CreatedBy, a.CreatedAt, a.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert auction: %w", err)
		}
		return q.ReplaceItems(ctx, a.ItemIDs)
	})
}

// WithAuctionTx locks the auction row for the duration of fn.
func (r *Repository) WithAuctionTx(ctx context.Context, id uuid.UUID, fn func(tx AuctionTx) error) error {
	return sqlutil.Run(ctx, r.pool, func(tx pgx.Tx) *pgAuctionTx {
		return &pgAuctionTx{tx: tx, id: id}
	}, func(q *pgAuctionTx) error {
		return fn(q)
	})
}

// GetAuction retrieves an auction with its ordered items
func (r *Repository) GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	a, err := scanAuction(r.pool.QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := loadItems(ctx, r.pool, a); err != nil {
		return nil, err
	}
	return a, nil
}

// ListAuctions lists auctions newest first, optionally by status
func (r *Repository) ListAuctions(ctx context.Context, status *models.AuctionStatus) ([]models.Auction, error) {
	var filter pgtype.Text
	if status != nil {
		filter = pgtype.Text{String: string(*status), Valid: true}
	}
	rows, err := r.pool.Query(ctx, `SELECT `+auctionColumns+` FROM auctions
		WHERE $1::text IS NULL OR status = $1 ORDER BY start_date DESC`, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list auctions: %w", err)
	}
	defer rows.Close()

	var auctions []models.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range auctions {
		if err := loadItems(ctx, r.pool, &auctions[i]); err != nil {
			return nil, err
		}
	}
	return auctions, nil
}

// GetItems retrieves the items with the given ids that exist
func (r *Repository) GetItems(ctx context.Context, ids []uuid.UUID) ([]models.Item, error) {
	return queryItems(ctx, r.pool, `SELECT `+itemColumns+` FROM items WHERE id = ANY($1)`, ids)
}

type pgAuctionTx struct {
	tx pgx.Tx
	id uuid.UUID
}

func (q *pgAuctionTx) Auction(ctx context.Context) (*models.Auction, error) {
	a, err := scanAuction(q.tx.QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1 FOR UPDATE`, q.id))
	if err != nil {
		return nil, err
	}
	if err := loadItems(ctx, q.tx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (q *pgAuctionTx) Save(ctx context.Context, a *models.Auction) error {
	_, err := q.tx.Exec(ctx, `UPDATE auctions SET status = $2, current_item_id = $3, current_item_deadline = $4,
		started_at = $5, actual_end_date = $6, updated_at = $7 WHERE id = $1`,
		a.ID, string(a.Status), sqlutil.ToPgUUID(a.CurrentItemID), sqlutil.ToPgTimestamptz(a.CurrentItemDeadline),
		sqlutil.ToPgTimestamptz(a.StartedAt), sqlutil.ToPgTimestamptz(a.ActualEndDate), a.UpdatedAt)
	return err
}

func (q *pgAuctionTx) SaveDetails(ctx context.Context, a *models.Auction) error {
	_, err := q.tx.Exec(ctx, `UPDATE auctions SET name = $2, description = $3, start_date = $4,
		expected_end_date = $5, updated_at = $6 WHERE id = $1`,
		a.ID, a.Name, a.Description, a.StartDate, a.ExpectedEndDate, a.UpdatedAt)
	return err
}

func (q *pgAuctionTx) ReplaceItems(ctx context.Context, itemIDs []uuid.UUID) error {
	if _, err := q.tx.Exec(ctx, `UPDATE items SET auction_id = NULL, position = 0, updated_at = now()
		WHERE auction_id = $1`, q.id); err != nil {
		return fmt.Errorf("failed to unlink items: %w", err)
	}
	for pos, itemID := range itemIDs {
		var sold bool
		if err := q.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bids WHERE item_id = $1 AND status = 'WON')`,
			itemID).Scan(&sold); err != nil {
			return fmt.Errorf("failed to check item sale: %w", err)
		}
		if sold {
			return apperr.State("item %s has already been sold", itemID)
		}
		tag, err := q.tx.Exec(ctx, `UPDATE items SET auction_id = $1, position = $3, updated_at = now()
			WHERE id = $2 AND (auction_id IS NULL
				OR auction_id IN (SELECT id FROM auctions WHERE status = 'COMPLETED'))`,
			q.id, itemID, pos)
		if err != nil {
			return fmt.Errorf("failed to link item: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return apperr.State("item %s already belongs to another auction", itemID)
		}
	}
	return nil
}

func (q *pgAuctionTx) SettleWinningBids(ctx context.Context) ([]models.Bid, error) {
	rows, err := q.tx.Query(ctx, `UPDATE bids b SET status = 'WON'
		FROM items i
		WHERE b.item_id = i.id AND i.auction_id = $1 AND b.status = 'WINNING'
		RETURNING b.id, b.item_id, b.bidder_id, b.amount::text, b.created_at`, q.id)
	if err != nil {
		return nil, fmt.Errorf("failed to settle bids: %w", err)
	}
	defer rows.Close()

	var won []models.Bid
	for rows.Next() {
		var (
			b      models.Bid
			amount string
		)
		if err := rows.Scan(&b.ID, &b.ItemID, &b.BidderID, &amount, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan settled bid: %w", err)
		}
		if b.Amount, err = sqlutil.ParseAmount(amount); err != nil {
			return nil, err
		}
		b.Status = models.BidStatusWon
		won = append(won, b)
	}
	return won, rows.Err()
}

func scanAuction(row pgx.Row) (*models.Auction, error) {
	var (
		a         models.Auction
		status    string
		current   pgtype.UUID
		deadline  pgtype.Timestamptz
		startedAt pgtype.Timestamptz
		endedAt   pgtype.Timestamptz
	)
	err := row.Scan(&a.ID, &a.Name, &a.Description, &status, &current, &deadline,
		&a.StartDate, &a.ExpectedEndDate, &startedAt, &endedAt, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("auction not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan auction: %w", err)
	}
	a.Status = models.AuctionStatus(status)
	a.CurrentItemID = sqlutil.FromPgUUID(current)
	a.CurrentItemDeadline = sqlutil.FromPgTimestamptz(deadline)
	a.StartedAt = sqlutil.FromPgTimestamptz(startedAt)
	a.ActualEndDate = sqlutil.FromPgTimestamptz(endedAt)
	return &a, nil
}

func loadItems(ctx context.Context, db sqlutil.DBTX, a *models.Auction) error {
	items, err := queryItems(ctx, db, `SELECT `+itemColumns+` FROM items
		WHERE auction_id = $1 ORDER BY position`, a.ID)
	if err != nil {
		return err
	}
	a.Items = items
	a.ItemIDs = make([]uuid.UUID, len(items))
	for i := range items {
		a.ItemIDs[i] = items[i].ID
	}
	return nil
}

func queryItems(ctx context.Context, db sqlutil.DBTX, sql string, args ...any) ([]models.Item, error) {
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var items []models.Item
	for rows.Next() {
		var (
			item      models.Item
			auctionID pgtype.UUID
		)
		var initial, increment, current string
		if err := rows.Scan(&item.ID, &item.Name, &item.Description, &item.CategoryID, &auctionID,
			&initial, &increment, &current, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		item.AuctionID = sqlutil.FromPgUUID(auctionID)
		if item.InitialValue, err = sqlutil.ParseAmount(initial); err != nil {
			return nil, err
		}
		if item.MinimumIncrement, err = sqlutil.ParseAmount(increment); err != nil {
			return nil, err
		}
		if item.CurrentValue, err = sqlutil.ParseAmount(current); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
