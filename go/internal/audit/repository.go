package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/gavel/go/internal/models"
	"github.com/mcdev12/gavel/go/internal/sqlutil"
	"github.com/sqlc-dev/pqtype"
)

// Repository stores audit entries in Postgres
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new audit repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertAuditEntry appends an entry
func (r *Repository) InsertAuditEntry(ctx context.Context, entry *models.AuditEntry) error {
	metadata := pqtype.NullRawMessage{RawMessage: entry.Metadata, Valid: len(entry.Metadata) > 0}
	_, err := r.pool.Exec(ctx, `INSERT INTO audit_log (id, action, user_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		entry.ID, string(entry.Action), sqlutil.ToPgUUID(entry.UserID), metadata, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// ListAuditEntries lists entries newest first
func (r *Repository) ListAuditEntries(ctx context.Context, filter Filter) ([]models.AuditEntry, error) {
	var action pgtype.Text
	if filter.Action != nil {
		action = pgtype.Text{String: string(*filter.Action), Valid: true}
	}
	rows, err := r.pool.Query(ctx, `SELECT id, action, user_id, metadata, created_at FROM audit_log
		WHERE ($1::text IS NULL OR action = $1) AND ($2::uuid IS NULL OR user_id = $2)
		ORDER BY created_at DESC LIMIT $3`,
		action, sqlutil.ToPgUUID(filter.UserID), filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var (
			e        models.AuditEntry
			act      string
			userID   pgtype.UUID
			metadata pqtype.NullRawMessage
		)
		if err := rows.Scan(&e.ID, &act, &userID, &metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Action = models.AuditAction(act)
		e.UserID = sqlutil.FromPgUUID(userID)
		if metadata.Valid {
			e.Metadata = json.RawMessage(metadata.RawMessage)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
