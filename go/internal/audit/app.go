// Package audit records who did what to auctions, bids and users.
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/gavel/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Filter narrows a listing. Zero values match everything.
type Filter struct {
	Action *models.AuditAction
	UserID *uuid.UUID
	Limit  int
}

// AuditRepository defines what the audit log needs from the persistent store
type AuditRepository interface {
	InsertAuditEntry(ctx context.Context, entry *models.AuditEntry) error
	ListAuditEntries(ctx context.Context, filter Filter) ([]models.AuditEntry, error)
}

// App writes and reads the audit trail
type App struct {
	repo  AuditRepository
	clock clockwork.Clock
}

// NewApp creates a new audit App
func NewApp(repo AuditRepository, clock clockwork.Clock) *App {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &App{repo: repo, clock: clock}
}

// Record appends an entry. Failures are logged and swallowed: auditing never
// blocks the operation being audited.
func (a *App) Record(ctx context.Context, action models.AuditAction, userID *uuid.UUID, metadata any) {
	entry := &models.AuditEntry{
		ID:        uuid.New(),
		Action:    action,
		UserID:    userID,
		CreatedAt: a.clock.Now(),
	}
	if metadata != nil {
		raw, err := json.Marshal(metadata)
		if err != nil {
			log.Error().Err(err).Str("action", string(action)).Msg("failed to encode audit metadata")
		} else {
			entry.Metadata = raw
		}
	}
	if err := a.repo.InsertAuditEntry(ctx, entry); err != nil {
		log.Error().Err(err).Str("action", string(action)).Msg("failed to record audit entry")
	}
}

// List returns entries newest first
func (a *App) List(ctx context.Context, filter Filter) ([]models.AuditEntry, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	entries, err := a.repo.ListAuditEntries(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	return entries, nil
}
