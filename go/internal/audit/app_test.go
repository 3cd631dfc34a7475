package audit_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/gavel/go/internal/audit"
	"github.com/mcdev12/gavel/go/internal/models"
	"github.com/mcdev12/gavel/go/internal/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndList(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2024, time.March, 1, 18, 0, 0, 0, time.UTC))
	app := audit.NewApp(memstore.New(), clock)

	alice, bob := uuid.New(), uuid.New()
	app.Record(ctx, models.AuditBidPlaced, &alice, map[string]string{"amount": "110.00"})
	clock.Advance(time.Second)
	app.Record(ctx, models.AuditBidPlaced, &bob, map[string]string{"amount": "120.00"})
	clock.Advance(time.Second)
	app.Record(ctx, models.AuditAuctionEnded, nil, nil)

	all, err := app.List(ctx, audit.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, models.AuditAuctionEnded, all[0].Action, "newest first")
	assert.Nil(t, all[0].UserID)
	assert.Empty(t, all[0].Metadata)
	assert.Equal(t, clock.Now(), all[0].CreatedAt)

	action := models.AuditBidPlaced
	bids, err := app.List(ctx, audit.Filter{Action: &action})
	require.NoError(t, err)
	assert.Len(t, bids, 2)

	mine, err := app.List(ctx, audit.Filter{UserID: &alice})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	var metadata map[string]string
	require.NoError(t, json.Unmarshal(mine[0].Metadata, &metadata))
	assert.Equal(t, "110.00", metadata["amount"])

	limited, err := app.List(ctx, audit.Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRecordSwallowsUnencodableMetadata(t *testing.T) {
	ctx := context.Background()
	app := audit.NewApp(memstore.New(), nil)

	app.Record(ctx, models.AuditUserBlocked, nil, map[string]any{"bad": make(chan int)})

	entries, err := app.List(ctx, audit.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].Metadata)
}
