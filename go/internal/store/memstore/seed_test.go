package memstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/gavel/go/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedYAML = `
users:
  - id: 11111111-1111-1111-1111-111111111111
    name: Admin
    email: admin@example.com
    role: ADMIN
  - name: Alice
    email: alice@example.com
categories:
  - id: 22222222-2222-2222-2222-222222222222
    name: Art
items:
  - id: 33333333-3333-3333-3333-333333333333
    name: Vase
    category: 22222222-2222-2222-2222-222222222222
    initial_value: "100.00"
    minimum_increment: "10"
  - id: 44444444-4444-4444-4444-444444444444
    name: Lamp
    category: 22222222-2222-2222-2222-222222222222
    initial_value: "50"
    minimum_increment: "5"
auctions:
  - id: 55555555-5555-5555-5555-555555555555
    name: Evening sale
    created_by: 11111111-1111-1111-1111-111111111111
    items:
      - 33333333-3333-3333-3333-333333333333
      - 44444444-4444-4444-4444-444444444444
    start_in: 10m
    duration: 1h
`

func TestSeedApply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))

	seed, err := LoadSeedFile(path)
	require.NoError(t, err)

	ctx := context.Background()
	now := time.Date(2024, time.March, 1, 18, 0, 0, 0, time.UTC)
	s := New()
	require.NoError(t, s.Apply(ctx, seed, now))

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, models.UserRoleAdmin, users[0].Role)
	assert.Equal(t, models.UserRoleParticipant, users[1].Role, "role defaults to participant")

	vase, err := s.GetItem(ctx, uuid.MustParse("33333333-3333-3333-3333-333333333333"))
	require.NoError(t, err)
	assert.True(t, vase.CurrentValue.Equal(decimal.RequireFromString("100")))

	auction, err := s.GetAuction(ctx, uuid.MustParse("55555555-5555-5555-5555-555555555555"))
	require.NoError(t, err)
	assert.Equal(t, models.AuctionStatusScheduled, auction.Status)
	assert.Equal(t, now.Add(10*time.Minute), auction.StartDate)
	assert.Equal(t, now.Add(70*time.Minute), auction.ExpectedEndDate)
	require.Len(t, auction.Items, 2)
	assert.Equal(t, "Vase", auction.Items[0].Name)
	assert.Equal(t, auction.ID, *vase.AuctionID)
}

func TestSeedApplyRejectsBadRecords(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "bad user id", yaml: "users:\n  - id: nope\n    name: X\n"},
		{name: "unknown category", yaml: "items:\n  - name: X\n    category: nope\n    initial_value: \"1\"\n    minimum_increment: \"1\"\n"},
		{name: "bad amount", yaml: "categories:\n  - id: 22222222-2222-2222-2222-222222222222\n    name: Art\nitems:\n  - name: X\n    category: 22222222-2222-2222-2222-222222222222\n    initial_value: lots\n    minimum_increment: \"1\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "seed.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o600))
			seed, err := LoadSeedFile(path)
			require.NoError(t, err)
			assert.Error(t, New().Apply(context.Background(), seed, time.Now()))
		})
	}
}
