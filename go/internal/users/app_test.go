package users_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/mcdev12/gavel/go/internal/apperr"
	"github.com/mcdev12/gavel/go/internal/models"
	"github.com/mcdev12/gavel/go/internal/store/memstore"
	"github.com/mcdev12/gavel/go/internal/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUser(t *testing.T) {
	ctx := context.Background()
	app := users.NewApp(memstore.New())

	user, err := app.CreateUser(ctx, users.CreateUserRequest{Name: "  Alice ", Email: "Alice@Example.com"})
	require.NoError(t, err)
	assert.Equal(t, "Alice", user.Name)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, models.UserRoleParticipant, user.Role)
	assert.Equal(t, models.UserStatusActive, user.Status)

	got, err := app.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, got.Email)

	tests := []struct {
		name string
		req  users.CreateUserRequest
	}{
		{name: "missing name", req: users.CreateUserRequest{Email: "a@example.com"}},
		{name: "bad email", req: users.CreateUserRequest{Name: "A", Email: "not-an-email"}},
		{name: "bad role", req: users.CreateUserRequest{Name: "A", Email: "a@example.com", Role: "OWNER"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := app.CreateUser(ctx, tt.req)
			assert.True(t, apperr.IsKind(err, apperr.KindValidation), "got %v", err)
		})
	}
}

func TestBlockAndUnblock(t *testing.T) {
	ctx := context.Background()
	app := users.NewApp(memstore.New())

	admin, err := app.CreateUser(ctx, users.CreateUserRequest{Name: "Admin", Email: "admin@example.com", Role: models.UserRoleAdmin})
	require.NoError(t, err)
	bob, err := app.CreateUser(ctx, users.CreateUserRequest{Name: "Bob", Email: "bob@example.com"})
	require.NoError(t, err)

	blocked, err := app.Block(ctx, bob.ID)
	require.NoError(t, err)
	assert.True(t, blocked.IsBlocked())

	_, err = app.Block(ctx, bob.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindState), "already blocked")

	_, err = app.Block(ctx, admin.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindState), "admins cannot be blocked")

	_, err = app.Block(ctx, uuid.New())
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	active, err := app.Unblock(ctx, bob.ID)
	require.NoError(t, err)
	assert.False(t, active.IsBlocked())

	_, err = app.Unblock(ctx, bob.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindState), "not blocked")

	all, err := app.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
