// Package users is the user directory: display names, roles and the
// blocked flag that gates bidding and realtime access.
package users

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/gavel/go/internal/apperr"
	"github.com/mcdev12/gavel/go/internal/models"
	"github.com/rs/zerolog/log"
)

// UsersRepository defines what the app layer needs from the repository
type UsersRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	SetUserStatus(ctx context.Context, id uuid.UUID, status models.UserStatus) (*models.User, error)
}

// App handles users business logic
type App struct {
	repo UsersRepository
}

// NewApp creates a new users App
func NewApp(repo UsersRepository) *App {
	return &App{
		repo: repo,
	}
}

// CreateUser creates a new user with validation
func (a *App) CreateUser(ctx context.Context, req CreateUserRequest) (*models.User, error) {
	if err := validateCreateUserRequest(req); err != nil {
		return nil, err
	}
	role := req.Role
	if role == "" {
		role = models.UserRoleParticipant
	}

	user := &models.User{
		ID:        uuid.New(),
		Name:      strings.TrimSpace(req.Name),
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		Role:      role,
		Status:    models.UserStatusActive,
		CreatedAt: time.Now(),
	}
	if err := a.repo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	log.Info().Str("user_id", user.ID.String()).Str("role", string(user.Role)).Msg("created user")
	return user, nil
}

// GetUser retrieves a user by ID
func (a *App) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := a.repo.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// ListUsers lists all users
func (a *App) ListUsers(ctx context.Context) ([]models.User, error) {
	users, err := a.repo.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// Block stops a participant from bidding or connecting. Admins cannot be blocked.
func (a *App) Block(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := a.repo.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.IsAdmin() {
		return nil, apperr.State("admin %s cannot be blocked", id)
	}
	if user.IsBlocked() {
		return nil, apperr.State("user %s is already blocked", id)
	}
	return a.repo.SetUserStatus(ctx, id, models.UserStatusBlocked)
}

// Unblock restores a blocked user.
func (a *App) Unblock(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := a.repo.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if !user.IsBlocked() {
		return nil, apperr.State("user %s is not blocked", id)
	}
	return a.repo.SetUserStatus(ctx, id, models.UserStatusActive)
}

func validateCreateUserRequest(req CreateUserRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return apperr.Validation("name is required")
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return apperr.Validation("email %q is invalid", req.Email)
	}
	switch req.Role {
	case "", models.UserRoleAdmin, models.UserRoleParticipant:
		return nil
	default:
		return apperr.Validation("invalid role: %s", req.Role)
	}
}
