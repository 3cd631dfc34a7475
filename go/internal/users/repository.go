package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/gavel/go/internal/apperr"
	"github.com/mcdev12/gavel/go/internal/models"
)

const userColumns = `id, name, email, role, status, created_at`

// Repository implements user data access operations
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new users repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{
		pool: pool,
	}
}

// CreateUser creates a new user
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Name, user.Email, string(user.Role), string(user.Status), user.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperr.Conflict("user with email %s already exists", user.Email)
	}
	return err
}

// GetUser retrieves a user by ID
func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// ListUsers lists users by name
func (r *Repository) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// SetUserStatus changes a user's status
func (r *Repository) SetUserStatus(ctx context.Context, id uuid.UUID, status models.UserStatus) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `UPDATE users SET status = $2 WHERE id = $1 RETURNING `+userColumns,
		id, string(status)))
}

func scanUser(row pgx.Row) (*models.User, error) {
	var (
		u      models.User
		role   string
		status string
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &role, &status, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	u.Role = models.UserRole(role)
	u.Status = models.UserStatus(status)
	return &u, nil
}
