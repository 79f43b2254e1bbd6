package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/gavelhq/gavel/internal/clock"
	"github.com/gavelhq/gavel/internal/store"
)

// UserRepo implements store.UserRepository with sqlx.
type UserRepo struct {
	db  *sqlx.DB
	clk clock.Clock
}

// NewUserRepo returns a new UserRepo.
func NewUserRepo(db *sqlx.DB, clk clock.Clock) *UserRepo {
	return &UserRepo{db: db, clk: clk}
}

func (r *UserRepo) Create(ctx context.Context, u *store.User) error {
	query := `INSERT INTO users (username, password_hash, created_at)
	           VALUES ($1, $2, $3)
	           RETURNING id`
	u.CreatedAt = r.clk.Now().UTC()
	return r.db.QueryRowContext(ctx, query, u.Username, u.PasswordHash, u.CreatedAt).Scan(&u.ID)
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*store.User, error) {
	var u store.User
	err := r.db.GetContext(ctx, &u, `SELECT * FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("getting user by id: %w", err)
	}
	return &u, nil
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*store.User, error) {
	var u store.User
	err := r.db.GetContext(ctx, &u, `SELECT * FROM users WHERE username = $1`, username)
	if err != nil {
		return nil, fmt.Errorf("getting user by username: %w", err)
	}
	return &u, nil
}
