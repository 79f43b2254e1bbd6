package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/gavelhq/gavel/internal/store"
)

// ResultRepo implements store.ResultRepository with sqlx.
type ResultRepo struct {
	db *sqlx.DB
}

// NewResultRepo returns a new ResultRepo.
func NewResultRepo(db *sqlx.DB) *ResultRepo {
	return &ResultRepo{db: db}
}

func (r *ResultRepo) Save(ctx context.Context, res *store.Result) error {
	query := `INSERT INTO results (room_id, player_id, category, status, sold_to, sold_for, resolved_at)
	           VALUES ($1, $2, $3, $4, $5, $6, $7)
	           ON CONFLICT (room_id, player_id) DO UPDATE
	              SET status = EXCLUDED.status,
	                  sold_to = EXCLUDED.sold_to,
	                  sold_for = EXCLUDED.sold_for,
	                  resolved_at = EXCLUDED.resolved_at
	           RETURNING id`
	return r.db.QueryRowContext(ctx, query,
		res.RoomID, res.PlayerID, res.Category, res.Status, res.SoldTo, res.SoldFor, res.ResolvedAt.UTC(),
	).Scan(&res.ID)
}

func (r *ResultRepo) ListByRoom(ctx context.Context, roomID string) ([]store.Result, error) {
	var results []store.Result
	err := r.db.SelectContext(ctx, &results,
		`SELECT * FROM results WHERE room_id = $1 ORDER BY resolved_at ASC`, roomID)
	if err != nil {
		return nil, fmt.Errorf("listing results: %w", err)
	}
	return results, nil
}
