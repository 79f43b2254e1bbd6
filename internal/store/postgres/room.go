package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/gavelhq/gavel/internal/clock"
	"github.com/gavelhq/gavel/internal/store"
)

// RoomRepo implements store.RoomRepository with sqlx.
type RoomRepo struct {
	db  *sqlx.DB
	clk clock.Clock
}

// NewRoomRepo returns a new RoomRepo.
func NewRoomRepo(db *sqlx.DB, clk clock.Clock) *RoomRepo {
	return &RoomRepo{db: db, clk: clk}
}

func (r *RoomRepo) Create(ctx context.Context, room *store.Room) error {
	query := `INSERT INTO rooms (name, host_id, status, created_at)
	           VALUES ($1, $2, $3, $4) RETURNING id`
	room.CreatedAt = r.clk.Now().UTC()
	room.Status = store.RoomOpen
	return r.db.QueryRowContext(ctx, query, room.Name, room.HostID, room.Status, room.CreatedAt).Scan(&room.ID)
}

func (r *RoomRepo) GetByID(ctx context.Context, id string) (*store.Room, error) {
	var room store.Room
	err := r.db.GetContext(ctx, &room, `SELECT * FROM rooms WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("getting room: %w", err)
	}
	return &room, nil
}

func (r *RoomRepo) List(ctx context.Context) ([]store.Room, error) {
	var rooms []store.Room
	err := r.db.SelectContext(ctx, &rooms, `SELECT * FROM rooms ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing rooms: %w", err)
	}
	return rooms, nil
}

func (r *RoomRepo) SetStatus(ctx context.Context, id string, status string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE rooms SET status = $1, started_at = COALESCE(started_at, $2) WHERE id = $3`,
		status, at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating room status: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("room %s not found", id)
	}
	return nil
}

func (r *RoomRepo) UpsertParticipant(ctx context.Context, p *store.Participant) error {
	query := `INSERT INTO participants (room_id, user_id, team_id, joined_at)
	           VALUES ($1, $2, $3, $4)
	           ON CONFLICT (room_id, user_id) DO UPDATE SET team_id = EXCLUDED.team_id
	           RETURNING id`
	p.JoinedAt = r.clk.Now().UTC()
	return r.db.QueryRowContext(ctx, query, p.RoomID, p.UserID, p.TeamID, p.JoinedAt).Scan(&p.ID)
}

func (r *RoomRepo) RemoveParticipant(ctx context.Context, roomID, userID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM participants WHERE room_id = $1 AND user_id = $2`, roomID, userID)
	if err != nil {
		return fmt.Errorf("removing participant: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("user %s is not in room %s", userID, roomID)
	}
	return nil
}

func (r *RoomRepo) Participants(ctx context.Context, roomID string) ([]store.Participant, error) {
	var participants []store.Participant
	err := r.db.SelectContext(ctx, &participants,
		`SELECT * FROM participants WHERE room_id = $1 ORDER BY joined_at ASC`, roomID)
	if err != nil {
		return nil, fmt.Errorf("listing participants: %w", err)
	}
	return participants, nil
}
