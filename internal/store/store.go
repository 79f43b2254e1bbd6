package store

import (
	"context"
	"time"
)

// User represents a registered account.
type User struct {
	ID           string    `db:"id"`
	Username     string    `db:"username"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
}

// Room represents an auction room record.
type Room struct {
	ID        string     `db:"id"`
	Name      string     `db:"name"`
	HostID    string     `db:"host_id"`
	Status    string     `db:"status"` // "open", "running", "completed"
	CreatedAt time.Time  `db:"created_at"`
	StartedAt *time.Time `db:"started_at"`
}

// Room statuses.
const (
	RoomOpen      = "open"
	RoomRunning   = "running"
	RoomCompleted = "completed"
)

// Participant ties a user to the team they control in a room.
type Participant struct {
	ID       string    `db:"id"`
	RoomID   string    `db:"room_id"`
	UserID   string    `db:"user_id"`
	TeamID   string    `db:"team_id"`
	JoinedAt time.Time `db:"joined_at"`
}

// Result records how one lot closed in a room. SoldTo/SoldFor are nil
// for unsold lots.
type Result struct {
	ID         string    `db:"id"`
	RoomID     string    `db:"room_id"`
	PlayerID   string    `db:"player_id"`
	Category   string    `db:"category"`
	Status     string    `db:"status"` // "SOLD" or "UNSOLD"
	SoldTo     *string   `db:"sold_to"`
	SoldFor    *int      `db:"sold_for"`
	ResolvedAt time.Time `db:"resolved_at"`
}

// UserRepository defines user persistence operations.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
}

// RoomRepository defines room and participant persistence operations.
type RoomRepository interface {
	Create(ctx context.Context, r *Room) error
	GetByID(ctx context.Context, id string) (*Room, error)
	List(ctx context.Context) ([]Room, error)
	SetStatus(ctx context.Context, id string, status string, at time.Time) error
	// UpsertParticipant inserts the participant, or moves an existing
	// (room, user) pair onto a new team.
	UpsertParticipant(ctx context.Context, p *Participant) error
	// RemoveParticipant deletes the (room, user) entry; it errors when
	// the user is not in the room.
	RemoveParticipant(ctx context.Context, roomID, userID string) error
	Participants(ctx context.Context, roomID string) ([]Participant, error)
}

// ResultRepository defines auction result persistence operations.
type ResultRepository interface {
	Save(ctx context.Context, r *Result) error
	ListByRoom(ctx context.Context, roomID string) ([]Result, error)
}
