package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gavelhq/gavel/internal/clock"
	"github.com/gavelhq/gavel/internal/store"
)

// RoomRepo implements store.RoomRepository in memory.
type RoomRepo struct {
	mu           sync.RWMutex
	clk          clock.Clock
	rooms        map[string]store.Room
	participants map[string][]store.Participant // keyed by room id
}

// NewRoomRepo returns an empty in-memory room repository.
func NewRoomRepo(clk clock.Clock) *RoomRepo {
	return &RoomRepo{
		clk:          clk,
		rooms:        map[string]store.Room{},
		participants: map[string][]store.Participant{},
	}
}

func (r *RoomRepo) Create(_ context.Context, room *store.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	room.ID = uuid.NewString()
	room.Status = store.RoomOpen
	room.CreatedAt = r.clk.Now().UTC()
	r.rooms[room.ID] = *room
	return nil
}

func (r *RoomRepo) GetByID(_ context.Context, id string) (*store.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[id]
	if !ok {
		return nil, fmt.Errorf("room %s not found", id)
	}
	return &room, nil
}

func (r *RoomRepo) List(_ context.Context) ([]store.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rooms := make([]store.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].CreatedAt.After(rooms[j].CreatedAt) })
	return rooms, nil
}

func (r *RoomRepo) SetStatus(_ context.Context, id string, status string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	if !ok {
		return fmt.Errorf("room %s not found", id)
	}
	room.Status = status
	if room.StartedAt == nil {
		utc := at.UTC()
		room.StartedAt = &utc
	}
	r.rooms[id] = room
	return nil
}

func (r *RoomRepo) UpsertParticipant(_ context.Context, p *store.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	parts := r.participants[p.RoomID]
	for i := range parts {
		if parts[i].UserID == p.UserID {
			parts[i].TeamID = p.TeamID
			p.ID = parts[i].ID
			p.JoinedAt = parts[i].JoinedAt
			return nil
		}
	}
	p.ID = uuid.NewString()
	p.JoinedAt = r.clk.Now().UTC()
	r.participants[p.RoomID] = append(parts, *p)
	return nil
}

func (r *RoomRepo) RemoveParticipant(_ context.Context, roomID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	parts := r.participants[roomID]
	for i := range parts {
		if parts[i].UserID == userID {
			r.participants[roomID] = append(parts[:i], parts[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("user %s is not in room %s", userID, roomID)
}

func (r *RoomRepo) Participants(_ context.Context, roomID string) ([]store.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]store.Participant(nil), r.participants[roomID]...), nil
}
