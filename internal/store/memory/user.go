package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/gavelhq/gavel/internal/clock"
	"github.com/gavelhq/gavel/internal/store"
)

// UserRepo implements store.UserRepository in memory.
type UserRepo struct {
	mu    sync.RWMutex
	clk   clock.Clock
	users map[string]store.User // keyed by id
}

// NewUserRepo returns an empty in-memory user repository.
func NewUserRepo(clk clock.Clock) *UserRepo {
	return &UserRepo{clk: clk, users: map[string]store.User{}}
}

func (r *UserRepo) Create(_ context.Context, u *store.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Username == u.Username {
			return fmt.Errorf("username %q already taken", u.Username)
		}
	}
	u.ID = uuid.NewString()
	u.CreatedAt = r.clk.Now().UTC()
	r.users[u.ID] = *u
	return nil
}

func (r *UserRepo) GetByID(_ context.Context, id string) (*store.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s not found", id)
	}
	return &u, nil
}

func (r *UserRepo) GetByUsername(_ context.Context, username string) (*store.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Username == username {
			cp := u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("user %q not found", username)
}
