package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/gavelhq/gavel/internal/store"
)

// ResultRepo implements store.ResultRepository in memory.
type ResultRepo struct {
	mu      sync.RWMutex
	results map[string][]store.Result // keyed by room id
}

// NewResultRepo returns an empty in-memory result repository.
func NewResultRepo() *ResultRepo {
	return &ResultRepo{results: map[string][]store.Result{}}
}

func (r *ResultRepo) Save(_ context.Context, res *store.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.results[res.RoomID]
	for i := range list {
		if list[i].PlayerID == res.PlayerID {
			res.ID = list[i].ID
			list[i] = *res
			return nil
		}
	}
	res.ID = uuid.NewString()
	r.results[res.RoomID] = append(list, *res)
	return nil
}

func (r *ResultRepo) ListByRoom(_ context.Context, roomID string) ([]store.Result, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := append([]store.Result(nil), r.results[roomID]...)
	sort.Slice(list, func(i, j int) bool { return list[i].ResolvedAt.Before(list[j].ResolvedAt) })
	return list, nil
}
