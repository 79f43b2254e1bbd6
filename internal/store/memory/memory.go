// Package memory provides a store.Driver keeping everything in process
// memory. It backs local play and tests where standing up Postgres is
// not worth it; data does not survive a restart.
package memory

import (
	"context"

	"github.com/gavelhq/gavel/internal/clock"
	"github.com/gavelhq/gavel/internal/config"
	"github.com/gavelhq/gavel/internal/store"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func init() {
	store.Register("memory", openMemory)
}

// openMemory is the store.Driver for the "memory" backend.
func openMemory(_ context.Context, _ config.DatabaseConfig, clk clock.Clock) (*store.Repositories, error) {
	return &store.Repositories{
		Users:   NewUserRepo(clk),
		Rooms:   NewRoomRepo(clk),
		Results: NewResultRepo(),
		Events:  NewEventStore(),
		Closer:  closerFunc(func() error { return nil }),
		Ping:    func(context.Context) error { return nil },
	}, nil
}
