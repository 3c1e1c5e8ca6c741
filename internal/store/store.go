// Package store persists rooms for the room server.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no room has the requested id.
var ErrNotFound = errors.New("store: room not found")

// Room is one collaborative document.
type Room struct {
	ID          string    `json:"room_id"`
	Code        string    `json:"code"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	ActiveUsers int       `json:"active_users"`
}

// Store is implemented by Bolt and Postgres.
type Store interface {
	// Create stores a new empty room under a fresh id.
	Create(ctx context.Context) (Room, error)
	Get(ctx context.Context, id string) (Room, error)
	// UpdateCode replaces the room's document.
	UpdateCode(ctx context.Context, id, code string) error
	// AdjustActiveUsers adds delta to the active-user count, flooring at zero,
	// and returns the new count.
	AdjustActiveUsers(ctx context.Context, id string, delta int) (int, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

func newRoom(now time.Time) Room {
	return Room{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
}
