// Package store owns session persistence: a versioned session blob per
// game and an append-only price-history series per (session, resource).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/oakbridge-games/homestead/internal/game"
)

var (
	// ErrNotFound means no session exists for the given code.
	ErrNotFound = errors.New("session not found")

	// ErrConflict means another writer committed the session since it was
	// read. Callers must re-read and retry, never drop the mutation.
	ErrConflict = errors.New("session version conflict")
)

// SessionStore is the single shared mutable resource of the system. Get
// returns a private copy; Commit applies it back only if the stored
// version still matches, bumping the version on success.
type SessionStore interface {
	Get(ctx context.Context, code string) (*game.Session, error)
	Put(ctx context.Context, s *game.Session) error
	Commit(ctx context.Context, s *game.Session) error
	Delete(ctx context.Context, code string) error

	// ListInProgress returns codes of sessions the schedulers should scan.
	ListInProgress(ctx context.Context) ([]string, error)
}

// PriceHistory is the bounded momentum-lookback log. Append is fire and
// forget from the engines' perspective; Window returns samples no older
// than since, oldest first.
type PriceHistory interface {
	Append(ctx context.Context, code string, res game.Resource, rec game.PriceRecord) error
	Window(ctx context.Context, code string, res game.Resource, since time.Time) ([]game.PriceRecord, error)
	LastPrice(ctx context.Context, code string, res game.Resource) (game.PriceRecord, bool)
}
