// Package storage defines the narrow persistence contract the ingest core
// consumes, plus its drivers. The core never knows whether the driver is
// SQL, columnar or in-memory.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rankforge/rankforge/internal/models"
)

// ErrNotFound is returned by lookups that matched nothing.
var ErrNotFound = errors.New("storage: not found")

// Tx is the transactional slice of the contract. All inserts assign
// monotonic ids in order; a batch keeps its input order.
type Tx interface {
	// InsertGame inserts the game and assigns its ID.
	InsertGame(ctx context.Context, g *models.Game) error
	// InsertGameEvents batch-inserts events in order with stable id
	// assignment. GameID/RoundStartID must be patched before the call.
	InsertGameEvents(ctx context.Context, evs []*models.GameEvent) error
	// InsertAccolades batch-inserts accolades in order.
	InsertAccolades(ctx context.Context, accs []*models.Accolade) error
	// UpsertPlayerStats runs fn against the current row for steamID (a
	// fresh zero row for new players) under per-key serialization, and
	// persists the result.
	UpsertPlayerStats(ctx context.Context, steamID string, fn func(*models.PlayerStats)) error
}

// Store is the full contract. WithTx wraps fn in one transaction: an error
// rolls every write back.
type Store interface {
	WithTx(ctx context.Context, fn func(Tx) error) error

	// FindGameOverEvent returns a committed game_over event with exactly
	// this timestamp, or (nil, nil) when none exists. The ingest admission
	// filter uses it to suppress duplicate re-ingests.
	FindGameOverEvent(ctx context.Context, ts time.Time) (*models.GameEvent, error)

	Game(ctx context.Context, id int64) (*models.Game, error)
	GameEvents(ctx context.Context, gameID int64) ([]*models.GameEvent, error)
	Accolades(ctx context.Context, gameID int64) ([]*models.Accolade, error)
	PlayerStats(ctx context.Context, steamID string) (*models.PlayerStats, error)
	TopPlayers(ctx context.Context, limit int) ([]models.PlayerStats, error)

	Ping(ctx context.Context) error
}

// transientError marks storage failures the caller may retry; the admission
// filter makes re-ingest after a failed commit idempotent.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return fmt.Sprintf("transient: %v", e.err) }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err (or anything it wraps) is retryable.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}
