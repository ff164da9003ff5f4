package handlers

import (
	"context"
	"time"

	"github.com/rankforge/rankforge/internal/models"
	"github.com/rankforge/rankforge/internal/storage"
	"github.com/rankforge/rankforge/internal/worker"
)

type mockQueue struct {
	jobs   []worker.Job
	reject bool
	depth  int
}

func (m *mockQueue) Enqueue(job worker.Job) bool {
	if m.reject {
		return false
	}
	m.jobs = append(m.jobs, job)
	return true
}

func (m *mockQueue) QueueDepth() int { return m.depth }

// mockStore implements storage.Store with overridable funcs; unset methods
// return zero values.
type mockStore struct {
	playerStatsFunc func(ctx context.Context, steamID string) (*models.PlayerStats, error)
	gameFunc        func(ctx context.Context, id int64) (*models.Game, error)
	gameEventsFunc  func(ctx context.Context, gameID int64) ([]*models.GameEvent, error)
	accoladesFunc   func(ctx context.Context, gameID int64) ([]*models.Accolade, error)
	topPlayersFunc  func(ctx context.Context, limit int) ([]models.PlayerStats, error)
	pingErr         error
}

func (m *mockStore) WithTx(ctx context.Context, fn func(storage.Tx) error) error { return nil }

func (m *mockStore) FindGameOverEvent(ctx context.Context, ts time.Time) (*models.GameEvent, error) {
	return nil, nil
}

func (m *mockStore) Game(ctx context.Context, id int64) (*models.Game, error) {
	if m.gameFunc != nil {
		return m.gameFunc(ctx, id)
	}
	return nil, storage.ErrNotFound
}

func (m *mockStore) GameEvents(ctx context.Context, gameID int64) ([]*models.GameEvent, error) {
	if m.gameEventsFunc != nil {
		return m.gameEventsFunc(ctx, gameID)
	}
	return nil, nil
}

func (m *mockStore) Accolades(ctx context.Context, gameID int64) ([]*models.Accolade, error) {
	if m.accoladesFunc != nil {
		return m.accoladesFunc(ctx, gameID)
	}
	return nil, nil
}

func (m *mockStore) PlayerStats(ctx context.Context, steamID string) (*models.PlayerStats, error) {
	if m.playerStatsFunc != nil {
		return m.playerStatsFunc(ctx, steamID)
	}
	return nil, storage.ErrNotFound
}

func (m *mockStore) TopPlayers(ctx context.Context, limit int) ([]models.PlayerStats, error) {
	if m.topPlayersFunc != nil {
		return m.topPlayersFunc(ctx, limit)
	}
	return nil, nil
}

func (m *mockStore) Ping(ctx context.Context) error { return m.pingErr }

type mockLeaderboard struct {
	limit   int
	players []models.PlayerStats
	err     error
}

func (m *mockLeaderboard) Top(ctx context.Context, limit int) ([]models.PlayerStats, error) {
	m.limit = limit
	return m.players, m.err
}
