package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rankforge/rankforge/internal/models"
)

// Memory is the in-memory driver, used by tests and dry runs. A store-wide
// mutex held for the duration of WithTx gives the same single-writer
// serialization the SQL driver gets from row locks.
type Memory struct {
	mu        sync.Mutex
	games     map[int64]*models.Game
	events    []*models.GameEvent
	accolades []*models.Accolade
	players   map[string]*models.PlayerStats

	nextGameID     int64
	nextEventID    int64
	nextAccoladeID int64
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		games:   make(map[int64]*models.Game),
		players: make(map[string]*models.PlayerStats),
	}
}

// memTx stages writes so a failed transaction leaves the store untouched.
// ID counters advance on the staged copy and are only adopted on commit.
type memTx struct {
	store *Memory

	games     []*models.Game
	events    []*models.GameEvent
	accolades []*models.Accolade
	players   map[string]*models.PlayerStats

	nextGameID     int64
	nextEventID    int64
	nextAccoladeID int64
}

func (m *Memory) WithTx(ctx context.Context, fn func(Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{
		store:          m,
		players:        make(map[string]*models.PlayerStats),
		nextGameID:     m.nextGameID,
		nextEventID:    m.nextEventID,
		nextAccoladeID: m.nextAccoladeID,
	}

	if err := fn(tx); err != nil {
		return err
	}

	// Adopt staged state.
	for _, g := range tx.games {
		cp := *g
		m.games[g.ID] = &cp
	}
	for _, ev := range tx.events {
		cp := *ev
		cp.Game, cp.Round = nil, nil
		m.events = append(m.events, &cp)
	}
	for _, a := range tx.accolades {
		cp := *a
		cp.Game = nil
		m.accolades = append(m.accolades, &cp)
	}
	for id, ps := range tx.players {
		cp := *ps
		m.players[id] = &cp
	}
	m.nextGameID = tx.nextGameID
	m.nextEventID = tx.nextEventID
	m.nextAccoladeID = tx.nextAccoladeID
	return nil
}

func (tx *memTx) InsertGame(ctx context.Context, g *models.Game) error {
	tx.nextGameID++
	g.ID = tx.nextGameID
	tx.games = append(tx.games, g)
	return nil
}

func (tx *memTx) InsertGameEvents(ctx context.Context, evs []*models.GameEvent) error {
	for _, ev := range evs {
		tx.nextEventID++
		ev.ID = tx.nextEventID
		tx.events = append(tx.events, ev)
	}
	return nil
}

func (tx *memTx) InsertAccolades(ctx context.Context, accs []*models.Accolade) error {
	for _, a := range accs {
		tx.nextAccoladeID++
		a.ID = tx.nextAccoladeID
		tx.accolades = append(tx.accolades, a)
	}
	return nil
}

func (tx *memTx) UpsertPlayerStats(ctx context.Context, steamID string, fn func(*models.PlayerStats)) error {
	ps, ok := tx.players[steamID]
	if !ok {
		if committed, exists := tx.store.players[steamID]; exists {
			cp := *committed
			ps = &cp
		} else {
			ps = &models.PlayerStats{SteamID: steamID}
		}
		tx.players[steamID] = ps
	}
	fn(ps)
	return nil
}

func (m *Memory) FindGameOverEvent(ctx context.Context, ts time.Time) (*models.GameEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range m.events {
		if ev.Kind == models.EventGameOver && ev.Timestamp.Equal(ts) {
			cp := *ev
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Memory) Game(ctx context.Context, id int64) (*models.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (m *Memory) GameEvents(ctx context.Context, gameID int64) ([]*models.GameEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.GameEvent
	for _, ev := range m.events {
		if ev.GameID == gameID {
			cp := *ev
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Memory) Accolades(ctx context.Context, gameID int64) ([]*models.Accolade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Accolade
	for _, a := range m.accolades {
		if a.GameID == gameID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Memory) PlayerStats(ctx context.Context, steamID string) (*models.PlayerStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ps, ok := m.players[steamID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *ps
	return &cp, nil
}

func (m *Memory) TopPlayers(ctx context.Context, limit int) ([]models.PlayerStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.PlayerStats, 0, len(m.players))
	for _, ps := range m.players {
		out = append(out, *ps)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank > out[j].Rank
		}
		return out[i].Kills > out[j].Kills
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

// GameCount reports committed games; test helper.
func (m *Memory) GameCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.games)
}

// EventCount reports committed event rows; test helper.
func (m *Memory) EventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// AccoladeCount reports committed accolade rows; test helper.
func (m *Memory) AccoladeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.accolades)
}
