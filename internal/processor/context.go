// Package processor turns the parser's event stream into committed matches.
// All state accumulates in an in-memory match context and reaches storage in
// a single transaction when the terminal sentinel arrives, so a mid-match
// failure leaves no partial rows behind.
package processor

import (
	"github.com/rankforge/rankforge/internal/models"
	"github.com/rankforge/rankforge/internal/parser"
)

// matchContext is the scratchpad for the match currently being replayed.
// It is owned by a single pipeline and is never shared across goroutines.
type matchContext struct {
	game      *models.Game
	round     *models.GameEvent
	events    []*models.GameEvent
	accolades []*models.Accolade

	// nameToSteamID resolves accolade lines, which identify players by
	// name only. Built from every player reference seen during the match.
	nameToSteamID map[string]string

	roundNumber int

	// Bomb state for the current round.
	bombPlanted bool
	planter     parser.PlayerRef
}

func newMatchContext() *matchContext {
	return &matchContext{nameToSteamID: make(map[string]string)}
}

// reset discards all accumulated state, after a commit or an error alike.
func (mc *matchContext) reset() {
	*mc = *newMatchContext()
}

// recordPlayer remembers a name to steam-id mapping. Bots carry no steam id
// and are not recorded.
func (mc *matchContext) recordPlayer(ref parser.PlayerRef) {
	if ref.IsBot() || ref.Name == "" {
		return
	}
	mc.nameToSteamID[ref.Name] = ref.SteamID
}

// add appends a pending event, wiring the in-memory parent pointers that the
// commit pass later patches into foreign keys.
func (mc *matchContext) add(ev *models.GameEvent) {
	ev.Game = mc.game
	if ev.Kind != models.EventRoundStart && ev.Kind != models.EventGameOver {
		ev.Round = mc.round
	}
	mc.events = append(mc.events, ev)
}
