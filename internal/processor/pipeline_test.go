package processor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/rankforge/rankforge/internal/logic"
	"github.com/rankforge/rankforge/internal/models"
	"github.com/rankforge/rankforge/internal/parser"
	"github.com/rankforge/rankforge/internal/storage"
)

// matchLog builds a complete 1:1 match: a warmup fragment, two rounds with a
// kill, a bomb cycle and an assist, the score table, accolades, Game_Over.
func matchLog() []parser.Line {
	msgs := []string{
		`World triggered "Round_Start"`,
		`World triggered "Round_Start"`,
		`"Alice<2><[U:1:111]><CT>" [100 200 64] killed "Bob<3><[U:1:222]><TERRORIST>" [150 220 64] with "ak47" (headshot)`,
		`World triggered "Round_End"`,
		"JSON_BEGIN",
		"header_0", "header_1", "header_2", "header_3", "header_4", "header_5",
		"player_0: Alice, 75, 2",
		"JSON_END",
		`World triggered "Round_Start"`,
		`"Bob<3><[U:1:222]><TERRORIST>" triggered "Planted_The_Bomb"`,
		`"Alice<2><[U:1:111]><CT>" triggered "Defused_The_Bomb"`,
		`"Carol<4><[U:1:333]><CT>" assisted killing "Bob<3><[U:1:222]><TERRORIST>"`,
		`World triggered "Round_End"`,
	}
	for i := 1; i <= 6; i++ {
		msgs = append(msgs, fmt.Sprintf("ACCOLADE, FINAL: {award_%d}, Alice<2>, VALUE: 1.000000, POS: %d, SCORE: 20.000000", i, i))
	}
	msgs = append(msgs, "Game Over: competitive mg_active de_inferno score 1:1 after 12 min")

	base := time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)
	lines := make([]parser.Line, len(msgs))
	for i, msg := range msgs {
		lines[i] = parser.Line{Time: base.Add(time.Duration(i) * time.Second), Raw: msg}
	}
	return lines
}

func runLog(t *testing.T, store *storage.Memory, lines []parser.Line) error {
	t.Helper()
	ctx := context.Background()
	pipe := NewPipeline(store, logic.NewRatingEngine(zap.NewNop()), nil, zap.NewNop())
	sc := parser.NewScanner(lines, store, zap.NewNop())
	return sc.Run(ctx, func(ev parser.Event) error {
		return pipe.HandleEvent(ctx, ev)
	})
}

func TestPipelineCommitsMatch(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	if err := runLog(t, store, matchLog()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if store.GameCount() != 1 {
		t.Fatalf("games = %d, want 1", store.GameCount())
	}
	game, err := store.Game(ctx, 1)
	if err != nil {
		t.Fatalf("Game: %v", err)
	}
	if game.Map != "de_inferno" || game.Team1Score != 1 || game.Team2Score != 1 {
		t.Errorf("game = %+v", game)
	}
	if game.StartTime.IsZero() || !game.StartTime.Before(game.EndTime) {
		t.Errorf("start/end = %v / %v", game.StartTime, game.EndTime)
	}

	events, err := store.GameEvents(ctx, game.ID)
	if err != nil {
		t.Fatalf("GameEvents: %v", err)
	}

	byKind := map[models.EventKind][]*models.GameEvent{}
	for _, ev := range events {
		if ev.GameID != game.ID {
			t.Errorf("event %d has game id %d", ev.ID, ev.GameID)
		}
		byKind[ev.Kind] = append(byKind[ev.Kind], ev)
	}

	if n := len(byKind[models.EventRoundStart]); n != 2 {
		t.Errorf("round starts = %d, want 2", n)
	}
	if n := len(byKind[models.EventBomb]); n != 2 {
		t.Errorf("bomb events = %d, want 2", n)
	}
	if len(byKind[models.EventGameOver]) != 1 || len(byKind[models.EventGameProcessed]) != 1 {
		t.Errorf("sentinels: over=%d processed=%d",
			len(byKind[models.EventGameOver]), len(byKind[models.EventGameProcessed]))
	}

	kills := byKind[models.EventKill]
	if len(kills) != 1 {
		t.Fatalf("kills = %d, want 1", len(kills))
	}
	round1 := byKind[models.EventRoundStart][0]
	if round1.RoundNumber != 1 {
		t.Errorf("first round number = %d", round1.RoundNumber)
	}
	if kills[0].RoundStartID == nil || *kills[0].RoundStartID != round1.ID {
		t.Errorf("kill round fk = %v, want %d", kills[0].RoundStartID, round1.ID)
	}
	if byKind[models.EventGameOver][0].RoundStartID != nil {
		t.Error("game_over should not reference a round")
	}

	ends := byKind[models.EventRoundEnd]
	if len(ends) != 2 {
		t.Fatalf("round ends = %d, want 2", len(ends))
	}
	if len(ends[0].Survivors) != 1 || ends[0].Survivors[0] != "Alice" {
		t.Errorf("round 1 survivors = %v", ends[0].Survivors)
	}

	accs, err := store.Accolades(ctx, game.ID)
	if err != nil {
		t.Fatalf("Accolades: %v", err)
	}
	if len(accs) != 6 {
		t.Fatalf("accolades = %d, want 6", len(accs))
	}
	for _, a := range accs {
		if a.SteamID != "[U:1:111]" {
			t.Errorf("accolade %s steam id = %q, want resolved [U:1:111]", a.Type, a.SteamID)
		}
	}

	alice, err := store.PlayerStats(ctx, "[U:1:111]")
	if err != nil {
		t.Fatalf("PlayerStats: %v", err)
	}
	if alice.Kills != 1 || alice.HSKills != 1 || alice.GamesPlayed != 1 {
		t.Errorf("alice = %+v", alice)
	}
	if alice.Rank <= logic.BaseRank {
		t.Errorf("alice rank = %v, want above base", alice.Rank)
	}
}

func TestPipelineEventTimesWithinRound(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	if err := runLog(t, store, matchLog()); err != nil {
		t.Fatalf("run: %v", err)
	}

	events, err := store.GameEvents(ctx, 1)
	if err != nil {
		t.Fatalf("GameEvents: %v", err)
	}

	// Every in-round event must fall between its round's start and end.
	starts := map[int64]time.Time{}
	ends := map[int64]time.Time{}
	for _, ev := range events {
		switch ev.Kind {
		case models.EventRoundStart:
			starts[ev.ID] = ev.Timestamp
		case models.EventRoundEnd:
			if ev.RoundStartID == nil {
				t.Fatalf("round_end %d has no round fk", ev.ID)
			}
			ends[*ev.RoundStartID] = ev.Timestamp
		}
	}
	if len(starts) != 2 || len(ends) != 2 {
		t.Fatalf("rounds: starts=%d ends=%d, want 2/2", len(starts), len(ends))
	}

	checked := 0
	for _, ev := range events {
		switch ev.Kind {
		case models.EventKill, models.EventAssist, models.EventAttack, models.EventBomb:
		default:
			continue
		}
		if ev.RoundStartID == nil {
			t.Errorf("%s %d has no round fk", ev.Kind, ev.ID)
			continue
		}
		start, end := starts[*ev.RoundStartID], ends[*ev.RoundStartID]
		if ev.Timestamp.Before(start) || ev.Timestamp.After(end) {
			t.Errorf("%s %d at %v outside round [%v, %v]",
				ev.Kind, ev.ID, ev.Timestamp, start, end)
		}
		checked++
	}
	if checked == 0 {
		t.Fatal("no in-round events checked")
	}
}

func TestPipelineIdempotentReplay(t *testing.T) {
	store := storage.NewMemory()
	lines := matchLog()
	if err := runLog(t, store, lines); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := runLog(t, store, lines); err != nil {
		t.Fatalf("second run: %v", err)
	}

	if store.GameCount() != 1 {
		t.Fatalf("games after replay = %d, want 1", store.GameCount())
	}
	alice, err := store.PlayerStats(context.Background(), "[U:1:111]")
	if err != nil {
		t.Fatalf("PlayerStats: %v", err)
	}
	if alice.GamesPlayed != 1 {
		t.Errorf("games played after replay = %d, want 1", alice.GamesPlayed)
	}
}

type failingRater struct{}

func (failingRater) Apply(ctx context.Context, tx storage.Tx, game *models.Game, events []*models.GameEvent) error {
	return errors.New("rating blew up")
}

func TestPipelineRollsBackOnRatingError(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	pipe := NewPipeline(store, failingRater{}, nil, zap.NewNop())
	sc := parser.NewScanner(matchLog(), store, zap.NewNop())

	err := sc.Run(ctx, func(ev parser.Event) error {
		return pipe.HandleEvent(ctx, ev)
	})
	if err == nil {
		t.Fatal("expected commit error")
	}
	if store.GameCount() != 0 || store.EventCount() != 0 || store.AccoladeCount() != 0 {
		t.Errorf("partial rows persisted: games=%d events=%d accolades=%d",
			store.GameCount(), store.EventCount(), store.AccoladeCount())
	}
}

type recordingArchiver struct {
	games  int
	events int
}

func (r *recordingArchiver) Archive(ctx context.Context, game *models.Game, events []*models.GameEvent) error {
	r.games++
	r.events = len(events)
	return nil
}

func TestPipelineArchivesAfterCommit(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	arch := &recordingArchiver{}
	pipe := NewPipeline(store, logic.NewRatingEngine(zap.NewNop()), arch, zap.NewNop())
	sc := parser.NewScanner(matchLog(), store, zap.NewNop())

	err := sc.Run(ctx, func(ev parser.Event) error {
		return pipe.HandleEvent(ctx, ev)
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if arch.games != 1 {
		t.Fatalf("archived games = %d, want 1", arch.games)
	}
	if arch.events != store.EventCount() {
		t.Errorf("archived events = %d, stored = %d", arch.events, store.EventCount())
	}
}

func TestPipelineBombInvariants(t *testing.T) {
	ctx := context.Background()
	pipe := NewPipeline(storage.NewMemory(), logic.NewRatingEngine(zap.NewNop()), nil, zap.NewNop())
	now := time.Now()

	events := []parser.Event{
		parser.GameOver{Meta: parser.Meta{Time: now, Type: "GameOver"}, Map: "de_dust2", Mode: "competitive", Team1Score: 1},
		parser.RoundStart{Meta: parser.Meta{Time: now, Type: "RoundStart"}},
		// Defuse before any plant: dropped.
		parser.Bomb{Meta: parser.Meta{Time: now, Type: "Bomb"}, Action: models.BombDefuse},
		parser.Bomb{Meta: parser.Meta{Time: now, Type: "Bomb"}, Player: parser.PlayerRef{Name: "Bob", SteamID: "[U:1:222]", Side: "TERRORIST"}, Action: models.BombPlant},
		// Second plant in the same round: dropped.
		parser.Bomb{Meta: parser.Meta{Time: now, Type: "Bomb"}, Player: parser.PlayerRef{Name: "Eve", SteamID: "[U:1:444]", Side: "TERRORIST"}, Action: models.BombPlant},
		// Explosion is attributed to the planter.
		parser.Bomb{Meta: parser.Meta{Time: now, Type: "Bomb"}, Action: models.BombExplode},
	}
	for _, ev := range events {
		if err := pipe.HandleEvent(ctx, ev); err != nil {
			t.Fatalf("HandleEvent(%T): %v", ev, err)
		}
	}

	var bombs []*models.GameEvent
	for _, ev := range pipe.mc.events {
		if ev.Kind == models.EventBomb {
			bombs = append(bombs, ev)
		}
	}
	if len(bombs) != 2 {
		t.Fatalf("bomb events = %d, want 2 (plant + explode)", len(bombs))
	}
	if bombs[0].BombAction != models.BombPlant || bombs[0].ActorName != "Bob" {
		t.Errorf("plant = %+v", bombs[0])
	}
	if bombs[1].BombAction != models.BombExplode || bombs[1].ActorName != "Bob" {
		t.Errorf("explode not attributed to planter: %+v", bombs[1])
	}
}
