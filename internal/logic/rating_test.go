package logic

import (
	"context"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/rankforge/rankforge/internal/models"
	"github.com/rankforge/rankforge/internal/storage"
)

const (
	aliceID = "[U:1:111]"
	bobID   = "[U:1:222]"
)

func applyEvents(t *testing.T, store *storage.Memory, events []*models.GameEvent) {
	t.Helper()
	engine := NewRatingEngine(zap.NewNop())
	game := &models.Game{Map: "de_dust2", EndTime: time.Now()}
	err := store.WithTx(context.Background(), func(tx storage.Tx) error {
		return engine.Apply(context.Background(), tx, game, events)
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
}

func kill(round *models.GameEvent, killerID, victimID string, headshot bool) *models.GameEvent {
	return &models.GameEvent{
		Kind:          models.EventKill,
		Round:         round,
		ActorName:     "Alice",
		ActorSteamID:  killerID,
		TargetName:    "Bob",
		TargetSteamID: victimID,
		Headshot:      headshot,
	}
}

func mustStats(t *testing.T, store *storage.Memory, steamID string) *models.PlayerStats {
	t.Helper()
	ps, err := store.PlayerStats(context.Background(), steamID)
	if err != nil {
		t.Fatalf("PlayerStats(%s): %v", steamID, err)
	}
	return ps
}

func TestRatingSingleKill(t *testing.T) {
	store := storage.NewMemory()
	round := &models.GameEvent{Kind: models.EventRoundStart, RoundNumber: 1}
	applyEvents(t, store, []*models.GameEvent{round, kill(round, aliceID, bobID, false)})

	alice := mustStats(t, store, aliceID)
	bob := mustStats(t, store, bobID)

	// Both start at 1000: expected score 0.5, K=32, so 16 points move.
	if math.Abs(alice.Rank-1016) > 1e-9 {
		t.Errorf("killer rank = %v, want 1016", alice.Rank)
	}
	if math.Abs(bob.Rank-984) > 1e-9 {
		t.Errorf("victim rank = %v, want 984", bob.Rank)
	}
	if alice.Kills != 1 || alice.HSKills != 0 || bob.Deaths != 1 {
		t.Errorf("tallies: kills=%d hs=%d deaths=%d", alice.Kills, alice.HSKills, bob.Deaths)
	}
	if alice.GamesPlayed != 1 || alice.RoundsPlayed != 1 {
		t.Errorf("games=%d rounds=%d, want 1/1", alice.GamesPlayed, alice.RoundsPlayed)
	}
}

func TestRatingHeadshotDoublesK(t *testing.T) {
	store := storage.NewMemory()
	round := &models.GameEvent{Kind: models.EventRoundStart, RoundNumber: 1}
	applyEvents(t, store, []*models.GameEvent{round, kill(round, aliceID, bobID, true)})

	alice := mustStats(t, store, aliceID)
	bob := mustStats(t, store, bobID)
	if math.Abs(alice.Rank-1032) > 1e-9 {
		t.Errorf("killer rank = %v, want 1032", alice.Rank)
	}
	if math.Abs(bob.Rank-968) > 1e-9 {
		t.Errorf("victim rank = %v, want 968", bob.Rank)
	}
	if alice.HSKills != 1 {
		t.Errorf("hs kills = %d, want 1", alice.HSKills)
	}
}

func TestRatingSequentialKillsDiminish(t *testing.T) {
	store := storage.NewMemory()
	round := &models.GameEvent{Kind: models.EventRoundStart, RoundNumber: 1}
	applyEvents(t, store, []*models.GameEvent{
		round,
		kill(round, aliceID, bobID, false),
		kill(round, aliceID, bobID, false),
	})

	alice := mustStats(t, store, aliceID)
	bob := mustStats(t, store, bobID)

	// The second kill is computed against the already-updated ranks, so it
	// moves fewer points than the first 16.
	secondGain := alice.Rank - 1016
	if secondGain <= 0 || secondGain >= 16 {
		t.Errorf("second kill gain = %v, want in (0, 16)", secondGain)
	}
	// Rating is zero-sum.
	if math.Abs(alice.Rank+bob.Rank-2000) > 1e-9 {
		t.Errorf("rank sum = %v, want 2000", alice.Rank+bob.Rank)
	}
}

func TestRatingSkipsBots(t *testing.T) {
	store := storage.NewMemory()
	round := &models.GameEvent{Kind: models.EventRoundStart, RoundNumber: 1}
	// Bot victims have an empty steam id.
	applyEvents(t, store, []*models.GameEvent{round, kill(round, aliceID, "", false)})

	alice := mustStats(t, store, aliceID)
	if alice.Rank != BaseRank {
		t.Errorf("rank = %v, want unchanged base %v", alice.Rank, BaseRank)
	}
	if alice.Kills != 1 {
		t.Errorf("kills = %d, want 1 (bot kills still count)", alice.Kills)
	}
	if _, err := store.PlayerStats(context.Background(), ""); err == nil {
		t.Error("a stats row was created for the bot")
	}
}

func TestRatingAggregatesAcrossEventKinds(t *testing.T) {
	store := storage.NewMemory()
	r1 := &models.GameEvent{Kind: models.EventRoundStart, RoundNumber: 1}
	r2 := &models.GameEvent{Kind: models.EventRoundStart, RoundNumber: 2}
	events := []*models.GameEvent{
		r1,
		kill(r1, aliceID, bobID, false),
		{
			Kind:         models.EventAssist,
			Round:        r1,
			ActorName:    "Bob",
			ActorSteamID: bobID,
			AssistType:   models.AssistRegular,
		},
		r2,
		{
			Kind:          models.EventAttack,
			Round:         r2,
			ActorName:     "Alice",
			ActorSteamID:  aliceID,
			TargetName:    "Bob",
			TargetSteamID: bobID,
			Damage:        37,
		},
	}
	applyEvents(t, store, events)

	alice := mustStats(t, store, aliceID)
	bob := mustStats(t, store, bobID)
	if alice.Damage != 37 {
		t.Errorf("damage = %d, want 37", alice.Damage)
	}
	if bob.Assists != 1 {
		t.Errorf("assists = %d, want 1", bob.Assists)
	}
	if alice.RoundsPlayed != 2 || bob.RoundsPlayed != 2 {
		t.Errorf("rounds = %d/%d, want 2/2", alice.RoundsPlayed, bob.RoundsPlayed)
	}
	if alice.Name != "Alice" || bob.Name != "Bob" {
		t.Errorf("names = %q/%q", alice.Name, bob.Name)
	}
}

func TestRatingSecondGamePersists(t *testing.T) {
	store := storage.NewMemory()
	round := &models.GameEvent{Kind: models.EventRoundStart, RoundNumber: 1}
	applyEvents(t, store, []*models.GameEvent{round, kill(round, aliceID, bobID, false)})
	applyEvents(t, store, []*models.GameEvent{round, kill(round, bobID, aliceID, false)})

	alice := mustStats(t, store, aliceID)
	if alice.GamesPlayed != 2 {
		t.Errorf("games = %d, want 2", alice.GamesPlayed)
	}
	// Bob's revenge kill was computed from 984 vs 1016, so the expected
	// score favored Alice and Bob gains more than 16.
	bob := mustStats(t, store, bobID)
	if bob.Rank <= 1000 {
		t.Errorf("bob rank = %v, want above 1000", bob.Rank)
	}
}
