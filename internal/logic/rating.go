package logic

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/rankforge/rankforge/internal/models"
	"github.com/rankforge/rankforge/internal/storage"
)

// Elo parameters. A headshot kill moves ratings twice as hard as a regular
// kill; unrated players enter at BaseRank.
const (
	BaseRank        = 1000.0
	KFactor         = 32.0
	HeadshotKFactor = 64.0
)

// RatingEngine folds a committed match into the persistent player aggregates
// and Elo-style ranks. It runs inside the commit transaction, so a rating
// failure aborts the whole match.
type RatingEngine struct {
	log *zap.SugaredLogger
}

func NewRatingEngine(logger *zap.Logger) *RatingEngine {
	return &RatingEngine{log: logger.Sugar()}
}

// tally is one player's delta from a single match.
type tally struct {
	name    string
	kills   int64
	deaths  int64
	assists int64
	hsKills int64
	damage  int64
	rounds  map[int]struct{}
}

// Apply processes the match in three passes: load-and-lock current ratings in
// deterministic order, walk the kill feed updating ratings sequentially, then
// write back aggregates and final ranks. Bots never participate.
func (r *RatingEngine) Apply(ctx context.Context, tx storage.Tx, game *models.Game, events []*models.GameEvent) error {
	tallies := collectTallies(events)
	if len(tallies) == 0 {
		r.log.Debugw("No rated participants in match", "map", game.Map)
		return nil
	}

	ids := make([]string, 0, len(tallies))
	for id := range tallies {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	// Pass 1: lock rows in sorted order and read current ranks.
	ranks := make(map[string]float64, len(ids))
	for _, id := range ids {
		err := tx.UpsertPlayerStats(ctx, id, func(ps *models.PlayerStats) {
			if ps.Rank == 0 {
				ps.Rank = BaseRank
			}
			ranks[id] = ps.Rank
		})
		if err != nil {
			return fmt.Errorf("load rating for %s: %w", id, err)
		}
	}

	// Pass 2: replay the kill feed in match order against the local ranks.
	for _, ev := range events {
		if ev.Kind != models.EventKill || ev.ActorSteamID == "" || ev.TargetSteamID == "" {
			continue
		}
		if ev.ActorSteamID == ev.TargetSteamID {
			continue // suicide with a weapon, no rating transfer
		}
		k := KFactor
		if ev.Headshot {
			k = HeadshotKFactor
		}
		rk, rv := ranks[ev.ActorSteamID], ranks[ev.TargetSteamID]
		expected := 1 / (1 + math.Pow(10, (rv-rk)/400))
		delta := k * (1 - expected)
		ranks[ev.ActorSteamID] = rk + delta
		ranks[ev.TargetSteamID] = rv - delta
	}

	// Pass 3: fold the deltas and final ranks into the locked rows.
	for _, id := range ids {
		t := tallies[id]
		err := tx.UpsertPlayerStats(ctx, id, func(ps *models.PlayerStats) {
			ps.Name = t.name
			ps.Kills += t.kills
			ps.Deaths += t.deaths
			ps.Assists += t.assists
			ps.HSKills += t.hsKills
			ps.Damage += t.damage
			ps.RoundsPlayed += int64(len(t.rounds))
			ps.GamesPlayed++
			ps.Rank = ranks[id]
		})
		if err != nil {
			return fmt.Errorf("write rating for %s: %w", id, err)
		}
	}

	r.log.Debugw("Ratings applied", "map", game.Map, "participants", len(ids))
	return nil
}

// collectTallies aggregates per-player deltas from the pending events.
// Rounds played counts the distinct rounds in which the player appears in
// any event, on either side of it.
func collectTallies(events []*models.GameEvent) map[string]*tally {
	tallies := make(map[string]*tally)
	get := func(steamID, name string) *tally {
		if steamID == "" {
			return nil
		}
		t, ok := tallies[steamID]
		if !ok {
			t = &tally{rounds: make(map[int]struct{})}
			tallies[steamID] = t
		}
		if name != "" {
			t.name = name
		}
		return t
	}
	mark := func(t *tally, ev *models.GameEvent) {
		if t != nil && ev.Round != nil {
			t.rounds[ev.Round.RoundNumber] = struct{}{}
		}
	}

	for _, ev := range events {
		actor := get(ev.ActorSteamID, ev.ActorName)
		target := get(ev.TargetSteamID, ev.TargetName)
		mark(actor, ev)
		mark(target, ev)

		switch ev.Kind {
		case models.EventKill:
			if actor != nil {
				actor.kills++
				if ev.Headshot {
					actor.hsKills++
				}
			}
			if target != nil {
				target.deaths++
			}
		case models.EventAssist:
			if actor != nil {
				actor.assists++
			}
		case models.EventAttack:
			if actor != nil {
				actor.damage += int64(ev.Damage)
			}
		}
	}
	return tallies
}
