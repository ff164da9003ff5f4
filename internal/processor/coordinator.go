package processor

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rankforge/rankforge/internal/models"
	"github.com/rankforge/rankforge/internal/parser"
	"github.com/rankforge/rankforge/internal/storage"
)

// commit flushes the whole match context in one storage transaction:
// the game row first, then round starts (so their ids exist), then the
// remaining events with their round foreign keys patched, then the resolved
// accolades, and finally the rating update. The analytics archive runs after
// the transaction and never fails the commit.
func (p *Pipeline) commit(ctx context.Context, e parser.GameProcessed) error {
	mc := p.mc
	if mc.game == nil {
		p.log.Warnw("Game processed without a pending match, nothing to commit")
		return nil
	}

	mc.add(&models.GameEvent{
		Kind:      models.EventGameProcessed,
		Timestamp: e.Time,
	})

	err := p.store.WithTx(ctx, func(tx storage.Tx) error {
		if err := tx.InsertGame(ctx, mc.game); err != nil {
			return err
		}

		var roundStarts, rest []*models.GameEvent
		for _, ev := range mc.events {
			ev.GameID = mc.game.ID
			if ev.Kind == models.EventRoundStart {
				roundStarts = append(roundStarts, ev)
			} else {
				rest = append(rest, ev)
			}
		}
		if err := tx.InsertGameEvents(ctx, roundStarts); err != nil {
			return err
		}
		for _, ev := range rest {
			if ev.Round != nil {
				id := ev.Round.ID
				ev.RoundStartID = &id
			}
		}
		if err := tx.InsertGameEvents(ctx, rest); err != nil {
			return err
		}

		for _, a := range mc.accolades {
			a.GameID = mc.game.ID
			a.SteamID = p.resolveSteamID(a)
		}
		if err := tx.InsertAccolades(ctx, mc.accolades); err != nil {
			return err
		}

		if err := p.rater.Apply(ctx, tx, mc.game, mc.events); err != nil {
			return fmt.Errorf("rating update: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("commit match (map %s): %w", mc.game.Map, err)
	}

	p.log.Infow("Match committed",
		"game_id", mc.game.ID,
		"map", mc.game.Map,
		"score", fmt.Sprintf("%d:%d", mc.game.Team1Score, mc.game.Team2Score),
		"events", len(mc.events),
		"accolades", len(mc.accolades))

	if p.archive != nil {
		if err := p.archive.Archive(ctx, mc.game, mc.events); err != nil {
			p.log.Warnw("Analytics archive failed", "game_id", mc.game.ID, "error", err)
		}
	}
	return nil
}

// resolveSteamID maps an accolade's player name to the steam id seen during
// the match. Unresolvable names keep the session index as a placeholder so
// the row still identifies someone within the match.
func (p *Pipeline) resolveSteamID(a *models.Accolade) string {
	if id, ok := p.mc.nameToSteamID[a.PlayerName]; ok {
		return id
	}
	p.log.Warnw("Accolade player not seen in match events, keeping session index",
		"player", a.PlayerName, "type", a.Type)
	return strconv.Itoa(a.SessionIndex)
}
