package processor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rankforge/rankforge/internal/models"
	"github.com/rankforge/rankforge/internal/parser"
	"github.com/rankforge/rankforge/internal/storage"
)

// Rater updates the persistent player aggregates and ratings from a
// committed match's events, inside the commit transaction.
type Rater interface {
	Apply(ctx context.Context, tx storage.Tx, game *models.Game, events []*models.GameEvent) error
}

// Archiver receives a committed match for offline analytics. Implementations
// are best-effort: the pipeline logs archive failures and moves on.
type Archiver interface {
	Archive(ctx context.Context, game *models.Game, events []*models.GameEvent) error
}

// Pipeline consumes one parser event stream and commits each completed match.
// It is single-writer: one pipeline per log file, driven by one goroutine.
type Pipeline struct {
	store   storage.Store
	rater   Rater
	archive Archiver
	log     *zap.SugaredLogger

	mc *matchContext
}

// NewPipeline wires a pipeline. archive may be nil when no analytics sink is
// configured.
func NewPipeline(store storage.Store, rater Rater, archive Archiver, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		store:   store,
		rater:   rater,
		archive: archive,
		log:     logger.Sugar(),
		mc:      newMatchContext(),
	}
}

// HandleEvent routes one parser event. GameProcessed triggers the commit; any
// error resets the match context so the pipeline can continue with the next
// match in the same file.
func (p *Pipeline) HandleEvent(ctx context.Context, ev parser.Event) error {
	switch e := ev.(type) {
	case parser.GameOver:
		p.onGameOver(e)
	case parser.RoundStart:
		p.onRoundStart(e)
	case parser.RoundEnd:
		p.onRoundEnd(e)
	case parser.Kill:
		p.onKill(e)
	case parser.Assist:
		p.onAssist(e)
	case parser.Attack:
		p.onAttack(e)
	case parser.Bomb:
		p.onBomb(e)
	case parser.GameProcessed:
		if err := p.commit(ctx, e); err != nil {
			p.mc.reset()
			return err
		}
		p.mc.reset()
	default:
		return fmt.Errorf("unhandled event type %T", ev)
	}
	return nil
}

func (p *Pipeline) onGameOver(e parser.GameOver) {
	if p.mc.game != nil {
		p.log.Warnw("Game over while a match is pending, discarding pending match",
			"pending_map", p.mc.game.Map)
		p.mc.reset()
	}

	game := &models.Game{
		Map:             e.Map,
		Mode:            e.Mode,
		Team1Score:      e.Team1Score,
		Team2Score:      e.Team2Score,
		DurationMinutes: e.DurationMinutes,
		EndTime:         e.Time,
	}
	if e.DurationMinutes > 0 {
		game.StartTime = e.Time.Add(-time.Duration(e.DurationMinutes) * time.Minute)
	}
	p.mc.game = game
	p.mc.add(&models.GameEvent{
		Kind:      models.EventGameOver,
		Timestamp: e.Time,
	})
	for _, line := range e.Accolades {
		p.mc.accolades = append(p.mc.accolades, &models.Accolade{
			Game:         p.mc.game,
			Type:         line.Type,
			PlayerName:   line.PlayerName,
			SessionIndex: line.SessionIdx,
			Value:        line.Value,
			Position:     line.Position,
			Score:        line.Score,
		})
	}
}

func (p *Pipeline) onRoundStart(e parser.RoundStart) {
	if p.mc.game == nil {
		p.log.Warnw("Round start outside a match window, skipping")
		return
	}
	p.mc.roundNumber++
	p.mc.bombPlanted = false
	p.mc.planter = parser.PlayerRef{}

	round := &models.GameEvent{
		Kind:        models.EventRoundStart,
		Timestamp:   e.Time,
		RoundNumber: p.mc.roundNumber,
	}
	p.mc.add(round)
	p.mc.round = round
}

func (p *Pipeline) onRoundEnd(e parser.RoundEnd) {
	if p.mc.round == nil {
		p.log.Warnw("Round end without a round start, skipping")
		return
	}
	p.mc.add(&models.GameEvent{
		Kind:      models.EventRoundEnd,
		Timestamp: e.Time,
		Survivors: e.Survivors,
	})
	p.mc.round = nil
}

func (p *Pipeline) onKill(e parser.Kill) {
	if p.mc.round == nil {
		return
	}
	p.mc.recordPlayer(e.Killer)
	p.mc.recordPlayer(e.Victim)
	p.mc.add(&models.GameEvent{
		Kind:          models.EventKill,
		Timestamp:     e.Time,
		ActorName:     e.Killer.Name,
		ActorSteamID:  e.Killer.SteamID,
		ActorSide:     e.Killer.Side,
		ActorPos:      e.KillerPos,
		TargetName:    e.Victim.Name,
		TargetSteamID: e.Victim.SteamID,
		TargetSide:    e.Victim.Side,
		TargetPos:     e.VictimPos,
		Weapon:        e.Weapon,
		Headshot:      e.Headshot,
	})
}

func (p *Pipeline) onAssist(e parser.Assist) {
	if p.mc.round == nil {
		return
	}
	p.mc.recordPlayer(e.Assister)
	p.mc.recordPlayer(e.Victim)
	kind := models.AssistRegular
	if e.Flash {
		kind = models.AssistFlash
	}
	p.mc.add(&models.GameEvent{
		Kind:          models.EventAssist,
		Timestamp:     e.Time,
		ActorName:     e.Assister.Name,
		ActorSteamID:  e.Assister.SteamID,
		ActorSide:     e.Assister.Side,
		TargetName:    e.Victim.Name,
		TargetSteamID: e.Victim.SteamID,
		TargetSide:    e.Victim.Side,
		AssistType:    kind,
	})
}

func (p *Pipeline) onAttack(e parser.Attack) {
	if p.mc.round == nil {
		return
	}
	p.mc.recordPlayer(e.Attacker)
	p.mc.recordPlayer(e.Victim)
	p.mc.add(&models.GameEvent{
		Kind:            models.EventAttack,
		Timestamp:       e.Time,
		ActorName:       e.Attacker.Name,
		ActorSteamID:    e.Attacker.SteamID,
		ActorSide:       e.Attacker.Side,
		ActorPos:        e.AttackerPos,
		TargetName:      e.Victim.Name,
		TargetSteamID:   e.Victim.SteamID,
		TargetSide:      e.Victim.Side,
		TargetPos:       e.VictimPos,
		Weapon:          e.Weapon,
		Damage:          e.Damage,
		ArmorDamage:     e.ArmorDamage,
		HealthRemaining: e.HealthRemaining,
		ArmorRemaining:  e.ArmorRemaining,
		HitGroup:        e.HitGroup,
	})
}

// onBomb enforces the per-round bomb lifecycle: at most one plant, and a
// defuse or explosion only after a plant. The explosion line names no player,
// so it is attributed to the planter.
func (p *Pipeline) onBomb(e parser.Bomb) {
	if p.mc.round == nil {
		return
	}
	actor := e.Player
	switch e.Action {
	case models.BombPlant:
		if p.mc.bombPlanted {
			p.log.Warnw("Second bomb plant in one round, skipping",
				"round", p.mc.roundNumber, "player", actor.Name)
			return
		}
		p.mc.bombPlanted = true
		p.mc.planter = actor
	case models.BombDefuse:
		if !p.mc.bombPlanted {
			p.log.Warnw("Bomb defuse without a plant, skipping",
				"round", p.mc.roundNumber, "player", actor.Name)
			return
		}
	case models.BombExplode:
		if !p.mc.bombPlanted {
			p.log.Warnw("Bomb explosion without a plant, skipping",
				"round", p.mc.roundNumber)
			return
		}
		actor = p.mc.planter
	}

	p.mc.recordPlayer(actor)
	p.mc.add(&models.GameEvent{
		Kind:         models.EventBomb,
		Timestamp:    e.Time,
		ActorName:    actor.Name,
		ActorSteamID: actor.SteamID,
		ActorSide:    actor.Side,
		BombAction:   e.Action,
	})
}
