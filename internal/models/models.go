// Package models holds the persistent data model shared by the parser,
// the event processor and the storage drivers.
package models

import "time"

// EventKind discriminates rows in the game_events table.
type EventKind string

const (
	EventRoundStart    EventKind = "round_start"
	EventRoundEnd      EventKind = "round_end"
	EventKill          EventKind = "kill"
	EventAssist        EventKind = "assist"
	EventAttack        EventKind = "attack"
	EventBomb          EventKind = "bomb"
	EventGameOver      EventKind = "game_over"
	EventGameProcessed EventKind = "game_processed"
)

// AssistType distinguishes regular kill assists from flash assists.
type AssistType string

const (
	AssistRegular AssistType = "Regular"
	AssistFlash   AssistType = "Flash"
)

// BombAction is the sub-type of a bomb event.
type BombAction string

const (
	BombPlant   BombAction = "PLANT"
	BombDefuse  BombAction = "DEFUSE"
	BombExplode BombAction = "EXPLODE"
)

// Game is one committed match.
type Game struct {
	ID              int64     `json:"id"`
	Map             string    `json:"map"`
	Mode            string    `json:"mode"`
	Team1Score      int       `json:"team1_score"`
	Team2Score      int       `json:"team2_score"`
	DurationMinutes int       `json:"duration_minutes"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
}

// TotalRounds is the round count implied by the final score.
func (g *Game) TotalRounds() int {
	return g.Team1Score + g.Team2Score
}

// Coord is a nullable map coordinate. Coordinates that fail to parse are
// stored as NULL rather than zero so analytics can tell them apart.
type Coord struct {
	X, Y, Z int
}

// GameEvent is a row of the single game_events table. All event variants
// share it; the Kind column is the discriminator and variant-specific fields
// are zero-valued (NULL in storage) for the kinds that do not carry them.
//
// Before flush, events reference their owners by pointer (Game, Round);
// the commit coordinator patches GameID / RoundStartID once the parent rows
// have storage-assigned ids.
type GameEvent struct {
	ID           int64  `json:"id"`
	GameID       int64  `json:"game_id"`
	RoundStartID *int64 `json:"round_start_id,omitempty"`

	// In-memory parent references, valid only until flush.
	Game  *Game      `json:"-"`
	Round *GameEvent `json:"-"`

	Kind      EventKind `json:"kind"`
	Timestamp time.Time `json:"timestamp"`

	// round_start
	RoundNumber int `json:"round_number,omitempty"`

	// round_end
	Survivors []string `json:"survivors,omitempty"`

	// Actor: killer, assister, attacker, bomb carrier. BOT players have an
	// empty steam id.
	ActorName    string `json:"actor_name,omitempty"`
	ActorSteamID string `json:"actor_steam_id,omitempty"`
	ActorSide    string `json:"actor_side,omitempty"`

	// Target: victim.
	TargetName    string `json:"target_name,omitempty"`
	TargetSteamID string `json:"target_steam_id,omitempty"`
	TargetSide    string `json:"target_side,omitempty"`

	// kill / attack
	Weapon    string `json:"weapon,omitempty"`
	Headshot  bool   `json:"headshot,omitempty"`
	ActorPos  *Coord `json:"actor_pos,omitempty"`
	TargetPos *Coord `json:"target_pos,omitempty"`

	// assist
	AssistType AssistType `json:"assist_type,omitempty"`

	// attack
	Damage          int    `json:"damage,omitempty"`
	ArmorDamage     int    `json:"armor_damage,omitempty"`
	HealthRemaining int    `json:"health_remaining,omitempty"`
	ArmorRemaining  int    `json:"armor_remaining,omitempty"`
	HitGroup        string `json:"hit_group,omitempty"`

	// bomb
	BombAction    BombAction `json:"bomb_action,omitempty"`
	TimeRemaining float64    `json:"time_remaining,omitempty"`
}

// Accolade is an end-of-match achievement line. The log identifies the
// player only by name and local session index; SteamID is resolved from the
// match context at flush time and keeps the session index as a placeholder
// when no resolution exists.
type Accolade struct {
	ID           int64   `json:"id"`
	GameID       int64   `json:"game_id"`
	Game         *Game   `json:"-"`
	Type         string  `json:"type"`
	PlayerName   string  `json:"player_name"`
	SessionIndex int     `json:"session_index"`
	SteamID      string  `json:"steam_id"`
	Value        float64 `json:"value"`
	Position     int     `json:"position"`
	Score        float64 `json:"score"`
}

// PlayerStats is the per-player aggregate keyed on steam id. Rank is the
// Elo-style rating maintained by the rating engine.
type PlayerStats struct {
	SteamID      string  `json:"steam_id"`
	Name         string  `json:"name"`
	Kills        int64   `json:"kills"`
	Deaths       int64   `json:"deaths"`
	Assists      int64   `json:"assists"`
	HSKills      int64   `json:"hs_kills"`
	RoundsPlayed int64   `json:"rounds_played"`
	GamesPlayed  int64   `json:"games_played"`
	Clutches     int64   `json:"clutches"`
	Damage       int64   `json:"damage"`
	Rank         float64 `json:"rank"`
}
