package parser

import (
	"strconv"
	"time"

	"github.com/rankforge/rankforge/internal/models"
)

// Event is the tagged union emitted by the scanner. Concrete types embed
// Meta; consumers dispatch with a type switch.
type Event interface {
	GetTime() time.Time
	GetType() string
}

// Meta holds the collector timestamp and type tag of an event.
type Meta struct {
	Time time.Time
	Type string
}

// GetTime is the getter for Meta.Time.
func (m Meta) GetTime() time.Time { return m.Time }

// GetType is the getter for Meta.Type.
func (m Meta) GetType() string { return m.Type }

// PlayerRef identifies a player as it appears on a single log line. SteamID
// is empty for bots.
type PlayerRef struct {
	Name       string
	SessionIdx int
	SteamID    string
	Side       string
}

// IsBot reports whether the reference carries no steam identity.
func (p PlayerRef) IsBot() bool { return p.SteamID == "" }

// AccoladeLine is one parsed end-of-match accolade. The log reports the
// player only by name and session index; steam-id resolution happens later
// against the match context.
type AccoladeLine struct {
	Type       string
	PlayerName string
	SessionIdx int
	Value      float64
	Position   int
	Score      float64
}

type (
	// GameOver is emitted first within a confirmed match's replay window
	// and carries everything parsed from the Game_Over line plus the
	// accolade block preceding it.
	GameOver struct {
		Meta
		Mode            string
		Map             string
		Team1Score      int
		Team2Score      int
		DurationMinutes int
		Accolades       []AccoladeLine
	}

	// RoundStart is emitted for every round of a confirmed match.
	RoundStart struct{ Meta }

	// RoundEnd closes a round; Survivors lists the player names still
	// alive per the tabular score block following the line.
	RoundEnd struct {
		Meta
		Survivors []string
	}

	// Kill is a fragged player.
	Kill struct {
		Meta
		Killer    PlayerRef
		Victim    PlayerRef
		KillerPos *models.Coord
		VictimPos *models.Coord
		Weapon    string
		Headshot  bool
	}

	// Assist credits a kill assist; flash assists are tagged separately.
	Assist struct {
		Meta
		Assister PlayerRef
		Victim   PlayerRef
		Flash    bool
	}

	// Attack is a damage event.
	Attack struct {
		Meta
		Attacker        PlayerRef
		Victim          PlayerRef
		AttackerPos     *models.Coord
		VictimPos       *models.Coord
		Weapon          string
		Damage          int
		ArmorDamage     int
		HealthRemaining int
		ArmorRemaining  int
		HitGroup        string
	}

	// Bomb is a plant, defuse or detonation. Detonations carry no player;
	// the processor attributes them to the planter.
	Bomb struct {
		Meta
		Player PlayerRef
		Action models.BombAction
	}

	// GameProcessed is the sentinel closing a match's replay window; the
	// commit coordinator flushes on it.
	GameProcessed struct{ Meta }
)

func newMeta(ti time.Time, ty string) Meta {
	return Meta{Time: ti, Type: ty}
}

// newPlayerRef builds a PlayerRef from the four capture groups of the shared
// player sub-expression.
func newPlayerRef(name, idx, steamID, side string) PlayerRef {
	return PlayerRef{
		Name:       name,
		SessionIdx: toInt(idx),
		SteamID:    models.NormalizeSteamID(steamID),
		Side:       side,
	}
}

// toInt converts string to int, assigns 0 when not convertible.
func toInt(v string) int {
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return i
}

func toFloat(v string) float64 {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}
