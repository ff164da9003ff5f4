package parser

import "regexp"

// Log line grammars for the CS2 dedicated server. Whitespace is exact; the
// quoted player sub-expression is shared by every pattern that names a
// player. Bots carry the literal BOT where humans carry a steam ID3.
const (
	// playerExpr captures name, session index, steam id (or BOT), side.
	playerExpr = `"(.+?)<(\d+)><(BOT|\[U:\d+:\d+\])><(CT|TERRORIST)>"`
	// posExpr captures integer map coordinates.
	posExpr = `\[(-?\d+) (-?\d+) (-?\d+)\]`

	// KillPattern regular expression
	KillPattern = playerExpr + ` ` + posExpr + ` killed ` + playerExpr + ` ` + posExpr + ` with "([\w-]+)"( \(headshot\))?`
	// AssistPattern regular expression; assists never carry coordinates
	AssistPattern = playerExpr + ` (flash-)?assisted killing ` + playerExpr
	// AttackPattern regular expression
	AttackPattern = playerExpr + ` ` + posExpr + ` attacked ` + playerExpr + ` ` + posExpr + ` with "([\w-]+)" \(damage "(\d+)"\) \(damage_armor "(\d+)"\) \(health "(\d+)"\) \(armor "(\d+)"\) \(hitgroup "([\w ]+)"\)`
	// RoundStartPattern regular expression
	RoundStartPattern = `World triggered "Round_Start"`
	// RoundEndPattern regular expression
	RoundEndPattern = `World triggered "Round_End"`
	// GameOverPattern regular expression: mode, map group, map, scores, duration
	GameOverPattern = `Game Over: (\w+) (\w+) (\w+) score (\d+):(\d+) after (\d+) min`
	// BombPlantPattern regular expression
	BombPlantPattern = playerExpr + ` triggered "Planted_The_Bomb"`
	// BombDefusePattern regular expression
	BombDefusePattern = playerExpr + ` triggered "Defused_The_Bomb"`
	// BombExplodePattern regular expression; the engine attributes the
	// detonation to the team, not a player
	BombExplodePattern = `Team "(CT|TERRORIST)" triggered "Target_Bombed"`
	// AccoladePattern regular expression; the server emits either tabs or
	// comma-space separators depending on build
	AccoladePattern = `ACCOLADE, FINAL: \{(\w+)\},\s*(.+?)<(\d+)>,\s*VALUE: ([\d.]+),?\s*POS: (\d+),?\s*SCORE: ([\d.]+)`
)

// LogLinePattern captures the engine timestamp prefix and the message body.
const LogLinePattern = `^L (\d{2}/\d{2}/\d{4} - \d{2}:\d{2}:\d{2}): (.*)$`

var (
	LogLineRe     = regexp.MustCompile(LogLinePattern)
	KillRe        = regexp.MustCompile(KillPattern)
	AssistRe      = regexp.MustCompile(AssistPattern)
	AttackRe      = regexp.MustCompile(AttackPattern)
	RoundStartRe  = regexp.MustCompile(RoundStartPattern)
	RoundEndRe    = regexp.MustCompile(RoundEndPattern)
	GameOverRe    = regexp.MustCompile(GameOverPattern)
	BombPlantRe   = regexp.MustCompile(BombPlantPattern)
	BombDefuseRe  = regexp.MustCompile(BombDefusePattern)
	BombExplodeRe = regexp.MustCompile(BombExplodePattern)
	AccoladeRe    = regexp.MustCompile(AccoladePattern)
)

// Cheap substring markers used for scanning before the full patterns run.
const (
	markerRoundStart = `World triggered "Round_Start"`
	markerAccolade   = "ACCOLADE"
	markerJSONBegin  = "JSON_BEGIN"
	markerJSONEnd    = "JSON_END"
	markerPlayerRow  = "player_"
)
