package parser

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rankforge/rankforge/internal/models"
)

// ErrIncompleteLog is returned when an admitted Game_Over reports more rounds
// than the scanner tracked round starts for. The file cannot be reconstructed
// and processing must abort without a commit.
var ErrIncompleteLog = errors.New("log incomplete: fewer round starts than the final score requires")

// minAccolades is the admission threshold: a real match produces at least
// this many accolade lines. Fewer means a warmup or an aborted lobby.
const minAccolades = 6

// headerRows is the number of header lines between JSON_BEGIN and the first
// data row of the tabular round-stats block.
const headerRows = 6

// GameOverLookup is the slice of the storage contract the scanner needs for
// the duplicate-ingest check. A nil lookup admits everything.
type GameOverLookup interface {
	FindGameOverEvent(ctx context.Context, ts time.Time) (*models.GameEvent, error)
}

// Scanner reconstructs complete matches from an indexed log line slice.
//
// The raw log places Game_Over after the rounds it governs, and may contain
// earlier partial matches that must be ignored. The scanner therefore tracks
// round-start indices while idle, and on an admitted Game_Over emits the
// GameOver event immediately and rewinds the cursor to the first round of
// that match, replaying the window up to the Game_Over line. Reaching the
// Game_Over line again emits the GameProcessed sentinel.
type Scanner struct {
	lines  []Line
	lookup GameOverLookup
	log    *zap.SugaredLogger

	roundStarts   []int
	matchStarted  bool
	matchEndIndex int
}

// NewScanner returns a scanner over lines. lookup may be nil when duplicate
// suppression is not wanted (tests, dry runs).
func NewScanner(lines []Line, lookup GameOverLookup, logger *zap.Logger) *Scanner {
	return &Scanner{
		lines:  lines,
		lookup: lookup,
		log:    logger.Sugar(),
	}
}

// Run drives the cursor over the whole file, invoking emit for every event.
// It stops on the first error; cancellation is honored at line boundaries.
func (s *Scanner) Run(ctx context.Context, emit func(Event) error) error {
	for i := 0; i < len(s.lines); {
		if err := ctx.Err(); err != nil {
			return err
		}
		ev, next, err := s.Next(ctx, i)
		if err != nil {
			return err
		}
		if ev != nil {
			if err := emit(ev); err != nil {
				return err
			}
		}
		i = next
	}
	return nil
}

// Next consumes the line at cursor i and returns the emitted event (nil when
// the line produces none) plus the next cursor position, which may be behind
// i after a Game_Over rewind.
func (s *Scanner) Next(ctx context.Context, i int) (Event, int, error) {
	ln := s.lines[i]

	// Terminal: reached the Game_Over line of the replaying match again.
	if s.matchStarted && i == s.matchEndIndex {
		s.matchStarted = false
		s.matchEndIndex = 0
		return GameProcessed{newMeta(ln.Time, "GameProcessed")}, i + 1, nil
	}

	// Round-start tracking while idle.
	if strings.Contains(ln.Raw, markerRoundStart) {
		isReplaying := s.matchEndIndex > 0 && i < s.matchEndIndex
		if s.matchStarted && len(s.roundStarts) == 0 && !isReplaying {
			// A fresh game is beginning after a prior commit.
			s.matchStarted = false
		}
		if !s.matchStarted {
			s.roundStarts = append(s.roundStarts, i)
			return nil, i + 1, nil
		}
	}

	// Game_Over detection and rewind.
	if m := GameOverRe.FindStringSubmatch(ln.Raw); m != nil {
		return s.handleGameOver(ctx, i, ln, m)
	}

	// Everything below only applies inside a confirmed match.
	if !s.matchStarted {
		return nil, i + 1, nil
	}

	if RoundStartRe.MatchString(ln.Raw) {
		return RoundStart{newMeta(ln.Time, "RoundStart")}, i + 1, nil
	}
	if m := KillRe.FindStringSubmatch(ln.Raw); m != nil {
		return Kill{
			Meta:      newMeta(ln.Time, "Kill"),
			Killer:    newPlayerRef(m[1], m[2], m[3], m[4]),
			KillerPos: s.parseCoord(m[5], m[6], m[7], ln.Raw),
			Victim:    newPlayerRef(m[8], m[9], m[10], m[11]),
			VictimPos: s.parseCoord(m[12], m[13], m[14], ln.Raw),
			Weapon:    m[15],
			Headshot:  strings.Contains(m[16], "headshot"),
		}, i + 1, nil
	}
	if m := AssistRe.FindStringSubmatch(ln.Raw); m != nil {
		return Assist{
			Meta:     newMeta(ln.Time, "Assist"),
			Assister: newPlayerRef(m[1], m[2], m[3], m[4]),
			Flash:    m[5] == "flash-",
			Victim:   newPlayerRef(m[6], m[7], m[8], m[9]),
		}, i + 1, nil
	}
	if m := AttackRe.FindStringSubmatch(ln.Raw); m != nil {
		return Attack{
			Meta:            newMeta(ln.Time, "Attack"),
			Attacker:        newPlayerRef(m[1], m[2], m[3], m[4]),
			AttackerPos:     s.parseCoord(m[5], m[6], m[7], ln.Raw),
			Victim:          newPlayerRef(m[8], m[9], m[10], m[11]),
			VictimPos:       s.parseCoord(m[12], m[13], m[14], ln.Raw),
			Weapon:          m[15],
			Damage:          toInt(m[16]),
			ArmorDamage:     toInt(m[17]),
			HealthRemaining: toInt(m[18]),
			ArmorRemaining:  toInt(m[19]),
			HitGroup:        m[20],
		}, i + 1, nil
	}
	if m := BombPlantRe.FindStringSubmatch(ln.Raw); m != nil {
		return Bomb{
			Meta:   newMeta(ln.Time, "Bomb"),
			Player: newPlayerRef(m[1], m[2], m[3], m[4]),
			Action: models.BombPlant,
		}, i + 1, nil
	}
	if m := BombDefuseRe.FindStringSubmatch(ln.Raw); m != nil {
		return Bomb{
			Meta:   newMeta(ln.Time, "Bomb"),
			Player: newPlayerRef(m[1], m[2], m[3], m[4]),
			Action: models.BombDefuse,
		}, i + 1, nil
	}
	if BombExplodeRe.MatchString(ln.Raw) {
		return Bomb{
			Meta:   newMeta(ln.Time, "Bomb"),
			Action: models.BombExplode,
		}, i + 1, nil
	}
	if RoundEndRe.MatchString(ln.Raw) {
		ev, next := s.parseRoundEnd(i, ln.Time)
		return ev, next, nil
	}

	return nil, i + 1, nil
}

// handleGameOver applies the admission filter and, when the match is
// admitted, parses the Game_Over line plus its accolade block, confirms the
// match and rewinds the cursor to its first tracked round start.
func (s *Scanner) handleGameOver(ctx context.Context, i int, ln Line, m []string) (Event, int, error) {
	blockStart, blockEnd := s.accoladeBlock(i)
	count := 0
	if blockEnd >= blockStart {
		count = blockEnd - blockStart + 1
	}

	if count < minAccolades {
		s.log.Infow("Rejecting game over: too few accolades",
			"index", i, "accolades", count)
		s.roundStarts = s.roundStarts[:0]
		s.matchStarted = false
		return nil, i + 1, nil
	}

	if s.lookup != nil {
		existing, err := s.lookup.FindGameOverEvent(ctx, ln.Time)
		if err != nil {
			return nil, i, fmt.Errorf("duplicate check: %w", err)
		}
		if existing != nil {
			s.log.Infow("Rejecting game over: already committed",
				"index", i, "timestamp", ln.Time)
			s.roundStarts = s.roundStarts[:0]
			s.matchStarted = false
			return nil, i + 1, nil
		}
	}

	ev := GameOver{
		Meta:            newMeta(ln.Time, "GameOver"),
		Mode:            m[1],
		Map:             m[3],
		Team1Score:      toInt(m[4]),
		Team2Score:      toInt(m[5]),
		DurationMinutes: toInt(m[6]),
		Accolades:       s.parseAccolades(blockStart, blockEnd),
	}

	total := ev.Team1Score + ev.Team2Score
	if total == 0 {
		// A 0:0 match has no rounds to replay and no valid rewind
		// target. Treat it like any other inadmissible Game_Over.
		s.log.Infow("Rejecting game over: zero score", "index", i)
		s.roundStarts = s.roundStarts[:0]
		s.matchStarted = false
		return nil, i + 1, nil
	}
	if len(s.roundStarts) < total {
		return nil, i, fmt.Errorf("%w: have %d round starts, score %d:%d requires %d",
			ErrIncompleteLog, len(s.roundStarts), ev.Team1Score, ev.Team2Score, total)
	}

	s.matchEndIndex = i
	s.matchStarted = true
	rewindTo := s.roundStarts[len(s.roundStarts)-total]
	s.roundStarts = nil

	s.log.Debugw("Match confirmed, rewinding",
		"gameOverIndex", i, "rewindTo", rewindTo, "rounds", total, "map", ev.Map)

	return ev, rewindTo, nil
}

// accoladeBlock locates the contiguous block of accolade lines preceding the
// Game_Over line at i. It first skips trailing non-accolade lines, then
// extends backward while lines stay contiguous. Returns (1, 0) when no
// accolade line precedes i.
func (s *Scanner) accoladeBlock(i int) (start, end int) {
	end = i - 1
	for end >= 0 && !strings.Contains(s.lines[end].Raw, markerAccolade) {
		end--
	}
	if end < 0 {
		return 1, 0
	}
	start = end
	for start > 0 && strings.Contains(s.lines[start-1].Raw, markerAccolade) {
		start--
	}
	return start, end
}

// parseAccolades parses the block in file order. Lines that carry the marker
// but fail the full pattern are skipped with a warning.
func (s *Scanner) parseAccolades(start, end int) []AccoladeLine {
	if end < start {
		return nil
	}
	accs := make([]AccoladeLine, 0, end-start+1)
	for j := start; j <= end; j++ {
		m := AccoladeRe.FindStringSubmatch(s.lines[j].Raw)
		if m == nil {
			s.log.Warnw("Unparseable accolade line", "index", j, "line", s.lines[j].Raw)
			continue
		}
		accs = append(accs, AccoladeLine{
			Type:       m[1],
			PlayerName: strings.TrimSpace(m[2]),
			SessionIdx: toInt(m[3]),
			Value:      toFloat(m[4]),
			Position:   toInt(m[5]),
			Score:      toFloat(m[6]),
		})
	}
	return accs
}

// parseRoundEnd performs the compound Round_End parse: the line is followed
// either by the final accolade block, or by a JSON_BEGIN..JSON_END tabular
// score block whose player rows name the round's survivors.
func (s *Scanner) parseRoundEnd(i int, ts time.Time) (Event, int) {
	j := i + 1
	for j < len(s.lines) {
		if strings.Contains(s.lines[j].Raw, markerAccolade) {
			// Final round: no score table follows.
			return RoundEnd{Meta: newMeta(ts, "RoundEnd")}, j + 1
		}
		if strings.Contains(s.lines[j].Raw, markerJSONBegin) {
			break
		}
		j++
	}
	if j >= len(s.lines) {
		return RoundEnd{Meta: newMeta(ts, "RoundEnd")}, len(s.lines)
	}

	var survivors []string
	k := j + headerRows + 1
	for k < len(s.lines) && !strings.Contains(s.lines[k].Raw, markerJSONEnd) {
		if name, ok := survivorName(s.lines[k].Raw); ok {
			survivors = append(survivors, name)
		}
		k++
	}

	return RoundEnd{
		Meta:      newMeta(ts, "RoundEnd"),
		Survivors: survivors,
	}, k + 1
}

// survivorName extracts a surviving player's name from a tabular block row:
// everything after the last colon, first comma-separated token, trimmed.
func survivorName(raw string) (string, bool) {
	if !strings.Contains(raw, markerPlayerRow) {
		return "", false
	}
	idx := strings.LastIndexByte(raw, ':')
	if idx < 0 || idx+1 >= len(raw) {
		return "", false
	}
	name := strings.TrimSpace(strings.Split(raw[idx+1:], ",")[0])
	if name == "" {
		return "", false
	}
	return name, true
}

// parseCoord parses one integer coordinate triple. Failures are non-fatal:
// the coordinate is recorded as absent and the line is otherwise processed.
func (s *Scanner) parseCoord(x, y, z, raw string) *models.Coord {
	xi, errX := strconv.Atoi(x)
	yi, errY := strconv.Atoi(y)
	zi, errZ := strconv.Atoi(z)
	if errX != nil || errY != nil || errZ != nil {
		s.log.Warnw("Invalid coordinates, recording as null", "line", raw)
		return nil
	}
	return &models.Coord{X: xi, Y: yi, Z: zi}
}
