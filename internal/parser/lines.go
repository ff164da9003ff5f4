package parser

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
)

// maxLineSize bounds a single NDJSON record. CS2 chat lines and the tabular
// round-stats dumps stay well below this.
const maxLineSize = 1 << 20

// Line is one indexed log line: the collector timestamp plus the raw CS2 log
// text with its leading "L MM/DD/YYYY - HH:MM:SS: " prefix stripped. The
// whole file is held in memory so the scanner can rewind.
type Line struct {
	Time time.Time
	Raw  string
}

// ndjsonRecord is the shape the log collector emits, one object per line.
type ndjsonRecord struct {
	Time time.Time `json:"time"`
	Log  string    `json:"log"`
}

// ReadLines parses an NDJSON stream into an indexed line slice. Records that
// fail to decode are skipped with a warning; a malformed collector line never
// aborts the file.
func ReadLines(r io.Reader, logger *zap.Logger) ([]Line, error) {
	log := logger.Sugar()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)

	var lines []Line
	n := 0
	for sc.Scan() {
		n++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}

		var rec ndjsonRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			log.Warnw("Skipping malformed NDJSON record", "line", n, "error", err)
			continue
		}

		lines = append(lines, Line{
			Time: rec.Time,
			Raw:  stripLogPrefix(rec.Log),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading log stream: %w", err)
	}

	return lines, nil
}

// stripLogPrefix removes the engine's "L MM/DD/YYYY - HH:MM:SS: " prefix.
// The collector timestamp on the NDJSON record is authoritative; the embedded
// one is discarded.
func stripLogPrefix(s string) string {
	if m := LogLineRe.FindStringSubmatch(s); m != nil {
		return m[2]
	}
	return s
}
