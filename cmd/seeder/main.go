// Command seeder generates a small synthetic match log and posts it to a
// running server's ingest endpoint. Handy for smoke-testing a local stack.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const (
	apiURL = "http://localhost:8080/api/v1/ingest/logfile"

	alice = `"Alice<2><[U:1:111111]><CT>"`
	bob   = `"Bob<3><[U:1:222222]><TERRORIST>"`
)

type record struct {
	Time time.Time `json:"time"`
	Log  string    `json:"log"`
}

func main() {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	ts := time.Now().Add(-30 * time.Minute).Truncate(time.Second)

	emit := func(msg string) {
		ts = ts.Add(5 * time.Second)
		if err := enc.Encode(record{Time: ts, Log: msg}); err != nil {
			log.Fatalf("encode: %v", err)
		}
	}

	// Three rounds, final score 2:1. The first two rounds end with the
	// tabular score dump, the last one runs straight into the accolades.
	for round := 1; round <= 3; round++ {
		emit(`World triggered "Round_Start"`)
		emit(alice + ` [100 200 64] attacked ` + bob + ` [150 220 64] with "ak47" (damage "27") (damage_armor "12") (health "73") (armor "88") (hitgroup "chest")`)
		emit(alice + ` [100 200 64] killed ` + bob + ` [150 220 64] with "ak47" (headshot)`)
		emit(`World triggered "Round_End"`)
		if round < 3 {
			emit("JSON_BEGIN")
			for i := 0; i < 6; i++ {
				emit(fmt.Sprintf("header_%d", i))
			}
			emit("player_0: Alice, 75, 2")
			emit("JSON_END")
		}
	}
	for i := 1; i <= 6; i++ {
		emit(fmt.Sprintf("ACCOLADE, FINAL: {award_%d}, Alice<2>, VALUE: 1.000000, POS: %d, SCORE: 20.000000", i, i))
	}
	emit("Game Over: competitive mg_active de_dust2 score 2:1 after 25 min")

	req, err := http.NewRequest(http.MethodPost, apiURL, &buf)
	if err != nil {
		log.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("X-Source-Name", "seeder.log")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	log.Printf("status=%d body=%s", resp.StatusCode, body)
}
