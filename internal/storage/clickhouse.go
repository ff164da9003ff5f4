package storage

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rankforge/rankforge/internal/models"
)

// matchNamespace seeds deterministic match ids so re-archiving the same game
// produces the same rows instead of duplicates.
var matchNamespace = uuid.MustParse("7d5b1f0a-9c34-4b7e-8a21-3f6c0d9e4a55")

// ClickHouse archives flattened match events for offline analytics. It sits
// beside the relational store and is strictly best-effort: an archive failure
// never rolls back an ingest.
type ClickHouse struct {
	conn driver.Conn
	log  *zap.SugaredLogger
}

func NewClickHouse(conn driver.Conn, logger *zap.Logger) *ClickHouse {
	return &ClickHouse{conn: conn, log: logger.Sugar()}
}

const archiveDDL = `
CREATE TABLE IF NOT EXISTS match_events (
	match_id        UUID,
	game_id         Int64,
	event_type      LowCardinality(String),
	ts              DateTime64(3),
	round_number    UInt16,
	map             LowCardinality(String),
	mode            LowCardinality(String),
	actor_name      String,
	actor_steam_id  String,
	actor_side      LowCardinality(String),
	target_name     String,
	target_steam_id String,
	target_side     LowCardinality(String),
	weapon          LowCardinality(String),
	headshot        Bool,
	damage          UInt16,
	hit_group       LowCardinality(String),
	bomb_action     LowCardinality(String)
) ENGINE = ReplacingMergeTree
ORDER BY (match_id, ts, event_type, actor_steam_id, target_steam_id)
`

// EnsureSchema creates the archive table.
func (c *ClickHouse) EnsureSchema(ctx context.Context) error {
	if err := c.conn.Exec(ctx, archiveDDL); err != nil {
		return fmt.Errorf("ensure archive schema: %w", err)
	}
	return nil
}

// Archive writes one flat row per event of a committed game.
func (c *ClickHouse) Archive(ctx context.Context, game *models.Game, events []*models.GameEvent) error {
	matchID := uuid.NewMD5(matchNamespace, []byte(game.EndTime.UTC().Format("2006-01-02 15:04:05")+"|"+strconv.FormatInt(game.ID, 10)))

	batch, err := c.conn.PrepareBatch(ctx, "INSERT INTO match_events")
	if err != nil {
		return fmt.Errorf("prepare archive batch: %w", err)
	}

	for _, ev := range events {
		err := batch.Append(
			matchID,
			game.ID,
			string(ev.Kind),
			ev.Timestamp,
			uint16(ev.RoundNumber),
			game.Map,
			game.Mode,
			ev.ActorName,
			ev.ActorSteamID,
			ev.ActorSide,
			ev.TargetName,
			ev.TargetSteamID,
			ev.TargetSide,
			ev.Weapon,
			ev.Headshot,
			uint16(ev.Damage),
			ev.HitGroup,
			string(ev.BombAction),
		)
		if err != nil {
			return fmt.Errorf("append archive row (%s): %w", ev.Kind, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send archive batch: %w", err)
	}
	c.log.Debugw("archived match events", "game_id", game.ID, "rows", len(events))
	return nil
}

func (c *ClickHouse) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}
