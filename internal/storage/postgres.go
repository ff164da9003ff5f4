package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/rankforge/rankforge/internal/models"
)

// Relational schema. game_events is a single table discriminated by
// game_event_type; variant fields are nullable. A game owns its events and
// accolades, so deleting it cascades. player_stats is keyed on steam id and
// is not cascaded.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS games (
	id               BIGSERIAL PRIMARY KEY,
	map              TEXT NOT NULL,
	mode             TEXT NOT NULL,
	team1_score      INT  NOT NULL,
	team2_score      INT  NOT NULL,
	duration_minutes INT  NOT NULL,
	start_time       TIMESTAMPTZ,
	end_time         TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS game_events (
	id                   BIGSERIAL PRIMARY KEY,
	game_id              BIGINT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
	round_start_event_id BIGINT REFERENCES game_events(id) ON DELETE CASCADE,
	game_event_type      TEXT NOT NULL,
	ts                   TIMESTAMPTZ NOT NULL,
	round_number         INT,
	actor_name           TEXT,
	actor_steam_id       TEXT,
	actor_side           TEXT,
	target_name          TEXT,
	target_steam_id      TEXT,
	target_side          TEXT,
	weapon               TEXT,
	headshot             BOOLEAN NOT NULL DEFAULT FALSE,
	assist_type          TEXT,
	damage               INT,
	armor_damage         INT,
	health_remaining     INT,
	armor_remaining      INT,
	hit_group            TEXT,
	bomb_action          TEXT,
	time_remaining       DOUBLE PRECISION,
	actor_x              INT,
	actor_y              INT,
	actor_z              INT,
	target_x             INT,
	target_y             INT,
	target_z             INT,
	survivors            TEXT[]
);

CREATE INDEX IF NOT EXISTS idx_game_events_game ON game_events (game_id);
CREATE INDEX IF NOT EXISTS idx_game_events_type_ts ON game_events (game_event_type, ts);

CREATE TABLE IF NOT EXISTS accolades (
	id            BIGSERIAL PRIMARY KEY,
	game_id       BIGINT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
	type          TEXT NOT NULL,
	player_name   TEXT NOT NULL,
	session_index INT  NOT NULL,
	steam_id      TEXT NOT NULL,
	value         DOUBLE PRECISION NOT NULL,
	position      INT  NOT NULL,
	score         DOUBLE PRECISION NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_accolades_game ON accolades (game_id);

CREATE TABLE IF NOT EXISTS player_stats (
	steam_id      TEXT PRIMARY KEY,
	name          TEXT   NOT NULL DEFAULT '',
	kills         BIGINT NOT NULL DEFAULT 0,
	deaths        BIGINT NOT NULL DEFAULT 0,
	assists       BIGINT NOT NULL DEFAULT 0,
	hs_kills      BIGINT NOT NULL DEFAULT 0,
	rounds_played BIGINT NOT NULL DEFAULT 0,
	games_played  BIGINT NOT NULL DEFAULT 0,
	clutches      BIGINT NOT NULL DEFAULT 0,
	damage        BIGINT NOT NULL DEFAULT 0,
	rank          DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_player_stats_rank ON player_stats (rank DESC);
`

// Postgres is the production relational driver.
type Postgres struct {
	pool *pgxpool.Pool
	log  *zap.SugaredLogger
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) *Postgres {
	return &Postgres{pool: pool, log: logger.Sugar()}
}

// EnsureSchema creates the tables if they do not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (p *Postgres) WithTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return Transient(fmt.Errorf("begin: %w", err))
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// classify marks serialization failures and deadlocks as transient so the
// caller can retry the whole ingest; the duplicate check keeps the retry
// idempotent.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return Transient(err)
		}
	}
	return err
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) InsertGame(ctx context.Context, g *models.Game) error {
	var start any
	if !g.StartTime.IsZero() {
		start = g.StartTime
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO games (map, mode, team1_score, team2_score, duration_minutes, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, g.Map, g.Mode, g.Team1Score, g.Team2Score, g.DurationMinutes, start, g.EndTime).Scan(&g.ID)
	if err != nil {
		return fmt.Errorf("insert game: %w", err)
	}
	return nil
}

func (t *pgTx) InsertGameEvents(ctx context.Context, evs []*models.GameEvent) error {
	if len(evs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, ev := range evs {
		ax, ay, az := coordVals(ev.ActorPos)
		tx, ty, tz := coordVals(ev.TargetPos)
		batch.Queue(`
			INSERT INTO game_events (
				game_id, round_start_event_id, game_event_type, ts, round_number,
				actor_name, actor_steam_id, actor_side,
				target_name, target_steam_id, target_side,
				weapon, headshot, assist_type,
				damage, armor_damage, health_remaining, armor_remaining, hit_group,
				bomb_action, time_remaining,
				actor_x, actor_y, actor_z, target_x, target_y, target_z,
				survivors
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
				$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28
			) RETURNING id
		`, ev.GameID, ev.RoundStartID, ev.Kind, ev.Timestamp, zeroNull(ev.RoundNumber),
			strNull(ev.ActorName), strNull(ev.ActorSteamID), strNull(ev.ActorSide),
			strNull(ev.TargetName), strNull(ev.TargetSteamID), strNull(ev.TargetSide),
			strNull(ev.Weapon), ev.Headshot, strNull(string(ev.AssistType)),
			ev.Damage, ev.ArmorDamage, ev.HealthRemaining, ev.ArmorRemaining, strNull(ev.HitGroup),
			strNull(string(ev.BombAction)), ev.TimeRemaining,
			ax, ay, az, tx, ty, tz,
			ev.Survivors)
	}

	br := t.tx.SendBatch(ctx, batch)
	defer br.Close()
	for _, ev := range evs {
		if err := br.QueryRow().Scan(&ev.ID); err != nil {
			return fmt.Errorf("insert game event (%s): %w", ev.Kind, err)
		}
	}
	return nil
}

func (t *pgTx) InsertAccolades(ctx context.Context, accs []*models.Accolade) error {
	if len(accs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, a := range accs {
		batch.Queue(`
			INSERT INTO accolades (game_id, type, player_name, session_index, steam_id, value, position, score)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id
		`, a.GameID, a.Type, a.PlayerName, a.SessionIndex, a.SteamID, a.Value, a.Position, a.Score)
	}

	br := t.tx.SendBatch(ctx, batch)
	defer br.Close()
	for _, a := range accs {
		if err := br.QueryRow().Scan(&a.ID); err != nil {
			return fmt.Errorf("insert accolade (%s): %w", a.Type, err)
		}
	}
	return nil
}

func (t *pgTx) UpsertPlayerStats(ctx context.Context, steamID string, fn func(*models.PlayerStats)) error {
	ps := models.PlayerStats{SteamID: steamID}
	err := t.tx.QueryRow(ctx, `
		SELECT steam_id, name, kills, deaths, assists, hs_kills,
		       rounds_played, games_played, clutches, damage, rank
		FROM player_stats WHERE steam_id = $1
		FOR UPDATE
	`, steamID).Scan(
		&ps.SteamID, &ps.Name, &ps.Kills, &ps.Deaths, &ps.Assists, &ps.HSKills,
		&ps.RoundsPlayed, &ps.GamesPlayed, &ps.Clutches, &ps.Damage, &ps.Rank,
	)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("select player stats: %w", err)
	}

	fn(&ps)

	_, err = t.tx.Exec(ctx, `
		INSERT INTO player_stats (steam_id, name, kills, deaths, assists, hs_kills,
		                          rounds_played, games_played, clutches, damage, rank)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (steam_id) DO UPDATE SET
			name = EXCLUDED.name,
			kills = EXCLUDED.kills,
			deaths = EXCLUDED.deaths,
			assists = EXCLUDED.assists,
			hs_kills = EXCLUDED.hs_kills,
			rounds_played = EXCLUDED.rounds_played,
			games_played = EXCLUDED.games_played,
			clutches = EXCLUDED.clutches,
			damage = EXCLUDED.damage,
			rank = EXCLUDED.rank
	`, ps.SteamID, ps.Name, ps.Kills, ps.Deaths, ps.Assists, ps.HSKills,
		ps.RoundsPlayed, ps.GamesPlayed, ps.Clutches, ps.Damage, ps.Rank)
	if err != nil {
		return fmt.Errorf("upsert player stats: %w", err)
	}
	return nil
}

func (p *Postgres) FindGameOverEvent(ctx context.Context, ts time.Time) (*models.GameEvent, error) {
	ev, err := scanEvent(p.pool.QueryRow(ctx, selectEventSQL+`
		WHERE game_event_type = $1 AND ts = $2
		LIMIT 1
	`, models.EventGameOver, ts))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find game over event: %w", err)
	}
	return ev, nil
}

func (p *Postgres) Game(ctx context.Context, id int64) (*models.Game, error) {
	g := models.Game{}
	var start *time.Time
	err := p.pool.QueryRow(ctx, `
		SELECT id, map, mode, team1_score, team2_score, duration_minutes, start_time, end_time
		FROM games WHERE id = $1
	`, id).Scan(&g.ID, &g.Map, &g.Mode, &g.Team1Score, &g.Team2Score, &g.DurationMinutes, &start, &g.EndTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select game: %w", err)
	}
	if start != nil {
		g.StartTime = *start
	}
	return &g, nil
}

const selectEventSQL = `
	SELECT id, game_id, round_start_event_id, game_event_type, ts, round_number,
	       actor_name, actor_steam_id, actor_side,
	       target_name, target_steam_id, target_side,
	       weapon, headshot, assist_type,
	       damage, armor_damage, health_remaining, armor_remaining, hit_group,
	       bomb_action, time_remaining,
	       actor_x, actor_y, actor_z, target_x, target_y, target_z,
	       survivors
	FROM game_events
`

func (p *Postgres) GameEvents(ctx context.Context, gameID int64) ([]*models.GameEvent, error) {
	rows, err := p.pool.Query(ctx, selectEventSQL+`WHERE game_id = $1 ORDER BY id`, gameID)
	if err != nil {
		return nil, fmt.Errorf("select game events: %w", err)
	}
	defer rows.Close()

	var out []*models.GameEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan game event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (p *Postgres) Accolades(ctx context.Context, gameID int64) ([]*models.Accolade, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, game_id, type, player_name, session_index, steam_id, value, position, score
		FROM accolades WHERE game_id = $1 ORDER BY id
	`, gameID)
	if err != nil {
		return nil, fmt.Errorf("select accolades: %w", err)
	}
	defer rows.Close()

	var out []*models.Accolade
	for rows.Next() {
		a := models.Accolade{}
		if err := rows.Scan(&a.ID, &a.GameID, &a.Type, &a.PlayerName, &a.SessionIndex,
			&a.SteamID, &a.Value, &a.Position, &a.Score); err != nil {
			return nil, fmt.Errorf("scan accolade: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (p *Postgres) PlayerStats(ctx context.Context, steamID string) (*models.PlayerStats, error) {
	ps := models.PlayerStats{}
	err := p.pool.QueryRow(ctx, `
		SELECT steam_id, name, kills, deaths, assists, hs_kills,
		       rounds_played, games_played, clutches, damage, rank
		FROM player_stats WHERE steam_id = $1
	`, steamID).Scan(
		&ps.SteamID, &ps.Name, &ps.Kills, &ps.Deaths, &ps.Assists, &ps.HSKills,
		&ps.RoundsPlayed, &ps.GamesPlayed, &ps.Clutches, &ps.Damage, &ps.Rank,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select player stats: %w", err)
	}
	return &ps, nil
}

func (p *Postgres) TopPlayers(ctx context.Context, limit int) ([]models.PlayerStats, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT steam_id, name, kills, deaths, assists, hs_kills,
		       rounds_played, games_played, clutches, damage, rank
		FROM player_stats
		ORDER BY rank DESC, kills DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("select top players: %w", err)
	}
	defer rows.Close()

	var out []models.PlayerStats
	for rows.Next() {
		ps := models.PlayerStats{}
		if err := rows.Scan(
			&ps.SteamID, &ps.Name, &ps.Kills, &ps.Deaths, &ps.Assists, &ps.HSKills,
			&ps.RoundsPlayed, &ps.GamesPlayed, &ps.Clutches, &ps.Damage, &ps.Rank,
		); err != nil {
			return nil, fmt.Errorf("scan top player: %w", err)
		}
		out = append(out, ps)
	}
	return out, rows.Err()
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// scanEvent reads one game_events row from the shared column list.
func scanEvent(row pgx.Row) (*models.GameEvent, error) {
	ev := models.GameEvent{}
	var (
		roundNumber                  *int
		assistType, bombAction       *string
		weapon, hitGroup             *string
		actorName, actorID, actorSd  *string
		targetName, targetID, tgtSd  *string
		damage, armorDamage          *int
		healthRemaining, armorRemain *int
		timeRemaining                *float64
		ax, ay, az, tx, ty, tz       *int
	)
	err := row.Scan(&ev.ID, &ev.GameID, &ev.RoundStartID, &ev.Kind, &ev.Timestamp, &roundNumber,
		&actorName, &actorID, &actorSd,
		&targetName, &targetID, &tgtSd,
		&weapon, &ev.Headshot, &assistType,
		&damage, &armorDamage, &healthRemaining, &armorRemain, &hitGroup,
		&bombAction, &timeRemaining,
		&ax, &ay, &az, &tx, &ty, &tz,
		&ev.Survivors)
	if err != nil {
		return nil, err
	}

	setInt := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	setStr := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setInt(&ev.RoundNumber, roundNumber)
	setStr(&ev.ActorName, actorName)
	setStr(&ev.ActorSteamID, actorID)
	setStr(&ev.ActorSide, actorSd)
	setStr(&ev.TargetName, targetName)
	setStr(&ev.TargetSteamID, targetID)
	setStr(&ev.TargetSide, tgtSd)
	setStr(&ev.Weapon, weapon)
	setStr(&ev.HitGroup, hitGroup)
	setInt(&ev.Damage, damage)
	setInt(&ev.ArmorDamage, armorDamage)
	setInt(&ev.HealthRemaining, healthRemaining)
	setInt(&ev.ArmorRemaining, armorRemain)
	if assistType != nil {
		ev.AssistType = models.AssistType(*assistType)
	}
	if bombAction != nil {
		ev.BombAction = models.BombAction(*bombAction)
	}
	if timeRemaining != nil {
		ev.TimeRemaining = *timeRemaining
	}
	if ax != nil && ay != nil && az != nil {
		ev.ActorPos = &models.Coord{X: *ax, Y: *ay, Z: *az}
	}
	if tx != nil && ty != nil && tz != nil {
		ev.TargetPos = &models.Coord{X: *tx, Y: *ty, Z: *tz}
	}
	return &ev, nil
}

func coordVals(c *models.Coord) (x, y, z any) {
	if c == nil {
		return nil, nil, nil
	}
	return c.X, c.Y, c.Z
}

// zeroNull maps a zero round number to NULL; only round_start rows carry one.
func zeroNull(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

// strNull maps an unset variant field to NULL rather than an empty string;
// scanEvent treats NULL as the zero value on the way back out.
func strNull(s string) any {
	if s == "" {
		return nil
	}
	return s
}
