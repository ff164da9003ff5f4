package logic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rankforge/rankforge/internal/models"
	"github.com/rankforge/rankforge/internal/storage"
)

const (
	leaderboardKeyPrefix = "rankforge:leaderboard:"
	leaderboardTTL       = 30 * time.Second
)

// LeaderboardService serves rank-ordered player listings, with a short Redis
// cache in front of the store. A nil redis client disables caching.
type LeaderboardService struct {
	store storage.Store
	rdb   *redis.Client
	log   *zap.SugaredLogger
}

func NewLeaderboardService(store storage.Store, rdb *redis.Client, logger *zap.Logger) *LeaderboardService {
	return &LeaderboardService{store: store, rdb: rdb, log: logger.Sugar()}
}

// Top returns the highest-ranked players, most recent cache copy first.
func (s *LeaderboardService) Top(ctx context.Context, limit int) ([]models.PlayerStats, error) {
	key := fmt.Sprintf("%s%d", leaderboardKeyPrefix, limit)

	if s.rdb != nil {
		data, err := s.rdb.Get(ctx, key).Bytes()
		if err == nil {
			var cached []models.PlayerStats
			if jsonErr := json.Unmarshal(data, &cached); jsonErr == nil {
				return cached, nil
			}
			// Corrupt cache entry: fall through to the store.
			s.rdb.Del(ctx, key)
		} else if !errors.Is(err, redis.Nil) {
			s.log.Warnw("Leaderboard cache read failed", "error", err)
		}
	}

	players, err := s.store.TopPlayers(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("top players: %w", err)
	}

	if s.rdb != nil {
		if data, err := json.Marshal(players); err == nil {
			if err := s.rdb.Set(ctx, key, data, leaderboardTTL).Err(); err != nil {
				s.log.Warnw("Leaderboard cache write failed", "error", err)
			}
		}
	}
	return players, nil
}

// Invalidate drops all cached leaderboard entries. Called after a match
// commit so fresh ranks show up before the TTL expires.
func (s *LeaderboardService) Invalidate(ctx context.Context) {
	if s.rdb == nil {
		return
	}
	iter := s.rdb.Scan(ctx, 0, leaderboardKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		s.rdb.Del(ctx, iter.Val())
	}
	if err := iter.Err(); err != nil {
		s.log.Warnw("Leaderboard cache invalidation failed", "error", err)
	}
}
