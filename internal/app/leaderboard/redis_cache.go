package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"contest_judge/internal/domain/model"

	"github.com/redis/go-redis/v9"
)

// RedisCache stores each contest as a sorted set of negated scores, so an
// ascending range gives score descending with ties in user id order. Solved
// counts and update times live in a companion hash.
type RedisCache struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisCache(rdb *redis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "leaderboard"
	}
	return &RedisCache{rdb: rdb, prefix: prefix}
}

func (c *RedisCache) scoresKey(contestID string) string { return c.prefix + ":" + contestID }
func (c *RedisCache) metaKey(contestID string) string   { return c.prefix + ":" + contestID + ":meta" }

func encodeMeta(e model.LeaderboardEntry) string {
	return strconv.Itoa(e.ProblemsSolved) + "|" + strconv.FormatInt(e.UpdatedAt.UnixMilli(), 10)
}

func decodeMeta(s string, e *model.LeaderboardEntry) {
	solved, updated, ok := strings.Cut(s, "|")
	if !ok {
		return
	}
	if n, err := strconv.Atoi(solved); err == nil {
		e.ProblemsSolved = n
	}
	if ms, err := strconv.ParseInt(updated, 10, 64); err == nil {
		e.UpdatedAt = time.UnixMilli(ms).UTC()
	}
}

func (c *RedisCache) Upsert(ctx context.Context, e model.LeaderboardEntry) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		// LT on the negated score keeps the higher real score.
		pipe.ZAddArgs(ctx, c.scoresKey(e.ContestID), redis.ZAddArgs{
			LT:      true,
			Members: []redis.Z{{Score: -float64(e.Score), Member: e.UserID}},
		})
		pipe.HSet(ctx, c.metaKey(e.ContestID), e.UserID, encodeMeta(e))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis cache upsert %s/%s: %w", e.ContestID, e.UserID, err)
	}
	return nil
}

func (c *RedisCache) Top(ctx context.Context, contestID string, k int) ([]model.LeaderboardEntry, error) {
	if k <= 0 {
		return []model.LeaderboardEntry{}, nil
	}
	zs, err := c.rdb.ZRangeWithScores(ctx, c.scoresKey(contestID), 0, int64(k-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis cache top %s: %w", contestID, err)
	}
	if len(zs) == 0 {
		return []model.LeaderboardEntry{}, nil
	}

	users := make([]string, len(zs))
	for i, z := range zs {
		users[i], _ = z.Member.(string)
	}
	metas, err := c.rdb.HMGet(ctx, c.metaKey(contestID), users...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis cache top meta %s: %w", contestID, err)
	}

	out := make([]model.LeaderboardEntry, len(zs))
	for i, z := range zs {
		e := model.LeaderboardEntry{ContestID: contestID, UserID: users[i], Score: int(-z.Score), Position: i + 1}
		if s, ok := metas[i].(string); ok {
			decodeMeta(s, &e)
		}
		out[i] = e
	}
	return out, nil
}

func (c *RedisCache) Position(ctx context.Context, contestID, userID string) (model.LeaderboardEntry, bool, error) {
	key := c.scoresKey(contestID)
	pipe := c.rdb.Pipeline()
	rankCmd := pipe.ZRank(ctx, key, userID)
	scoreCmd := pipe.ZScore(ctx, key, userID)
	metaCmd := pipe.HGet(ctx, c.metaKey(contestID), userID)
	_, err := pipe.Exec(ctx)
	if err != nil && !errors.Is(err, redis.Nil) {
		return model.LeaderboardEntry{}, false, fmt.Errorf("redis cache position %s/%s: %w", contestID, userID, err)
	}

	rank, err := rankCmd.Result()
	if errors.Is(err, redis.Nil) {
		return model.LeaderboardEntry{}, false, nil
	}
	if err != nil {
		return model.LeaderboardEntry{}, false, err
	}
	score, err := scoreCmd.Result()
	if err != nil {
		return model.LeaderboardEntry{}, false, err
	}
	e := model.LeaderboardEntry{ContestID: contestID, UserID: userID, Score: int(-score), Position: int(rank) + 1}
	if s, err := metaCmd.Result(); err == nil {
		decodeMeta(s, &e)
	}
	return e, true, nil
}

func (c *RedisCache) Size(ctx context.Context, contestID string) (int, error) {
	n, err := c.rdb.ZCard(ctx, c.scoresKey(contestID)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis cache size %s: %w", contestID, err)
	}
	return int(n), nil
}

func (c *RedisCache) Rebuild(ctx context.Context, contestID string, entries []model.LeaderboardEntry) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, c.scoresKey(contestID), c.metaKey(contestID))
		if len(entries) == 0 {
			return nil
		}
		members := make([]redis.Z, len(entries))
		meta := make(map[string]interface{}, len(entries))
		for i, e := range entries {
			members[i] = redis.Z{Score: -float64(e.Score), Member: e.UserID}
			meta[e.UserID] = encodeMeta(e)
		}
		pipe.ZAdd(ctx, c.scoresKey(contestID), members...)
		pipe.HSet(ctx, c.metaKey(contestID), meta)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis cache rebuild %s: %w", contestID, err)
	}
	return nil
}
