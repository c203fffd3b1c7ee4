package leaderboard

import (
	"context"
	"os"
	"testing"
	"time"

	"contest_judge/internal/domain/model"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newTestRedisCache(t *testing.T) *RedisCache {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { rdb.Close() })
	return NewRedisCache(rdb, "test-leaderboard-"+uuid.NewString())
}

func TestRedisCacheUpsertTopPosition(t *testing.T) {
	c := newTestRedisCache(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	for _, e := range []model.LeaderboardEntry{
		{ContestID: "c1", UserID: "alice", Score: 60, ProblemsSolved: 0, UpdatedAt: now},
		{ContestID: "c1", UserID: "bob", Score: 85, ProblemsSolved: 1, UpdatedAt: now},
		{ContestID: "c1", UserID: "carol", Score: 85, ProblemsSolved: 1, UpdatedAt: now},
		{ContestID: "c1", UserID: "alice", Score: 30, UpdatedAt: now},
	} {
		if err := c.Upsert(ctx, e); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	top, err := c.Top(ctx, "c1", 10)
	if err != nil {
		t.Fatalf("Top: %v", err)
	}
	if len(top) != 3 || top[0].UserID != "bob" || top[1].UserID != "carol" || top[2].UserID != "alice" {
		t.Fatalf("Top = %+v", top)
	}
	if top[2].Score != 60 {
		t.Errorf("alice score = %d, want 60", top[2].Score)
	}
	if top[0].ProblemsSolved != 1 || !top[0].UpdatedAt.Equal(now) {
		t.Errorf("bob meta = %+v", top[0])
	}

	e, ok, err := c.Position(ctx, "c1", "carol")
	if err != nil || !ok || e.Position != 2 || e.Score != 85 {
		t.Errorf("Position(carol) = %+v, %v, %v", e, ok, err)
	}
	if _, ok, err := c.Position(ctx, "c1", "nobody"); ok || err != nil {
		t.Errorf("Position(nobody) = %v, %v", ok, err)
	}

	if err := c.Rebuild(ctx, "c1", []model.LeaderboardEntry{{UserID: "zed", Score: 5}}); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if n, _ := c.Size(ctx, "c1"); n != 1 {
		t.Errorf("Size after rebuild = %d, want 1", n)
	}
}
