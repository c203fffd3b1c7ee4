package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"contest_judge/internal/platform/config"
	"contest_judge/internal/platform/logging"

	"github.com/redis/go-redis/v9"
)

var RDB *redis.Client

func ConnectRedis() error {
	RDB = redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := RDB.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("could not connect to Redis: %w", err)
	}
	logging.QueueLog.Info("Successfully connected to Redis")
	return nil
}

func CloseRedis() {
	if RDB != nil {
		RDB.Close()
		logging.QueueLog.Info("Redis connection closed")
	}
}

// RedisQueue is a FIFO of submission ids backed by a Redis list. Producers
// LPUSH, consumers BRPOP.
type RedisQueue struct {
	rdb         *redis.Client
	key         string
	pollTimeout time.Duration
}

func NewRedisQueue(rdb *redis.Client, key string) *RedisQueue {
	return &RedisQueue{rdb: rdb, key: key, pollTimeout: 5 * time.Second}
}

func (q *RedisQueue) Enqueue(ctx context.Context, submissionID string) error {
	if err := q.rdb.LPush(ctx, q.key, submissionID).Err(); err != nil {
		return fmt.Errorf("push submission %s to %s: %w", submissionID, q.key, err)
	}
	return nil
}

// Dequeue blocks until an id is available or ctx is done. A BRPOP timeout is
// reported as ErrEmpty so callers can loop and re-check their context.
func (q *RedisQueue) Dequeue(ctx context.Context) (string, error) {
	res, err := q.rdb.BRPop(ctx, q.pollTimeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrEmpty
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("brpop %s: %w", q.key, err)
	}
	// res is [key, value]
	if len(res) < 2 || res[1] == "" {
		return "", ErrEmpty
	}
	return res[1], nil
}
