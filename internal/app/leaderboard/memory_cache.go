package leaderboard

import (
	"context"
	"sync"
	"time"

	"contest_judge/internal/domain/model"
)

// MemoryCache keeps one skip list per contest in process memory. It is the
// single-node backend and the one used in tests.
type MemoryCache struct {
	mu     sync.RWMutex
	boards map[string]*memoryBoard
}

type memoryBoard struct {
	list    *skipList
	entries map[string]model.LeaderboardEntry
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{boards: make(map[string]*memoryBoard)}
}

func (c *MemoryCache) board(contestID string) *memoryBoard {
	b, ok := c.boards[contestID]
	if !ok {
		b = &memoryBoard{list: newSkipList(time.Now().UnixNano()), entries: make(map[string]model.LeaderboardEntry)}
		c.boards[contestID] = b
	}
	return b
}

func (c *MemoryCache) Upsert(ctx context.Context, e model.LeaderboardEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.board(e.ContestID)
	if old, ok := b.entries[e.UserID]; ok {
		if e.Score < old.Score {
			return nil
		}
		b.list.remove(old.Score, old.UserID)
	}
	e.Position = 0
	b.entries[e.UserID] = e
	b.list.insert(e.Score, e.UserID)
	return nil
}

func (c *MemoryCache) Top(ctx context.Context, contestID string, k int) ([]model.LeaderboardEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	b, ok := c.boards[contestID]
	if !ok || k <= 0 {
		return []model.LeaderboardEntry{}, nil
	}
	if k > b.list.length {
		k = b.list.length
	}
	out := make([]model.LeaderboardEntry, 0, k)
	n := b.list.byRank(1)
	for pos := 1; n != nil && pos <= k; pos++ {
		e := b.entries[n.userID]
		e.Position = pos
		out = append(out, e)
		n = n.next[0]
	}
	return out, nil
}

func (c *MemoryCache) Position(ctx context.Context, contestID, userID string) (model.LeaderboardEntry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	b, ok := c.boards[contestID]
	if !ok {
		return model.LeaderboardEntry{}, false, nil
	}
	e, ok := b.entries[userID]
	if !ok {
		return model.LeaderboardEntry{}, false, nil
	}
	e.Position = b.list.rank(e.Score, userID)
	return e, true, nil
}

func (c *MemoryCache) Size(ctx context.Context, contestID string) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if b, ok := c.boards[contestID]; ok {
		return b.list.length, nil
	}
	return 0, nil
}

func (c *MemoryCache) Rebuild(ctx context.Context, contestID string, entries []model.LeaderboardEntry) error {
	b := &memoryBoard{list: newSkipList(time.Now().UnixNano()), entries: make(map[string]model.LeaderboardEntry, len(entries))}
	for _, e := range entries {
		e.ContestID = contestID
		e.Position = 0
		if old, ok := b.entries[e.UserID]; ok {
			b.list.remove(old.Score, old.UserID)
		}
		b.entries[e.UserID] = e
		b.list.insert(e.Score, e.UserID)
	}

	c.mu.Lock()
	c.boards[contestID] = b
	c.mu.Unlock()
	return nil
}
