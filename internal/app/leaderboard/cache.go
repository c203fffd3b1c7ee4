package leaderboard

import (
	"context"

	"contest_judge/internal/domain/model"
)

// Cache is the fast ranked projection of a contest's standings. Entries are
// ordered by score descending, then user id ascending. It is disposable: the
// contest_ranks table is authoritative and Rebuild restores the cache from it.
type Cache interface {
	// Upsert stores entry unless the cached score for the user is higher.
	Upsert(ctx context.Context, entry model.LeaderboardEntry) error
	// Top returns up to k entries with Position filled in.
	Top(ctx context.Context, contestID string, k int) ([]model.LeaderboardEntry, error)
	// Position returns the user's entry and whether the user is ranked.
	Position(ctx context.Context, contestID, userID string) (model.LeaderboardEntry, bool, error)
	Size(ctx context.Context, contestID string) (int, error)
	// Rebuild replaces every entry of the contest.
	Rebuild(ctx context.Context, contestID string, entries []model.LeaderboardEntry) error
}

func ranksToEntries(ranks []model.ContestRank) []model.LeaderboardEntry {
	out := make([]model.LeaderboardEntry, len(ranks))
	for i, r := range ranks {
		out[i] = model.LeaderboardEntry{
			ContestID:      r.ContestID,
			UserID:         r.UserID,
			Score:          r.TotalPoints,
			ProblemsSolved: r.SolvedCount,
			UpdatedAt:      r.UpdatedAt,
		}
	}
	return out
}
