package service

import (
	"context"
	"errors"
	"time"

	"contest_judge/internal/app/leaderboard"
	"contest_judge/internal/common"
	"contest_judge/internal/domain/model"
	"contest_judge/internal/domain/repository"
)

const maxLeaderboardLimit = 100

type LeaderboardService struct {
	contestRepo  repository.ContestRepository
	engine       *leaderboard.Engine
	defaultLimit int
	now          func() time.Time
}

func NewLeaderboardService(contestRepo repository.ContestRepository, engine *leaderboard.Engine, defaultLimit int) *LeaderboardService {
	if defaultLimit <= 0 {
		defaultLimit = 10
	}
	return &LeaderboardService{
		contestRepo:  contestRepo,
		engine:       engine,
		defaultLimit: defaultLimit,
		now:          time.Now,
	}
}

// EnsureContest reports ErrNotFound for unknown contests.
func (s *LeaderboardService) EnsureContest(ctx context.Context, contestID string) error {
	_, err := s.contestRepo.FindContestByID(ctx, contestID)
	return err
}

func (s *LeaderboardService) clamp(limit int) int {
	if limit <= 0 {
		return s.defaultLimit
	}
	if limit > maxLeaderboardLimit {
		return maxLeaderboardLimit
	}
	return limit
}

// GetLeaderboard reads the durable standings: the top entries plus the
// caller's own rank when they have one.
func (s *LeaderboardService) GetLeaderboard(ctx context.Context, contestID, userID string, limit int) (*model.LeaderboardSnapshot, error) {
	if _, err := s.contestRepo.FindContestByID(ctx, contestID); err != nil {
		return nil, err
	}
	top, err := s.contestRepo.ListContestRanks(ctx, contestID, s.clamp(limit))
	if err != nil {
		return nil, common.Errorf("failed to list ranks: %w", err)
	}
	participants, err := s.contestRepo.CountParticipants(ctx, contestID)
	if err != nil {
		return nil, common.Errorf("failed to count participants: %w", err)
	}

	snap := &model.LeaderboardSnapshot{
		ContestID:    contestID,
		Top:          top,
		Participants: participants,
		GeneratedAt:  s.now().UTC(),
	}
	if userID != "" {
		own, err := s.contestRepo.GetContestRank(ctx, contestID, userID)
		switch {
		case err == nil:
			info := leaderboard.RankInfoFrom(*own, participants)
			snap.Me = &info
		case !errors.Is(err, common.ErrNotFound):
			return nil, common.Errorf("failed to load own rank: %w", err)
		}
	}
	return snap, nil
}

type LiveLeaderboard struct {
	ContestID    string                   `json:"contest_id"`
	Entries      []model.LeaderboardEntry `json:"entries"`
	Me           *model.LeaderboardEntry  `json:"me,omitempty"`
	Participants int                      `json:"participants"`
}

// GetLiveLeaderboard reads the cache. It may briefly lead the durable view.
func (s *LeaderboardService) GetLiveLeaderboard(ctx context.Context, contestID, userID string, limit int) (*LiveLeaderboard, error) {
	if _, err := s.contestRepo.FindContestByID(ctx, contestID); err != nil {
		return nil, err
	}
	cache := s.engine.Cache()
	entries, err := cache.Top(ctx, contestID, s.clamp(limit))
	if err != nil {
		return nil, common.Errorf("failed to read leaderboard cache: %w", common.ErrServiceUnavailable)
	}
	size, err := cache.Size(ctx, contestID)
	if err != nil {
		return nil, common.Errorf("failed to read leaderboard cache: %w", common.ErrServiceUnavailable)
	}

	live := &LiveLeaderboard{ContestID: contestID, Entries: entries, Participants: size}
	if userID != "" {
		if e, ok, err := cache.Position(ctx, contestID, userID); err == nil && ok {
			live.Me = &e
		}
	}
	return live, nil
}

// Rebuild recomputes the rank table from submission history and replaces
// the cache.
func (s *LeaderboardService) Rebuild(ctx context.Context, contestID string) ([]model.ContestRank, error) {
	if _, err := s.contestRepo.FindContestByID(ctx, contestID); err != nil {
		return nil, err
	}
	return s.engine.Rebuild(ctx, contestID)
}
