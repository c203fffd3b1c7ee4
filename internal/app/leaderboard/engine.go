package leaderboard

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"contest_judge/internal/domain/model"
	"contest_judge/internal/domain/repository"
	"contest_judge/internal/platform/logging"
	"contest_judge/internal/platform/observability"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Publisher receives the results of every successful rank sync.
type Publisher interface {
	PublishLeaderboard(contestID string, snap model.LeaderboardSnapshot)
	PublishUserRank(contestID, userID string, info model.RankInfo)
}

type Config struct {
	Submissions repository.SubmissionRepository
	Contests    repository.ContestRepository
	Tx          repository.Transactor
	Cache       Cache
	Publisher   Publisher
	TopN        int
	Now         func() time.Time
}

// Engine keeps the cache and the durable rank table in step with submission
// history. Cache writes are serialized per (contest, user). A sync holds the
// contest lock from recompute through reconcile and publish.
type Engine struct {
	subs         repository.SubmissionRepository
	contests     repository.ContestRepository
	tx           repository.Transactor
	cache        Cache
	pub          Publisher
	topN         int
	now          func() time.Time
	userLocks    *keyedMutex
	contestLocks *keyedMutex
}

func NewEngine(cfg Config) *Engine {
	if cfg.TopN <= 0 {
		cfg.TopN = 10
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		subs:         cfg.Submissions,
		contests:     cfg.Contests,
		tx:           cfg.Tx,
		cache:        cfg.Cache,
		pub:          cfg.Publisher,
		topN:         cfg.TopN,
		now:          cfg.Now,
		userLocks:    newKeyedMutex(),
		contestLocks: newKeyedMutex(),
	}
}

func (e *Engine) Cache() Cache { return e.cache }

// OnScored runs after a contest submission reaches a terminal state. A cache
// failure is logged and does not stop the durable sync. The cache write and
// the sync share the contest lock, so an older pass never overwrites a newer
// one.
func (e *Engine) OnScored(ctx context.Context, contestID, userID string) error {
	unlock := e.contestLocks.Lock(contestID)
	defer unlock()

	if err := e.UpdateUser(ctx, contestID, userID); err != nil {
		logging.BoardLog.WithError(err).WithFields(logrus.Fields{
			"contest_id": contestID,
			"user_id":    userID,
		}).Warn("cache update failed, relying on sync to reconcile")
	}
	return e.sync(ctx, contestID, userID)
}

// UpdateUser recomputes the user's cumulative best score from the durable
// store and writes it to the cache.
func (e *Engine) UpdateUser(ctx context.Context, contestID, userID string) error {
	unlock := e.userLocks.Lock(contestID + "/" + userID)
	defer unlock()

	score, solved, err := e.subs.ContestTotals(ctx, contestID, userID)
	if err != nil {
		return fmt.Errorf("contest totals: %w", err)
	}
	return e.cache.Upsert(ctx, model.LeaderboardEntry{
		ContestID:      contestID,
		UserID:         userID,
		Score:          score,
		ProblemsSolved: solved,
		UpdatedAt:      e.now().UTC(),
	})
}

// Sync recomputes and persists the contest's ranks, reconciles the cache and
// publishes the new standings. triggeringUserID may be empty.
func (e *Engine) Sync(ctx context.Context, contestID, triggeringUserID string) error {
	unlock := e.contestLocks.Lock(contestID)
	defer unlock()
	return e.sync(ctx, contestID, triggeringUserID)
}

// sync runs with the contest lock held from recompute through publish.
func (e *Engine) sync(ctx context.Context, contestID, triggeringUserID string) error {
	ranks, err := e.recompute(ctx, contestID)
	if err != nil {
		return err
	}
	e.reconcile(ctx, contestID, ranks, false)
	e.publish(contestID, triggeringUserID, ranks)
	return nil
}

// Rebuild recomputes the rank table and replaces the cache unconditionally.
func (e *Engine) Rebuild(ctx context.Context, contestID string) ([]model.ContestRank, error) {
	unlock := e.contestLocks.Lock(contestID)
	defer unlock()

	ranks, err := e.recompute(ctx, contestID)
	if err != nil {
		return nil, err
	}
	e.reconcile(ctx, contestID, ranks, true)
	e.publish(contestID, "", ranks)
	return ranks, nil
}

func (e *Engine) recompute(ctx context.Context, contestID string) ([]model.ContestRank, error) {
	ctx, span := observability.StartSpan(ctx, "leaderboard.sync", attribute.String("contest.id", contestID))
	defer span.End()

	contest, err := e.contests.FindContestByID(ctx, contestID)
	if err != nil {
		return nil, fmt.Errorf("load contest %s: %w", contestID, err)
	}
	subs, err := e.subs.ListContestSubmissions(ctx, contestID)
	if err != nil {
		return nil, fmt.Errorf("load submissions of %s: %w", contestID, err)
	}

	ranks := ComputeRanks(contest, subs, e.now().UTC())
	err = e.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		return e.contests.ReplaceContestRanks(ctx, tx, contestID, ranks)
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("persist ranks of %s: %w", contestID, err)
	}

	observability.Default.IncCounter("rank_syncs_total", nil, 1)
	logging.BoardLog.WithFields(logrus.Fields{
		"contest_id":   contestID,
		"participants": len(ranks),
	}).Debug("ranks persisted")
	return ranks, nil
}

// reconcile makes the cache agree with freshly computed ranks. Without force
// the cache is only rebuilt when it disagrees.
func (e *Engine) reconcile(ctx context.Context, contestID string, ranks []model.ContestRank, force bool) {
	log := logging.BoardLog.WithField("contest_id", contestID)
	if !force {
		cached, err := e.cache.Top(ctx, contestID, len(ranks)+1)
		if err != nil {
			log.WithError(err).Warn("cache read failed, rebuilding")
		} else if cacheMatches(cached, ranks) {
			return
		} else {
			log.Info("cache drifted from rank table, rebuilding")
		}
	}
	if err := e.cache.Rebuild(ctx, contestID, ranksToEntries(ranks)); err != nil {
		log.WithError(err).Error("cache rebuild failed")
	}
}

func cacheMatches(cached []model.LeaderboardEntry, ranks []model.ContestRank) bool {
	if len(cached) != len(ranks) {
		return false
	}
	want := make(map[string]int, len(ranks))
	for _, r := range ranks {
		want[r.UserID] = r.TotalPoints
	}
	for _, c := range cached {
		if score, ok := want[c.UserID]; !ok || score != c.Score {
			return false
		}
	}
	return true
}

func (e *Engine) publish(contestID, userID string, ranks []model.ContestRank) {
	if e.pub == nil {
		return
	}
	top := ranks
	if len(top) > e.topN {
		top = top[:e.topN]
	}
	e.pub.PublishLeaderboard(contestID, model.LeaderboardSnapshot{
		ContestID:    contestID,
		Top:          append([]model.ContestRank(nil), top...),
		Participants: len(ranks),
		GeneratedAt:  e.now().UTC(),
	})

	if userID == "" {
		return
	}
	for _, r := range ranks {
		if r.UserID == userID {
			e.pub.PublishUserRank(contestID, userID, RankInfoFrom(r, len(ranks)))
			return
		}
	}
}

func RankInfoFrom(r model.ContestRank, participants int) model.RankInfo {
	return model.RankInfo{
		ContestID:      r.ContestID,
		UserID:         r.UserID,
		Rank:           r.Rank,
		TotalPoints:    r.TotalPoints,
		SolveMinutes:   r.SolveMinutes,
		PenaltyMinutes: r.PenaltyMinutes,
		Participants:   participants,
	}
}
