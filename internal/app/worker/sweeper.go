package worker

import (
	"context"
	"errors"
	"time"

	"contest_judge/internal/common"
	"contest_judge/internal/domain/model"
	"contest_judge/internal/domain/repository"
	"contest_judge/internal/platform/logging"
	"contest_judge/internal/platform/observability"
)

const sweepBatch = 100

// Sweeper forces submissions stuck in a non-terminal state into SystemError,
// e.g. after a crash lost the in-flight work.
type Sweeper struct {
	subs            repository.SubmissionRepository
	dispatchedAfter time.Duration
	pendingAfter    time.Duration
	now             func() time.Time
}

// NewSweeper treats Dispatched submissions older than dispatchedAfter and
// Pending ones older than pendingAfter as lost.
func NewSweeper(subs repository.SubmissionRepository, dispatchedAfter, pendingAfter time.Duration) *Sweeper {
	return &Sweeper{subs: subs, dispatchedAfter: dispatchedAfter, pendingAfter: pendingAfter, now: time.Now}
}

func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.Sweep(ctx); err != nil {
				logging.JudgeLog.WithError(err).Error("stale sweep failed")
			} else if n > 0 {
				logging.JudgeLog.WithField("count", n).Warn("forced stale submissions to system error")
			}
		}
	}
}

// Sweep runs one pass and returns how many submissions it finalized.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.now().UTC()
	total := 0
	for _, stale := range []struct {
		status model.SubmissionStatus
		after  time.Duration
	}{
		{model.StatusDispatched, s.dispatchedAfter},
		{model.StatusPending, s.pendingAfter},
	} {
		ids, err := s.subs.FindStaleSubmissions(ctx, stale.status, now.Add(-stale.after), sweepBatch)
		if err != nil {
			return total, err
		}
		for _, id := range ids {
			sub, err := s.subs.GetSubmissionByID(ctx, id)
			if err != nil {
				return total, err
			}
			msg := model.SystemErrorMessage
			err = s.subs.FinalizeSubmission(ctx, id, model.SubmissionFinal{
				Status:       model.StatusSystemError,
				TotalCount:   sub.TotalCount,
				ErrorMessage: &msg,
				JudgedAt:     now,
			})
			if errors.Is(err, common.ErrAlreadyFinal) {
				continue
			}
			if err != nil {
				return total, err
			}
			total++
		}
	}
	observability.Default.IncCounter("stale_submissions_swept_total", nil, float64(total))
	return total, nil
}
