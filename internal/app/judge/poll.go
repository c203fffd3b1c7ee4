package judge

import (
	"context"
	"fmt"
	"time"

	"contest_judge/internal/common"
	"contest_judge/internal/platform/logging"
)

type PollPolicy struct {
	Interval    time.Duration
	MaxAttempts int
}

// AllSettled reports whether no verdict is still queued or running.
func AllSettled(verdicts []Verdict) bool {
	for _, v := range verdicts {
		if v.InProgress() {
			return false
		}
	}
	return true
}

// Await polls tokens until done reports true or the attempts run out,
// in which case it returns common.ErrJudgeTimeout. A nil done means
// AllSettled. Transport errors end the wait immediately.
func Await(ctx context.Context, c Client, tokens []string, p PollPolicy, done func([]Verdict) bool) ([]Verdict, error) {
	if done == nil {
		done = AllSettled
	}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	timer := time.NewTimer(p.Interval)
	defer timer.Stop()

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}

		verdicts, err := c.PollBatch(ctx, tokens)
		if err != nil {
			return nil, err
		}
		if done(verdicts) {
			return verdicts, nil
		}
		logging.JudgeLog.WithField("attempt", attempt).Debug("batch still running")
		timer.Reset(p.Interval)
	}
	return nil, fmt.Errorf("%d polls of %d items: %w", p.MaxAttempts, len(tokens), common.ErrJudgeTimeout)
}
