package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"contest_judge/internal/platform/logging"
	"contest_judge/internal/platform/observability"
	"contest_judge/internal/platform/queue"
)

type Processor interface {
	Process(ctx context.Context, submissionID string) error
}

// Pool runs a fixed number of workers, each taking one submission id at a
// time off the queue.
type Pool struct {
	q           queue.Queue
	proc        Processor
	concurrency int
	jobTimeout  time.Duration
	busy        int64
	wg          sync.WaitGroup
}

// NewPool builds a pool. jobTimeout bounds a single Process call and should
// cover the judge poll window.
func NewPool(q queue.Queue, proc Processor, concurrency int, jobTimeout time.Duration) *Pool {
	if concurrency <= 0 {
		concurrency = 1
	}
	if jobTimeout <= 0 {
		jobTimeout = 2 * time.Minute
	}
	return &Pool{q: q, proc: proc, concurrency: concurrency, jobTimeout: jobTimeout}
}

// Start launches the workers. They stop taking new work when ctx is done;
// Wait blocks until in-flight submissions finish.
func (p *Pool) Start(ctx context.Context) {
	logging.QueueLog.WithField("workers", p.concurrency).Info("judge workers started")
	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.run(ctx, id)
		}(i)
	}
}

func (p *Pool) Wait() {
	p.wg.Wait()
	logging.QueueLog.Info("judge workers stopped")
}

func (p *Pool) run(ctx context.Context, id int) {
	log := logging.QueueLog.WithField("worker", id)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		submissionID, err := p.q.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrEmpty) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Error("dequeue failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		p.handle(ctx, submissionID)
	}
}

// handle runs one submission on a context detached from shutdown: judging
// that has started is never abandoned.
func (p *Pool) handle(parent context.Context, submissionID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), p.jobTimeout)
	defer cancel()

	observability.Default.SetGauge("judge_workers_busy", nil, float64(atomic.AddInt64(&p.busy, 1)))
	defer func() {
		observability.Default.SetGauge("judge_workers_busy", nil, float64(atomic.AddInt64(&p.busy, -1)))
	}()

	if err := p.proc.Process(ctx, submissionID); err != nil {
		logging.QueueLog.WithError(err).WithField("submission_id", submissionID).Error("processing failed")
	}
}
