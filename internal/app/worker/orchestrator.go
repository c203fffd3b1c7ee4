package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"contest_judge/internal/app/judge"
	"contest_judge/internal/app/scoring"
	"contest_judge/internal/common"
	"contest_judge/internal/domain/model"
	"contest_judge/internal/domain/repository"
	"contest_judge/internal/platform/logging"
	"contest_judge/internal/platform/observability"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// ContestScorer is told about every finished contest submission.
type ContestScorer interface {
	OnScored(ctx context.Context, contestID, userID string) error
}

type OrchestratorConfig struct {
	Submissions repository.SubmissionRepository
	Problems    repository.ProblemRepository
	Judge       judge.Client
	Languages   *judge.Catalog
	Poll        judge.PollPolicy
	Board       ContestScorer // nil disables contest updates
	Now         func() time.Time
}

// Orchestrator drives one submission from Pending to a terminal state.
type Orchestrator struct {
	subs      repository.SubmissionRepository
	problems  repository.ProblemRepository
	client    judge.Client
	languages *judge.Catalog
	poll      judge.PollPolicy
	board     ContestScorer
	now       func() time.Time
}

func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Orchestrator{
		subs:      cfg.Submissions,
		problems:  cfg.Problems,
		client:    cfg.Judge,
		languages: cfg.Languages,
		poll:      cfg.Poll,
		board:     cfg.Board,
		now:       cfg.Now,
	}
}

// Process judges a Pending submission and writes its terminal record. Any
// failure while judging ends in SystemError; the returned error only covers
// the cases where nothing could be persisted.
func (o *Orchestrator) Process(ctx context.Context, submissionID string) error {
	ctx, span := observability.StartSpan(ctx, "submission.process", attribute.String("submission.id", submissionID))
	defer span.End()
	log := logging.JudgeLog.WithField("submission_id", submissionID)

	sub, err := o.subs.GetSubmissionByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			log.Warn("dropping unknown submission")
			return nil
		}
		return fmt.Errorf("load submission %s: %w", submissionID, err)
	}
	if sub.Status != model.StatusPending {
		log.WithField("status", sub.Status).Debug("submission not pending, skipping")
		return nil
	}

	started := o.now()
	final, err := o.judge(ctx, sub)
	if err != nil {
		span.RecordError(err)
		log.WithError(err).Error("judging failed, recording system error")
		final = o.systemError(sub)
	}

	if err := o.subs.FinalizeSubmission(ctx, sub.ID, final); err != nil {
		if errors.Is(err, common.ErrAlreadyFinal) {
			log.Warn("submission was finalized elsewhere")
			return nil
		}
		return fmt.Errorf("finalize submission %s: %w", sub.ID, err)
	}

	observability.Default.IncCounter("submissions_judged_total", map[string]string{"status": string(final.Status)}, 1)
	log.WithFields(logrus.Fields{
		"status":  final.Status,
		"score":   final.Score,
		"passed":  final.PassedCount,
		"total":   final.TotalCount,
		"elapsed": o.now().Sub(started).String(),
	}).Info("submission judged")

	if sub.InContest() && o.board != nil {
		if err := o.board.OnScored(ctx, *sub.ContestID, sub.UserID); err != nil {
			log.WithError(err).WithField("contest_id", *sub.ContestID).Error("leaderboard update failed")
		}
	}
	return nil
}

func (o *Orchestrator) judge(ctx context.Context, sub *model.Submission) (model.SubmissionFinal, error) {
	lang, err := o.languages.Lookup(sub.LanguageID)
	if err != nil {
		return model.SubmissionFinal{}, err
	}
	problem, err := o.problems.FindProblemByID(ctx, sub.ProblemID)
	if err != nil {
		return model.SubmissionFinal{}, fmt.Errorf("load problem: %w", err)
	}
	cases, err := o.problems.GetTestCasesByProblemID(ctx, problem.ID)
	if err != nil {
		return model.SubmissionFinal{}, fmt.Errorf("load test cases: %w", err)
	}
	if len(cases) == 0 {
		return model.SubmissionFinal{}, fmt.Errorf("problem %s has no test cases", problem.ID)
	}

	points := problem.Points
	if sub.ContestProblemID != nil {
		cp, err := o.problems.FindContestProblemByID(ctx, *sub.ContestProblemID)
		if err != nil {
			return model.SubmissionFinal{}, fmt.Errorf("load contest problem: %w", err)
		}
		points = cp.EffectivePoints(problem)
	}

	items := make([]judge.Item, len(cases))
	for i, tc := range cases {
		runtimeMs, memoryKb := tc.Limits(problem)
		items[i] = judge.Item{
			SourceCode:     sub.SourceCode,
			LanguageID:     lang.JudgeLanguageID,
			Stdin:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
			CPUTimeLimitMs: runtimeMs,
			MemoryLimitKb:  memoryKb,
		}
	}

	tokens, err := o.client.SubmitBatch(ctx, items)
	if err != nil {
		return model.SubmissionFinal{}, fmt.Errorf("dispatch: %w", err)
	}
	if len(tokens) != len(items) {
		return model.SubmissionFinal{}, fmt.Errorf("dispatch: %d tokens for %d items", len(tokens), len(items))
	}
	if err := o.subs.MarkDispatched(ctx, sub.ID, o.now().UTC()); err != nil {
		return model.SubmissionFinal{}, fmt.Errorf("mark dispatched: %w", err)
	}

	verdicts, err := judge.Await(ctx, o.client, tokens, o.poll, scoring.Settled)
	if err != nil {
		return model.SubmissionFinal{}, fmt.Errorf("await verdicts: %w", err)
	}
	res, err := scoring.MapVerdicts(cases, verdicts)
	if err != nil {
		return model.SubmissionFinal{}, err
	}

	if res.Status == model.StatusSystemError {
		final := o.systemError(sub)
		final.PassedCount = res.Passed
		final.Results = res.Outcomes
		return final, nil
	}

	failed, err := o.subs.CountFailedAttemptsBefore(ctx, sub.UserID, sub.ProblemID, sub.AttemptOrdinal)
	if err != nil {
		return model.SubmissionFinal{}, fmt.Errorf("count failed attempts: %w", err)
	}
	score := scoring.Score(scoring.ScoreInput{
		Passed:         res.Passed,
		Total:          res.Total,
		AttemptOrdinal: sub.AttemptOrdinal,
		FailedAttempts: failed,
		Points:         points,
	})

	return model.SubmissionFinal{
		Status:       res.Status,
		Score:        score,
		RuntimeMs:    res.RuntimeMs,
		MemoryKb:     res.MemoryKb,
		PassedCount:  res.Passed,
		TotalCount:   res.Total,
		ErrorMessage: compileMessage(res),
		Results:      res.Outcomes,
		JudgedAt:     o.now().UTC(),
	}, nil
}

func (o *Orchestrator) systemError(sub *model.Submission) model.SubmissionFinal {
	msg := model.SystemErrorMessage
	return model.SubmissionFinal{
		Status:       model.StatusSystemError,
		TotalCount:   sub.TotalCount,
		ErrorMessage: &msg,
		JudgedAt:     o.now().UTC(),
	}
}

// compileMessage surfaces the compiler output of a compilation error.
func compileMessage(res scoring.Result) *string {
	if res.Status != model.StatusCompilationError || len(res.Outcomes) == 0 {
		return nil
	}
	last := res.Outcomes[len(res.Outcomes)-1]
	if last.CompileOutput != nil && *last.CompileOutput != "" {
		msg := *last.CompileOutput
		return &msg
	}
	msg := "compilation failed"
	return &msg
}
