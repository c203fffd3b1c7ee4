package service

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"contest_judge/internal/app/judge"
	"contest_judge/internal/common"
	"contest_judge/internal/domain/model"
	"contest_judge/internal/domain/repository"
	"contest_judge/internal/platform/logging"
	"contest_judge/internal/platform/queue"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// MaxSourceBytes bounds accepted source code.
const MaxSourceBytes = 64 * 1024

// Admitter gates submission intake.
type Admitter interface {
	TryAdmit(userID string) bool
}

type SubmissionService struct {
	submissionRepo repository.SubmissionRepository
	problemRepo    repository.ProblemRepository
	contestRepo    repository.ContestRepository
	tx             repository.Transactor
	languages      *judge.Catalog
	limiter        Admitter
	queue          queue.Queue
	now            func() time.Time
}

func NewSubmissionService(
	subRepo repository.SubmissionRepository,
	probRepo repository.ProblemRepository,
	contestRepo repository.ContestRepository,
	tx repository.Transactor,
	languages *judge.Catalog,
	limiter Admitter,
	q queue.Queue,
) *SubmissionService {
	return &SubmissionService{
		submissionRepo: subRepo,
		problemRepo:    probRepo,
		contestRepo:    contestRepo,
		tx:             tx,
		languages:      languages,
		limiter:        limiter,
		queue:          q,
		now:            time.Now,
	}
}

type CreateSubmissionRequest struct {
	ProblemID        string `json:"problem_id,omitempty"`
	ContestProblemID string `json:"contest_problem_id,omitempty"`
	LanguageID       string `json:"language_id"`
	SourceCode       string `json:"source_code"`
}

// CreateSubmission admits, validates and persists a Pending submission and
// queues it for judging. It never waits for the judge.
func (s *SubmissionService) CreateSubmission(ctx context.Context, userID string, req CreateSubmissionRequest) (*model.Submission, error) {
	if !s.limiter.TryAdmit(userID) {
		return nil, common.ErrRateLimited
	}

	if strings.TrimSpace(req.SourceCode) == "" {
		return nil, common.Errorf("source_code is required: %w", common.ErrValidation)
	}
	if len(req.SourceCode) > MaxSourceBytes {
		return nil, common.Errorf("source_code exceeds %d bytes: %w", MaxSourceBytes, common.ErrValidation)
	}
	if (req.ProblemID == "") == (req.ContestProblemID == "") {
		return nil, common.Errorf("exactly one of problem_id or contest_problem_id is required: %w", common.ErrValidation)
	}

	language, err := s.languages.Lookup(req.LanguageID)
	if err != nil {
		return nil, err
	}

	sub := &model.Submission{
		ID:         uuid.NewString(),
		UserID:     userID,
		LanguageID: language.ID,
		SourceCode: req.SourceCode,
		Status:     model.StatusPending,
		CreatedAt:  s.now().UTC(),
	}

	problemID := req.ProblemID
	if req.ContestProblemID != "" {
		cp, err := s.problemRepo.FindContestProblemByID(ctx, req.ContestProblemID)
		if err != nil {
			return nil, common.Errorf("contest problem %s: %w", req.ContestProblemID, err)
		}
		contest, err := s.contestRepo.FindContestByID(ctx, cp.ContestID)
		if err != nil {
			return nil, common.Errorf("contest %s: %w", cp.ContestID, err)
		}
		if sub.CreatedAt.Before(contest.StartTime) || !sub.CreatedAt.Before(contest.EndTime) {
			return nil, common.Errorf("contest %s is not running: %w", contest.ID, common.ErrForbidden)
		}
		problemID = cp.ProblemID
		sub.ContestID = &cp.ContestID
		sub.ContestProblemID = &cp.ID
	}

	problem, err := s.problemRepo.FindProblemByID(ctx, problemID)
	if err != nil {
		return nil, common.Errorf("problem %s: %w", problemID, err)
	}
	cases, err := s.problemRepo.GetTestCasesByProblemID(ctx, problem.ID)
	if err != nil {
		return nil, common.Errorf("failed to load test cases: %w", err)
	}
	if len(cases) == 0 {
		return nil, common.Errorf("problem %s has no test cases: %w", problem.ID, common.ErrBadRequest)
	}
	sub.ProblemID = problem.ID
	sub.TotalCount = len(cases)

	err = s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		ordinal, err := s.submissionRepo.NextAttemptOrdinal(ctx, tx, userID, problem.ID)
		if err != nil {
			return err
		}
		// The counter row stays locked until commit, so creation times
		// follow ordinals for the same (user, problem).
		sub.AttemptOrdinal = ordinal
		sub.CreatedAt = s.now().UTC()
		return s.submissionRepo.CreateSubmission(ctx, tx, sub)
	})
	if err != nil {
		return nil, common.Errorf("failed to create submission: %w", err)
	}

	log := logging.QueueLog.WithFields(logrus.Fields{
		"submission_id": sub.ID,
		"user_id":       userID,
		"problem_id":    problem.ID,
		"attempt":       sub.AttemptOrdinal,
	})
	if err := s.queue.Enqueue(ctx, sub.ID); err != nil {
		log.WithError(err).Error("enqueue failed, failing submission")
		s.failUnqueued(sub)
		return nil, common.Errorf("failed to queue submission: %w", common.ErrServiceUnavailable)
	}

	log.Info("submission queued")
	return sub, nil
}

// failUnqueued finalizes a submission that never reached the queue so it
// does not sit in Pending until the sweeper finds it.
func (s *SubmissionService) failUnqueued(sub *model.Submission) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msg := model.SystemErrorMessage
	err := s.submissionRepo.FinalizeSubmission(ctx, sub.ID, model.SubmissionFinal{
		Status:       model.StatusSystemError,
		TotalCount:   sub.TotalCount,
		ErrorMessage: &msg,
		JudgedAt:     s.now().UTC(),
	})
	if err != nil {
		logging.QueueLog.WithError(err).WithField("submission_id", sub.ID).Error("failed to finalize unqueued submission")
	}
}

// GetSubmission returns the submitter's view of a submission. Other users
// get ErrNotFound so ids cannot be probed.
func (s *SubmissionService) GetSubmission(ctx context.Context, userID, submissionID string) (*model.Submission, error) {
	sub, err := s.submissionRepo.GetSubmissionByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if sub.UserID != userID {
		return nil, common.ErrNotFound
	}
	sub.SourceCode = ""
	for i := range sub.Results {
		sub.Results[i] = sub.Results[i].Redacted()
	}
	return sub, nil
}
