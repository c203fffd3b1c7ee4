// Package repotest provides an in-memory implementation of the repositories
// for service and worker tests.
package repotest

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"contest_judge/internal/common"
	"contest_judge/internal/domain/model"
)

// Store implements SubmissionRepository, ProblemRepository,
// ContestRepository and Transactor over maps.
type Store struct {
	mu sync.Mutex
	// txMu serializes WithinTx like the attempt counter's row lock does.
	txMu sync.Mutex

	Problems        map[string]*model.Problem
	TestCases       map[string][]model.TestCase
	ContestProblems map[string]*model.ContestProblem
	Contests        map[string]*model.Contest
	Submissions     map[string]*model.Submission
	Ranks           map[string][]model.ContestRank

	attempts map[string]int

	// FailFinalize makes FinalizeSubmission return this error when set.
	FailFinalize error
	// FailReplaceRanks makes ReplaceContestRanks return this error when set.
	FailReplaceRanks error
}

func New() *Store {
	return &Store{
		Problems:        make(map[string]*model.Problem),
		TestCases:       make(map[string][]model.TestCase),
		ContestProblems: make(map[string]*model.ContestProblem),
		Contests:        make(map[string]*model.Contest),
		Submissions:     make(map[string]*model.Submission),
		Ranks:           make(map[string][]model.ContestRank),
		attempts:        make(map[string]int),
	}
}

func (s *Store) AddProblem(p model.Problem, cases ...model.TestCase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Problems[p.ID] = &p
	for i := range cases {
		cases[i].ProblemID = p.ID
		if cases[i].SortOrder == 0 {
			cases[i].SortOrder = i + 1
		}
	}
	s.TestCases[p.ID] = cases
}

func (s *Store) AddContest(c model.Contest, problems ...model.ContestProblem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Contests[c.ID] = &c
	for i := range problems {
		cp := problems[i]
		cp.ContestID = c.ID
		s.ContestProblems[cp.ID] = &cp
	}
}

// Submission returns a copy of the stored submission.
func (s *Store) Submission(id string) (model.Submission, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.Submissions[id]
	if !ok {
		return model.Submission{}, false
	}
	return *sub, true
}

// PutSubmission stores sub as-is, bypassing the ordinal counter.
func (s *Store) PutSubmission(sub model.Submission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Submissions[sub.ID] = &sub
	key := sub.UserID + "/" + sub.ProblemID
	if sub.AttemptOrdinal > s.attempts[key] {
		s.attempts[key] = sub.AttemptOrdinal
	}
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(nil)
}

// Submissions

func (s *Store) NextAttemptOrdinal(ctx context.Context, tx *sql.Tx, userID, problemID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := userID + "/" + problemID
	s.attempts[key]++
	return s.attempts[key], nil
}

func (s *Store) CreateSubmission(ctx context.Context, tx *sql.Tx, sub *model.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.Submissions {
		if existing.UserID == sub.UserID && existing.ProblemID == sub.ProblemID && existing.AttemptOrdinal == sub.AttemptOrdinal {
			return fmt.Errorf("duplicate attempt ordinal %d: %w", sub.AttemptOrdinal, common.ErrConflict)
		}
	}
	cp := *sub
	s.Submissions[sub.ID] = &cp
	return nil
}

func (s *Store) GetSubmissionByID(ctx context.Context, id string) (*model.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.Submissions[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *sub
	cp.Results = append([]model.TestCaseOutcome(nil), sub.Results...)
	return &cp, nil
}

func (s *Store) MarkDispatched(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.Submissions[id]
	if !ok || sub.Status != model.StatusPending {
		return fmt.Errorf("submission %s not pending: %w", id, common.ErrAlreadyFinal)
	}
	sub.Status = model.StatusDispatched
	sub.DispatchedAt = &at
	return nil
}

func (s *Store) FinalizeSubmission(ctx context.Context, id string, f model.SubmissionFinal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailFinalize != nil {
		return s.FailFinalize
	}
	sub, ok := s.Submissions[id]
	if !ok || sub.Status.IsTerminal() {
		return fmt.Errorf("submission %s: %w", id, common.ErrAlreadyFinal)
	}
	sub.Status = f.Status
	sub.Score = f.Score
	sub.RuntimeMs = f.RuntimeMs
	sub.MemoryKb = f.MemoryKb
	sub.PassedCount = f.PassedCount
	sub.TotalCount = f.TotalCount
	sub.ErrorMessage = f.ErrorMessage
	sub.Results = f.Results
	at := f.JudgedAt
	sub.JudgedAt = &at
	return nil
}

func (s *Store) CountFailedAttemptsBefore(ctx context.Context, userID, problemID string, ordinal int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sub := range s.Submissions {
		if sub.UserID == userID && sub.ProblemID == problemID && sub.AttemptOrdinal < ordinal &&
			sub.Status.CountsAsFailedAttempt() {
			n++
		}
	}
	return n, nil
}

func (s *Store) ContestTotals(ctx context.Context, contestID, userID string) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	best := make(map[string]int)
	solved := make(map[string]bool)
	for _, sub := range s.Submissions {
		if !sub.InContest() || *sub.ContestID != contestID || sub.UserID != userID {
			continue
		}
		if sub.Score > best[sub.ProblemID] {
			best[sub.ProblemID] = sub.Score
		}
		if sub.Status == model.StatusAccepted {
			solved[sub.ProblemID] = true
		}
	}
	score := 0
	for _, b := range best {
		score += b
	}
	return score, len(solved), nil
}

func (s *Store) ListContestSubmissions(ctx context.Context, contestID string) ([]model.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Submission
	for _, sub := range s.Submissions {
		if sub.InContest() && *sub.ContestID == contestID && sub.Status.IsTerminal() {
			cp := *sub
			cp.SourceCode = ""
			cp.Results = nil
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].AttemptOrdinal < out[j].AttemptOrdinal
	})
	return out, nil
}

func (s *Store) FindStaleSubmissions(ctx context.Context, status model.SubmissionStatus, since time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stale []*model.Submission
	for _, sub := range s.Submissions {
		if sub.Status != status {
			continue
		}
		last := sub.CreatedAt
		if sub.DispatchedAt != nil {
			last = *sub.DispatchedAt
		}
		if last.Before(since) {
			stale = append(stale, sub)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].CreatedAt.Before(stale[j].CreatedAt) })
	ids := make([]string, 0, len(stale))
	for i, sub := range stale {
		if i == limit {
			break
		}
		ids = append(ids, sub.ID)
	}
	return ids, nil
}

// Problems

func (s *Store) FindProblemByID(ctx context.Context, id string) (*model.Problem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.Problems[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) GetTestCasesByProblemID(ctx context.Context, problemID string) ([]model.TestCase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cases := append([]model.TestCase(nil), s.TestCases[problemID]...)
	sort.SliceStable(cases, func(i, j int) bool { return cases[i].SortOrder < cases[j].SortOrder })
	return cases, nil
}

func (s *Store) FindContestProblemByID(ctx context.Context, id string) (*model.ContestProblem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.ContestProblems[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	out := *cp
	return &out, nil
}

// Contests

func (s *Store) FindContestByID(ctx context.Context, id string) (*model.Contest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.Contests[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	out := *c
	return &out, nil
}

func (s *Store) ReplaceContestRanks(ctx context.Context, tx *sql.Tx, contestID string, ranks []model.ContestRank) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailReplaceRanks != nil {
		return s.FailReplaceRanks
	}
	s.Ranks[contestID] = append([]model.ContestRank(nil), ranks...)
	return nil
}

func (s *Store) ListContestRanks(ctx context.Context, contestID string, limit int) ([]model.ContestRank, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ranks := s.Ranks[contestID]
	if limit > 0 && len(ranks) > limit {
		ranks = ranks[:limit]
	}
	return append([]model.ContestRank{}, ranks...), nil
}

func (s *Store) GetContestRank(ctx context.Context, contestID, userID string) (*model.ContestRank, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.Ranks[contestID] {
		if r.UserID == userID {
			out := r
			return &out, nil
		}
	}
	return nil, common.ErrNotFound
}

func (s *Store) CountParticipants(ctx context.Context, contestID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Ranks[contestID]), nil
}
