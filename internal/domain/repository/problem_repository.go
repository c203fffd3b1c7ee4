package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"contest_judge/internal/common"
	"contest_judge/internal/domain/model"
)

// ProblemRepository is the read side of the problem administration system's
// tables.
type ProblemRepository interface {
	FindProblemByID(ctx context.Context, id string) (*model.Problem, error)
	GetTestCasesByProblemID(ctx context.Context, problemID string) ([]model.TestCase, error)
	FindContestProblemByID(ctx context.Context, id string) (*model.ContestProblem, error)
}

type pgProblemRepository struct {
	db *sql.DB
}

func NewPgProblemRepository(db *sql.DB) ProblemRepository {
	return &pgProblemRepository{db: db}
}

func (r *pgProblemRepository) FindProblemByID(ctx context.Context, id string) (*model.Problem, error) {
	query := `SELECT id, title, slug, points, runtime_limit_ms, memory_limit_kb, created_at, updated_at
	          FROM problems WHERE id = $1`

	problem := &model.Problem{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&problem.ID, &problem.Title, &problem.Slug, &problem.Points,
		&problem.RuntimeLimitMs, &problem.MemoryLimitKb,
		&problem.CreatedAt, &problem.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgProblemRepository.FindProblemByID: %w", err)
	}
	return problem, nil
}

func (r *pgProblemRepository) GetTestCasesByProblemID(ctx context.Context, problemID string) ([]model.TestCase, error) {
	query := `SELECT id, problem_id, input, expected_output, is_hidden, points, runtime_limit_ms, memory_limit_kb, sort_order
	          FROM test_cases WHERE problem_id = $1 ORDER BY sort_order ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query, problemID)
	if err != nil {
		return nil, fmt.Errorf("pgProblemRepository.GetTestCasesByProblemID query: %w", err)
	}
	defer rows.Close()

	var testCases []model.TestCase
	for rows.Next() {
		var tc model.TestCase
		if err := rows.Scan(&tc.ID, &tc.ProblemID, &tc.Input, &tc.ExpectedOutput, &tc.IsHidden, &tc.Points,
			&tc.RuntimeLimitMs, &tc.MemoryLimitKb, &tc.SortOrder); err != nil {
			return nil, fmt.Errorf("pgProblemRepository.GetTestCasesByProblemID scan: %w", err)
		}
		testCases = append(testCases, tc)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("pgProblemRepository.GetTestCasesByProblemID rows.Err: %w", err)
	}
	return testCases, nil
}

func (r *pgProblemRepository) FindContestProblemByID(ctx context.Context, id string) (*model.ContestProblem, error) {
	query := `SELECT id, contest_id, problem_id, points FROM contest_problems WHERE id = $1`
	cp := &model.ContestProblem{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&cp.ID, &cp.ContestID, &cp.ProblemID, &cp.Points)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgProblemRepository.FindContestProblemByID: %w", err)
	}
	return cp, nil
}
