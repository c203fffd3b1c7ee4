package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"contest_judge/internal/common"
	"contest_judge/internal/domain/model"

	"github.com/jackc/pgx/v5/pgconn"
)

type SubmissionRepository interface {
	// NextAttemptOrdinal atomically bumps and returns the (user, problem)
	// attempt counter. Call it in the same transaction as CreateSubmission.
	NextAttemptOrdinal(ctx context.Context, tx *sql.Tx, userID, problemID string) (int, error)
	CreateSubmission(ctx context.Context, tx *sql.Tx, sub *model.Submission) error
	GetSubmissionByID(ctx context.Context, id string) (*model.Submission, error)
	MarkDispatched(ctx context.Context, id string, at time.Time) error
	// FinalizeSubmission writes the terminal record. It returns
	// common.ErrAlreadyFinal if the submission is already terminal.
	FinalizeSubmission(ctx context.Context, id string, final model.SubmissionFinal) error
	CountFailedAttemptsBefore(ctx context.Context, userID, problemID string, ordinal int) (int, error)
	// ContestTotals sums the user's best score per problem in the contest and
	// counts the problems they have an accepted submission for.
	ContestTotals(ctx context.Context, contestID, userID string) (score int, solved int, err error)
	// ListContestSubmissions returns the finished submissions of a contest in
	// submission order, without source code or results.
	ListContestSubmissions(ctx context.Context, contestID string) ([]model.Submission, error)
	// FindStaleSubmissions lists ids in status whose last transition happened
	// before since.
	FindStaleSubmissions(ctx context.Context, status model.SubmissionStatus, since time.Time, limit int) ([]string, error)
}

type pgSubmissionRepository struct {
	db *sql.DB
}

func NewPgSubmissionRepository(db *sql.DB) SubmissionRepository {
	return &pgSubmissionRepository{db: db}
}

func (r *pgSubmissionRepository) NextAttemptOrdinal(ctx context.Context, tx *sql.Tx, userID, problemID string) (int, error) {
	query := `INSERT INTO submission_attempts (user_id, problem_id, counter)
	          VALUES ($1, $2, 1)
	          ON CONFLICT (user_id, problem_id) DO UPDATE SET counter = submission_attempts.counter + 1
	          RETURNING counter`

	var ordinal int
	if err := conn(r.db, tx).QueryRowContext(ctx, query, userID, problemID).Scan(&ordinal); err != nil {
		return 0, fmt.Errorf("pgSubmissionRepository.NextAttemptOrdinal: %w", err)
	}
	return ordinal, nil
}

func (r *pgSubmissionRepository) CreateSubmission(ctx context.Context, tx *sql.Tx, s *model.Submission) error {
	query := `INSERT INTO submissions (id, user_id, problem_id, contest_id, contest_problem_id, language_id,
	                                   source_code, status, attempt_ordinal, total_count, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := conn(r.db, tx).ExecContext(ctx, query,
		s.ID, s.UserID, s.ProblemID, s.ContestID, s.ContestProblemID, s.LanguageID,
		s.SourceCode, s.Status, s.AttemptOrdinal, s.TotalCount, s.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("duplicate attempt ordinal %d: %w", s.AttemptOrdinal, common.ErrConflict)
		}
		return fmt.Errorf("pgSubmissionRepository.CreateSubmission: %w", err)
	}
	return nil
}

func (r *pgSubmissionRepository) GetSubmissionByID(ctx context.Context, id string) (*model.Submission, error) {
	query := `SELECT id, user_id, problem_id, contest_id, contest_problem_id, language_id, source_code,
	                 status, score, runtime_ms, memory_kb, passed_count, total_count, attempt_ordinal,
	                 error_message, results, created_at, dispatched_at, judged_at
	          FROM submissions WHERE id = $1`

	s := &model.Submission{}
	var results []byte
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &s.UserID, &s.ProblemID, &s.ContestID, &s.ContestProblemID, &s.LanguageID, &s.SourceCode,
		&s.Status, &s.Score, &s.RuntimeMs, &s.MemoryKb, &s.PassedCount, &s.TotalCount, &s.AttemptOrdinal,
		&s.ErrorMessage, &results, &s.CreatedAt, &s.DispatchedAt, &s.JudgedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgSubmissionRepository.GetSubmissionByID: %w", err)
	}
	if len(results) > 0 {
		if err := json.Unmarshal(results, &s.Results); err != nil {
			return nil, fmt.Errorf("pgSubmissionRepository.GetSubmissionByID decode results: %w", err)
		}
	}
	return s, nil
}

func (r *pgSubmissionRepository) MarkDispatched(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE submissions SET status = $1, dispatched_at = $2 WHERE id = $3 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, model.StatusDispatched, at, id, model.StatusPending)
	if err != nil {
		return fmt.Errorf("pgSubmissionRepository.MarkDispatched: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("submission %s not pending: %w", id, common.ErrAlreadyFinal)
	}
	return nil
}

func (r *pgSubmissionRepository) FinalizeSubmission(ctx context.Context, id string, f model.SubmissionFinal) error {
	var results interface{}
	if f.Results != nil {
		b, err := json.Marshal(f.Results)
		if err != nil {
			return fmt.Errorf("pgSubmissionRepository.FinalizeSubmission encode results: %w", err)
		}
		results = string(b)
	}

	query := `UPDATE submissions SET
	            status = $1, score = $2, runtime_ms = $3, memory_kb = $4, passed_count = $5,
	            total_count = $6, error_message = $7, results = $8, judged_at = $9
	          WHERE id = $10 AND status IN ($11, $12)`
	res, err := r.db.ExecContext(ctx, query,
		f.Status, f.Score, f.RuntimeMs, f.MemoryKb, f.PassedCount,
		f.TotalCount, f.ErrorMessage, results, f.JudgedAt,
		id, model.StatusPending, model.StatusDispatched,
	)
	if err != nil {
		return fmt.Errorf("pgSubmissionRepository.FinalizeSubmission: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("pgSubmissionRepository.FinalizeSubmission rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("submission %s: %w", id, common.ErrAlreadyFinal)
	}
	return nil
}

func (r *pgSubmissionRepository) CountFailedAttemptsBefore(ctx context.Context, userID, problemID string, ordinal int) (int, error) {
	query := `SELECT COUNT(*) FROM submissions
	          WHERE user_id = $1 AND problem_id = $2 AND attempt_ordinal < $3
	            AND status NOT IN ($4, $5, $6, $7)`
	var n int
	err := r.db.QueryRowContext(ctx, query, userID, problemID, ordinal,
		model.StatusAccepted, model.StatusSystemError, model.StatusPending, model.StatusDispatched,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("pgSubmissionRepository.CountFailedAttemptsBefore: %w", err)
	}
	return n, nil
}

func (r *pgSubmissionRepository) ContestTotals(ctx context.Context, contestID, userID string) (int, int, error) {
	query := `SELECT COALESCE(SUM(best), 0), COALESCE(SUM(solved), 0) FROM (
	            SELECT MAX(score) AS best,
	                   MAX(CASE WHEN status = $3 THEN 1 ELSE 0 END) AS solved
	            FROM submissions
	            WHERE contest_id = $1 AND user_id = $2
	            GROUP BY problem_id
	          ) per_problem`
	var score, solved int
	if err := r.db.QueryRowContext(ctx, query, contestID, userID, model.StatusAccepted).Scan(&score, &solved); err != nil {
		return 0, 0, fmt.Errorf("pgSubmissionRepository.ContestTotals: %w", err)
	}
	return score, solved, nil
}

func (r *pgSubmissionRepository) ListContestSubmissions(ctx context.Context, contestID string) ([]model.Submission, error) {
	query := `SELECT id, user_id, problem_id, status, score, attempt_ordinal, created_at
	          FROM submissions
	          WHERE contest_id = $1 AND status NOT IN ($2, $3)
	          ORDER BY created_at ASC, attempt_ordinal ASC`
	rows, err := r.db.QueryContext(ctx, query, contestID, model.StatusPending, model.StatusDispatched)
	if err != nil {
		return nil, fmt.Errorf("pgSubmissionRepository.ListContestSubmissions query: %w", err)
	}
	defer rows.Close()

	var subs []model.Submission
	for rows.Next() {
		s := model.Submission{ContestID: &contestID}
		if err := rows.Scan(&s.ID, &s.UserID, &s.ProblemID, &s.Status, &s.Score, &s.AttemptOrdinal, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("pgSubmissionRepository.ListContestSubmissions scan: %w", err)
		}
		subs = append(subs, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("pgSubmissionRepository.ListContestSubmissions rows.Err: %w", err)
	}
	return subs, nil
}

func (r *pgSubmissionRepository) FindStaleSubmissions(ctx context.Context, status model.SubmissionStatus, since time.Time, limit int) ([]string, error) {
	query := `SELECT id FROM submissions
	          WHERE status = $1 AND COALESCE(dispatched_at, created_at) < $2
	          ORDER BY created_at ASC LIMIT $3`
	rows, err := r.db.QueryContext(ctx, query, status, since, limit)
	if err != nil {
		return nil, fmt.Errorf("pgSubmissionRepository.FindStaleSubmissions query: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("pgSubmissionRepository.FindStaleSubmissions scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("pgSubmissionRepository.FindStaleSubmissions rows.Err: %w", err)
	}
	return ids, nil
}
