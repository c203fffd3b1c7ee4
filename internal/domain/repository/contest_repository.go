package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"contest_judge/internal/common"
	"contest_judge/internal/domain/model"
)

type ContestRepository interface {
	FindContestByID(ctx context.Context, id string) (*model.Contest, error)
	// ReplaceContestRanks swaps the whole rank table of a contest. It must run
	// inside tx so readers never see a half-written ranking.
	ReplaceContestRanks(ctx context.Context, tx *sql.Tx, contestID string, ranks []model.ContestRank) error
	ListContestRanks(ctx context.Context, contestID string, limit int) ([]model.ContestRank, error)
	GetContestRank(ctx context.Context, contestID, userID string) (*model.ContestRank, error)
	CountParticipants(ctx context.Context, contestID string) (int, error)
}

type pgContestRepository struct {
	db *sql.DB
}

func NewPgContestRepository(db *sql.DB) ContestRepository {
	return &pgContestRepository{db: db}
}

func (r *pgContestRepository) FindContestByID(ctx context.Context, id string) (*model.Contest, error) {
	query := `SELECT id, title, start_time, end_time FROM contests WHERE id = $1`
	c := &model.Contest{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.Title, &c.StartTime, &c.EndTime)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgContestRepository.FindContestByID: %w", err)
	}
	return c, nil
}

func (r *pgContestRepository) ReplaceContestRanks(ctx context.Context, tx *sql.Tx, contestID string, ranks []model.ContestRank) error {
	if tx == nil {
		return fmt.Errorf("pgContestRepository.ReplaceContestRanks: transaction required")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM contest_ranks WHERE contest_id = $1`, contestID); err != nil {
		return fmt.Errorf("pgContestRepository.ReplaceContestRanks delete: %w", err)
	}
	if len(ranks) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO contest_ranks
	    (contest_id, user_id, total_points, solve_minutes, penalty_minutes, solved_count, rank, updated_at)
	    VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`)
	if err != nil {
		return fmt.Errorf("pgContestRepository.ReplaceContestRanks prepare: %w", err)
	}
	defer stmt.Close()

	for _, cr := range ranks {
		_, err := stmt.ExecContext(ctx, contestID, cr.UserID, cr.TotalPoints, cr.SolveMinutes,
			cr.PenaltyMinutes, cr.SolvedCount, cr.Rank, cr.UpdatedAt)
		if err != nil {
			return fmt.Errorf("pgContestRepository.ReplaceContestRanks exec for user %s: %w", cr.UserID, err)
		}
	}
	return nil
}

func (r *pgContestRepository) ListContestRanks(ctx context.Context, contestID string, limit int) ([]model.ContestRank, error) {
	query := `SELECT contest_id, user_id, total_points, solve_minutes, penalty_minutes, solved_count, rank, updated_at
	          FROM contest_ranks WHERE contest_id = $1 ORDER BY rank ASC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, contestID, limit)
	if err != nil {
		return nil, fmt.Errorf("pgContestRepository.ListContestRanks query: %w", err)
	}
	defer rows.Close()

	ranks := []model.ContestRank{}
	for rows.Next() {
		var cr model.ContestRank
		if err := rows.Scan(&cr.ContestID, &cr.UserID, &cr.TotalPoints, &cr.SolveMinutes, &cr.PenaltyMinutes,
			&cr.SolvedCount, &cr.Rank, &cr.UpdatedAt); err != nil {
			return nil, fmt.Errorf("pgContestRepository.ListContestRanks scan: %w", err)
		}
		ranks = append(ranks, cr)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("pgContestRepository.ListContestRanks rows.Err: %w", err)
	}
	return ranks, nil
}

func (r *pgContestRepository) GetContestRank(ctx context.Context, contestID, userID string) (*model.ContestRank, error) {
	query := `SELECT contest_id, user_id, total_points, solve_minutes, penalty_minutes, solved_count, rank, updated_at
	          FROM contest_ranks WHERE contest_id = $1 AND user_id = $2`
	cr := &model.ContestRank{}
	err := r.db.QueryRowContext(ctx, query, contestID, userID).Scan(&cr.ContestID, &cr.UserID, &cr.TotalPoints,
		&cr.SolveMinutes, &cr.PenaltyMinutes, &cr.SolvedCount, &cr.Rank, &cr.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgContestRepository.GetContestRank: %w", err)
	}
	return cr, nil
}

func (r *pgContestRepository) CountParticipants(ctx context.Context, contestID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contest_ranks WHERE contest_id = $1`, contestID).Scan(&n); err != nil {
		return 0, fmt.Errorf("pgContestRepository.CountParticipants: %w", err)
	}
	return n, nil
}
