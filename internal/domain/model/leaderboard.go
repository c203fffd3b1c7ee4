package model

import "time"

// LeaderboardEntry is one row of the ranked cache.
type LeaderboardEntry struct {
	ContestID      string    `json:"contest_id"`
	UserID         string    `json:"user_id"`
	Score          int       `json:"score"`
	ProblemsSolved int       `json:"problems_solved"`
	UpdatedAt      time.Time `json:"updated_at"`
	Position       int       `json:"position,omitempty"` // 1-based, filled on reads
}

// ContestRank is the durable, authoritative standing of a participant.
type ContestRank struct {
	ContestID      string    `json:"contest_id"`
	UserID         string    `json:"user_id"`
	TotalPoints    int       `json:"total_points"`
	SolveMinutes   int       `json:"solve_minutes"`
	PenaltyMinutes int       `json:"penalty_minutes"`
	SolvedCount    int       `json:"solved_count"`
	Rank           int       `json:"rank"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// RankInfo is the targeted update sent to a single participant.
type RankInfo struct {
	ContestID      string `json:"contest_id"`
	UserID         string `json:"user_id"`
	Rank           int    `json:"rank"`
	TotalPoints    int    `json:"total_points"`
	SolveMinutes   int    `json:"solve_minutes"`
	PenaltyMinutes int    `json:"penalty_minutes"`
	Participants   int    `json:"participants"`
}

// LeaderboardSnapshot is both the request/response snapshot and the shape of
// pushed leaderboard events.
type LeaderboardSnapshot struct {
	ContestID    string        `json:"contest_id"`
	Top          []ContestRank `json:"top"`
	Me           *RankInfo     `json:"me,omitempty"`
	Participants int           `json:"participants"`
	GeneratedAt  time.Time     `json:"generated_at"`
}
