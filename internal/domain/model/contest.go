package model

import "time"

type Contest struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

type ContestProblem struct {
	ID        string `json:"id"`
	ContestID string `json:"contest_id"`
	ProblemID string `json:"problem_id"`
	Points    *int   `json:"points,omitempty"` // nil uses the problem's own points
}

func (cp *ContestProblem) EffectivePoints(p *Problem) int {
	if cp != nil && cp.Points != nil {
		return *cp.Points
	}
	return p.Points
}
