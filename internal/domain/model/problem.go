package model

import (
	"time"
)

// Problem and TestCase are owned by the problem administration system; the
// pipeline only reads them.
type Problem struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Slug           string    `json:"slug"`
	Points         int       `json:"points"`
	RuntimeLimitMs int       `json:"runtime_limit_ms"`
	MemoryLimitKb  int       `json:"memory_limit_kb"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type TestCase struct {
	ID             string `json:"id"`
	ProblemID      string `json:"problem_id"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
	IsHidden       bool   `json:"is_hidden"`
	Points         int    `json:"points"`
	RuntimeLimitMs *int   `json:"runtime_limit_ms,omitempty"` // overrides the problem limit
	MemoryLimitKb  *int   `json:"memory_limit_kb,omitempty"`
	SortOrder      int    `json:"sort_order"`
}

// Limits resolves the per-test limit, falling back to the problem's.
func (tc TestCase) Limits(p *Problem) (runtimeMs, memoryKb int) {
	runtimeMs, memoryKb = p.RuntimeLimitMs, p.MemoryLimitKb
	if tc.RuntimeLimitMs != nil && *tc.RuntimeLimitMs > 0 {
		runtimeMs = *tc.RuntimeLimitMs
	}
	if tc.MemoryLimitKb != nil && *tc.MemoryLimitKb > 0 {
		memoryKb = *tc.MemoryLimitKb
	}
	return runtimeMs, memoryKb
}
