package model

import "time"

type SubmissionStatus string

const (
	StatusPending           SubmissionStatus = "Pending"
	StatusDispatched        SubmissionStatus = "Dispatched"
	StatusAccepted          SubmissionStatus = "Accepted"
	StatusWrongAnswer       SubmissionStatus = "WrongAnswer"
	StatusTimeLimitExceeded SubmissionStatus = "TimeLimitExceeded"
	StatusRuntimeError      SubmissionStatus = "RuntimeError"
	StatusCompilationError  SubmissionStatus = "CompilationError"
	StatusSystemError       SubmissionStatus = "SystemError" // our side or the judge's, never the program's
)

// SystemErrorMessage is the only detail users see for infrastructure failures.
const SystemErrorMessage = "internal judging error, please resubmit"

func (s SubmissionStatus) IsTerminal() bool {
	switch s {
	case StatusAccepted, StatusWrongAnswer, StatusTimeLimitExceeded,
		StatusRuntimeError, StatusCompilationError, StatusSystemError:
		return true
	}
	return false
}

// CountsAsFailedAttempt reports whether a finished submission counts toward
// the resubmission penalty. SystemError is our fault, not the user's.
func (s SubmissionStatus) CountsAsFailedAttempt() bool {
	return s.IsTerminal() && s != StatusAccepted && s != StatusSystemError
}

type Submission struct {
	ID               string            `json:"id"`
	UserID           string            `json:"user_id"`
	ProblemID        string            `json:"problem_id"`
	ContestID        *string           `json:"contest_id,omitempty"`
	ContestProblemID *string           `json:"contest_problem_id,omitempty"`
	LanguageID       string            `json:"language_id"`
	SourceCode       string            `json:"-"`
	Status           SubmissionStatus  `json:"status"`
	Score            int               `json:"score"`
	RuntimeMs        *int              `json:"runtime_ms,omitempty"`
	MemoryKb         *int              `json:"memory_kb,omitempty"`
	PassedCount      int               `json:"passed_count"`
	TotalCount       int               `json:"total_count"`
	AttemptOrdinal   int               `json:"attempt_ordinal"`
	ErrorMessage     *string           `json:"error_message,omitempty"`
	Results          []TestCaseOutcome `json:"results,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	DispatchedAt     *time.Time        `json:"dispatched_at,omitempty"`
	JudgedAt         *time.Time        `json:"judged_at,omitempty"`
}

func (s *Submission) InContest() bool {
	return s.ContestID != nil && *s.ContestID != ""
}

// TestCaseOutcome is one entry of a submission's result payload.
type TestCaseOutcome struct {
	TestCaseID     string  `json:"test_case_id"`
	Input          *string `json:"input,omitempty"`
	ExpectedOutput *string `json:"expected_output,omitempty"`
	ActualOutput   *string `json:"actual_output,omitempty"`
	Passed         bool    `json:"passed"`
	RuntimeMs      *int    `json:"runtime_ms,omitempty"`
	MemoryKb       *int    `json:"memory_kb,omitempty"`
	JudgeStatusID  int     `json:"judge_status_id"`
	JudgeStatus    string  `json:"judge_status"`
	Stderr         *string `json:"stderr,omitempty"`
	CompileOutput  *string `json:"compile_output,omitempty"`
	IsHidden       bool    `json:"is_hidden"`
	Points         int     `json:"points"`
}

// Redacted returns a copy safe to show to the submitter. Hidden cases lose
// their data and program output; compiler output is kept.
func (o TestCaseOutcome) Redacted() TestCaseOutcome {
	if !o.IsHidden {
		return o
	}
	o.Input = nil
	o.ExpectedOutput = nil
	o.ActualOutput = nil
	o.Stderr = nil
	return o
}

// SubmissionFinal is everything written when a submission leaves the
// non-terminal states.
type SubmissionFinal struct {
	Status       SubmissionStatus
	Score        int
	RuntimeMs    *int
	MemoryKb     *int
	PassedCount  int
	TotalCount   int
	ErrorMessage *string
	Results      []TestCaseOutcome
	JudgedAt     time.Time
}
