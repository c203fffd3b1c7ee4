package scoring

import (
	"fmt"

	"contest_judge/internal/app/judge"
	"contest_judge/internal/domain/model"
)

// Result is the submission-level reading of a batch of verdicts.
type Result struct {
	Status    model.SubmissionStatus
	Passed    int
	Total     int
	RuntimeMs *int // max over judged cases
	MemoryKb  *int // peak over judged cases
	Outcomes  []model.TestCaseOutcome
}

// StatusFromJudge maps a judge status id onto the submission taxonomy.
func StatusFromJudge(id int) model.SubmissionStatus {
	switch id {
	case judge.StatusAccepted:
		return model.StatusAccepted
	case judge.StatusWrongAnswer:
		return model.StatusWrongAnswer
	case judge.StatusTimeLimitExceeded:
		return model.StatusTimeLimitExceeded
	case judge.StatusCompilationError:
		return model.StatusCompilationError
	case judge.StatusRuntimeSIGSEGV, judge.StatusRuntimeSIGXFSZ, judge.StatusRuntimeSIGFPE,
		judge.StatusRuntimeSIGABRT, judge.StatusRuntimeNZEC, judge.StatusRuntimeOther:
		return model.StatusRuntimeError
	default:
		return model.StatusSystemError
	}
}

// Settled is the poll stop condition: every verdict is final, or a
// compilation error has come back and everything before it is final.
func Settled(verdicts []judge.Verdict) bool {
	for _, v := range verdicts {
		if v.InProgress() {
			return false
		}
		if v.StatusID == judge.StatusCompilationError {
			return true
		}
	}
	return true
}

// MapVerdicts walks the verdicts in test case order. The first failing case
// decides the status; a compilation error ends the walk and later cases are
// not recorded. Total always counts every test case.
func MapVerdicts(cases []model.TestCase, verdicts []judge.Verdict) (Result, error) {
	if len(cases) != len(verdicts) {
		return Result{}, fmt.Errorf("map verdicts: %d test cases, %d verdicts", len(cases), len(verdicts))
	}

	res := Result{Status: model.StatusAccepted, Total: len(cases)}
	failed := false
	for i, v := range verdicts {
		if v.InProgress() {
			return Result{}, fmt.Errorf("map verdicts: test case %d still running", i)
		}
		tc := cases[i]
		status := StatusFromJudge(v.StatusID)
		passed := status == model.StatusAccepted

		res.Outcomes = append(res.Outcomes, outcome(tc, v, passed))
		res.RuntimeMs = maxPtr(res.RuntimeMs, v.TimeMs)
		res.MemoryKb = maxPtr(res.MemoryKb, v.MemoryKb)

		if passed {
			res.Passed++
			continue
		}
		if !failed {
			res.Status = status
			failed = true
		}
		if status == model.StatusCompilationError {
			break
		}
	}
	return res, nil
}

func outcome(tc model.TestCase, v judge.Verdict, passed bool) model.TestCaseOutcome {
	input, expected := tc.Input, tc.ExpectedOutput
	return model.TestCaseOutcome{
		TestCaseID:     tc.ID,
		Input:          &input,
		ExpectedOutput: &expected,
		ActualOutput:   v.Stdout,
		Passed:         passed,
		RuntimeMs:      v.TimeMs,
		MemoryKb:       v.MemoryKb,
		JudgeStatusID:  v.StatusID,
		JudgeStatus:    v.Description,
		Stderr:         v.Stderr,
		CompileOutput:  v.CompileOutput,
		IsHidden:       tc.IsHidden,
		Points:         tc.Points,
	}
}

func maxPtr(cur, v *int) *int {
	if v == nil {
		return cur
	}
	if cur == nil || *v > *cur {
		n := *v
		return &n
	}
	return cur
}
