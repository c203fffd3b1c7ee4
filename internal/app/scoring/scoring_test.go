package scoring

import (
	"testing"

	"contest_judge/internal/app/judge"
	"contest_judge/internal/domain/model"
)

func TestScoreProgressivePenalty(t *testing.T) {
	cases := []struct {
		name string
		in   ScoreInput
		want int
	}{
		{"first attempt accepted", ScoreInput{Passed: 5, Total: 5, AttemptOrdinal: 1, Points: 100}, 100},
		{"one prior failure", ScoreInput{Passed: 5, Total: 5, AttemptOrdinal: 2, FailedAttempts: 1, Points: 100}, 85},
		{"two prior failures", ScoreInput{Passed: 5, Total: 5, AttemptOrdinal: 3, FailedAttempts: 2, Points: 100}, 75},
		{"three prior failures", ScoreInput{Passed: 5, Total: 5, AttemptOrdinal: 4, FailedAttempts: 3, Points: 100}, 70},
		{"five prior failures", ScoreInput{Passed: 5, Total: 5, AttemptOrdinal: 6, FailedAttempts: 5, Points: 100}, 60},
		{"floored at zero", ScoreInput{Passed: 5, Total: 5, AttemptOrdinal: 40, FailedAttempts: 39, Points: 100}, 0},
		{"partial never penalised", ScoreInput{Passed: 3, Total: 5, AttemptOrdinal: 4, FailedAttempts: 3, Points: 100}, 60},
		{"partial rounds", ScoreInput{Passed: 2, Total: 3, AttemptOrdinal: 1, Points: 100}, 67},
		{"system error retries not counted", ScoreInput{Passed: 4, Total: 4, AttemptOrdinal: 3, FailedAttempts: 0, Points: 100}, 100},
		{"penalty rounds", ScoreInput{Passed: 3, Total: 3, AttemptOrdinal: 2, FailedAttempts: 1, Points: 7}, 6},
		{"nothing passed", ScoreInput{Passed: 0, Total: 5, AttemptOrdinal: 1, Points: 100}, 0},
		{"no tests", ScoreInput{Passed: 0, Total: 0, AttemptOrdinal: 1, Points: 100}, 0},
	}
	for _, tc := range cases {
		if got := Score(tc.in); got != tc.want {
			t.Errorf("%s: Score = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestPenaltyPercent(t *testing.T) {
	want := []int{0, 15, 25, 30, 35, 40}
	for n, w := range want {
		if got := PenaltyPercent(n); got != w {
			t.Errorf("PenaltyPercent(%d) = %d, want %d", n, got, w)
		}
	}
	if PenaltyPercent(1000) != 100 {
		t.Error("penalty should cap at 100")
	}
}

func testCases(n int) []model.TestCase {
	out := make([]model.TestCase, n)
	for i := range out {
		out[i] = model.TestCase{ID: string(rune('a' + i)), Input: "in", ExpectedOutput: "out", Points: 1, IsHidden: i > 0}
	}
	return out
}

func v(status int, ms int) judge.Verdict {
	return judge.Verdict{StatusID: status, TimeMs: &ms}
}

func TestMapVerdictsFirstFailureWins(t *testing.T) {
	res, err := MapVerdicts(testCases(5), []judge.Verdict{
		v(judge.StatusAccepted, 10),
		v(judge.StatusAccepted, 30),
		v(judge.StatusWrongAnswer, 5),
		v(judge.StatusTimeLimitExceeded, 2000),
		v(judge.StatusAccepted, 12),
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != model.StatusWrongAnswer {
		t.Fatalf("status = %s, want WrongAnswer", res.Status)
	}
	if res.Passed != 3 || res.Total != 5 {
		t.Fatalf("passed %d/%d, want 3/5", res.Passed, res.Total)
	}
	if *res.RuntimeMs != 2000 {
		t.Fatalf("runtime = %d, want max 2000", *res.RuntimeMs)
	}
	if len(res.Outcomes) != 5 || res.Outcomes[2].Passed {
		t.Fatalf("unexpected outcomes %+v", res.Outcomes)
	}
}

func TestMapVerdictsAllAccepted(t *testing.T) {
	res, err := MapVerdicts(testCases(2), []judge.Verdict{v(judge.StatusAccepted, 1), v(judge.StatusAccepted, 2)})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != model.StatusAccepted || res.Passed != 2 {
		t.Fatalf("got %s %d", res.Status, res.Passed)
	}
}

func TestMapVerdictsCompileErrorShortCircuits(t *testing.T) {
	msg := "main.cpp:1: error"
	ce := judge.Verdict{StatusID: judge.StatusCompilationError, CompileOutput: &msg}
	res, err := MapVerdicts(testCases(4), []judge.Verdict{
		v(judge.StatusAccepted, 3),
		ce,
		{StatusID: judge.StatusProcessing},
		{StatusID: judge.StatusInQueue},
	})
	if err != nil {
		t.Fatalf("running items after a compile error must be ignored: %v", err)
	}
	if res.Status != model.StatusCompilationError {
		t.Fatalf("status = %s", res.Status)
	}
	if len(res.Outcomes) != 2 || res.Total != 4 || res.Passed != 1 {
		t.Fatalf("outcomes=%d total=%d passed=%d", len(res.Outcomes), res.Total, res.Passed)
	}
	if *res.Outcomes[1].CompileOutput != msg {
		t.Fatal("compile output not kept")
	}
}

func TestMapVerdictsRuntimeVariants(t *testing.T) {
	for _, id := range []int{7, 8, 9, 10, 11, 12} {
		if got := StatusFromJudge(id); got != model.StatusRuntimeError {
			t.Errorf("StatusFromJudge(%d) = %s", id, got)
		}
	}
	for _, id := range []int{13, 14, 99} {
		if got := StatusFromJudge(id); got != model.StatusSystemError {
			t.Errorf("StatusFromJudge(%d) = %s", id, got)
		}
	}
}

func TestMapVerdictsRejectsRunningItem(t *testing.T) {
	_, err := MapVerdicts(testCases(2), []judge.Verdict{v(judge.StatusAccepted, 1), {StatusID: judge.StatusProcessing}})
	if err == nil {
		t.Fatal("expected error for unsettled verdict")
	}
	if _, err := MapVerdicts(testCases(2), []judge.Verdict{v(judge.StatusAccepted, 1)}); err == nil {
		t.Fatal("expected error for length mismatch")
	}
}

func TestSettled(t *testing.T) {
	running := judge.Verdict{StatusID: judge.StatusProcessing}
	ce := judge.Verdict{StatusID: judge.StatusCompilationError}
	ok := judge.Verdict{StatusID: judge.StatusAccepted}

	if Settled([]judge.Verdict{ok, running}) {
		t.Error("running item should keep polling")
	}
	if !Settled([]judge.Verdict{ok, ce, running}) {
		t.Error("compile error with settled prefix should stop polling")
	}
	if Settled([]judge.Verdict{running, ce}) {
		t.Error("compile error behind a running item should keep polling")
	}
	if !Settled([]judge.Verdict{ok, ok}) {
		t.Error("all settled")
	}
}
