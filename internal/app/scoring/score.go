package scoring

import "math"

type ScoreInput struct {
	Passed         int
	Total          int
	AttemptOrdinal int
	FailedAttempts int // finished, non-accepted earlier attempts
	Points         int
}

// PenaltyPercent is the share of the base score taken away after the given
// number of failed attempts: 15 for the first, 10 for the second and 5 for
// each one after that.
func PenaltyPercent(failedAttempts int) int {
	pct := 0
	for n := 1; n <= failedAttempts; n++ {
		switch n {
		case 1:
			pct += 15
		case 2:
			pct += 10
		default:
			pct += 5
		}
		if pct >= 100 {
			return 100
		}
	}
	return pct
}

// Score is round(passed/total * points), reduced by PenaltyPercent only when
// every test passed on a later attempt. Partial results are never penalised.
func Score(in ScoreInput) int {
	if in.Total <= 0 || in.Points <= 0 || in.Passed <= 0 {
		return 0
	}
	passed := in.Passed
	if passed > in.Total {
		passed = in.Total
	}
	base := math.Round(float64(passed) / float64(in.Total) * float64(in.Points))

	if passed < in.Total || in.AttemptOrdinal <= 1 || in.FailedAttempts <= 0 {
		return int(base)
	}
	score := math.Round(base - base*float64(PenaltyPercent(in.FailedAttempts))/100)
	if score < 0 {
		return 0
	}
	return int(score)
}
