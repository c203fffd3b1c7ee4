package leaderboard

import (
	"sort"
	"time"

	"contest_judge/internal/domain/model"
)

// PenaltyMinutesPerWrong is added for each failed attempt made before a
// problem's first accepted submission.
const PenaltyMinutesPerWrong = 20

type problemState struct {
	best       int
	acceptedAt *time.Time
	wrong      int // failed attempts before acceptedAt
}

// ComputeRanks derives the standings of a contest from its finished
// submissions. Participants are ordered by points descending, solve minutes
// ascending, penalty minutes ascending and finally user id, and get ranks
// 1..N with no gaps.
func ComputeRanks(contest *model.Contest, subs []model.Submission, now time.Time) []model.ContestRank {
	ordered := make([]model.Submission, len(subs))
	copy(ordered, subs)
	// Attempts of one (user, problem) are replayed in ordinal order, the same
	// order the penalty score uses.
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].AttemptOrdinal != ordered[j].AttemptOrdinal {
			return ordered[i].AttemptOrdinal < ordered[j].AttemptOrdinal
		}
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	perUser := make(map[string]map[string]*problemState)
	for _, s := range ordered {
		if !s.Status.IsTerminal() {
			continue
		}
		problems, ok := perUser[s.UserID]
		if !ok {
			problems = make(map[string]*problemState)
			perUser[s.UserID] = problems
		}
		ps, ok := problems[s.ProblemID]
		if !ok {
			ps = &problemState{}
			problems[s.ProblemID] = ps
		}
		if s.Score > ps.best {
			ps.best = s.Score
		}
		if ps.acceptedAt != nil {
			continue
		}
		if s.Status == model.StatusAccepted {
			at := s.CreatedAt
			ps.acceptedAt = &at
		} else if s.Status.CountsAsFailedAttempt() {
			ps.wrong++
		}
	}

	ranks := make([]model.ContestRank, 0, len(perUser))
	for userID, problems := range perUser {
		r := model.ContestRank{ContestID: contest.ID, UserID: userID, UpdatedAt: now}
		for _, ps := range problems {
			r.TotalPoints += ps.best
			if ps.acceptedAt == nil {
				continue
			}
			r.SolvedCount++
			r.SolveMinutes += solveMinutes(contest.StartTime, *ps.acceptedAt)
			r.PenaltyMinutes += ps.wrong * PenaltyMinutesPerWrong
		}
		ranks = append(ranks, r)
	}

	sort.Slice(ranks, func(i, j int) bool { return rankLess(ranks[i], ranks[j]) })
	for i := range ranks {
		ranks[i].Rank = i + 1
	}
	return ranks
}

func rankLess(a, b model.ContestRank) bool {
	if a.TotalPoints != b.TotalPoints {
		return a.TotalPoints > b.TotalPoints
	}
	if a.SolveMinutes != b.SolveMinutes {
		return a.SolveMinutes < b.SolveMinutes
	}
	if a.PenaltyMinutes != b.PenaltyMinutes {
		return a.PenaltyMinutes < b.PenaltyMinutes
	}
	return a.UserID < b.UserID
}

// solveMinutes is whole minutes from contest start, at least 1.
func solveMinutes(start, at time.Time) int {
	m := int(at.Sub(start) / time.Minute)
	if m < 1 {
		return 1
	}
	return m
}
