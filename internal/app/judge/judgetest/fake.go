// Package judgetest provides an in-memory judge.Client for tests.
package judgetest

import (
	"context"
	"fmt"
	"sync"

	"contest_judge/internal/app/judge"
)

// Fake answers every batch with the verdicts returned by Decide, after
// reporting the batch as processing for RunningPolls polls.
type Fake struct {
	mu sync.Mutex

	Decide       func(items []judge.Item) []judge.Verdict
	RunningPolls int
	SubmitErr    error
	PollErr      error

	batches  map[string]*batch
	byToken  map[string]string
	Submits  int
	Polls    int
	LastSent []judge.Item
}

type batch struct {
	verdicts []judge.Verdict
	polls    int
}

func New(decide func(items []judge.Item) []judge.Verdict) *Fake {
	return &Fake{Decide: decide}
}

func (f *Fake) SubmitBatch(ctx context.Context, items []judge.Item) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SubmitErr != nil {
		return nil, f.SubmitErr
	}
	if f.batches == nil {
		f.batches = make(map[string]*batch)
		f.byToken = make(map[string]string)
	}
	f.Submits++
	f.LastSent = append([]judge.Item(nil), items...)

	id := fmt.Sprintf("b%d", f.Submits)
	verdicts := f.Decide(items)
	tokens := make([]string, len(items))
	for i := range items {
		tokens[i] = fmt.Sprintf("%s-%d", id, i)
		verdicts[i].Token = tokens[i]
		f.byToken[tokens[i]] = id
	}
	f.batches[id] = &batch{verdicts: verdicts}
	return tokens, nil
}

func (f *Fake) PollBatch(ctx context.Context, tokens []string) ([]judge.Verdict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Polls++
	if f.PollErr != nil {
		return nil, f.PollErr
	}
	if len(tokens) == 0 {
		return nil, nil
	}
	b, ok := f.batches[f.byToken[tokens[0]]]
	if !ok {
		return nil, fmt.Errorf("unknown token %s", tokens[0])
	}
	b.polls++
	out := make([]judge.Verdict, len(tokens))
	for i := range tokens {
		if b.polls <= f.RunningPolls {
			out[i] = judge.Verdict{Token: tokens[i], StatusID: judge.StatusProcessing, Description: "Processing"}
			continue
		}
		out[i] = b.verdicts[i]
	}
	return out, nil
}

// Verdict builds a settled verdict with the given status.
func Verdict(statusID int, stdout string) judge.Verdict {
	t, m := 12, 2048
	return judge.Verdict{StatusID: statusID, Stdout: &stdout, TimeMs: &t, MemoryKb: &m}
}

// FirstNPass accepts the first n items and answers wrong for the rest.
func FirstNPass(n int) func([]judge.Item) []judge.Verdict {
	return func(items []judge.Item) []judge.Verdict {
		out := make([]judge.Verdict, len(items))
		for i, it := range items {
			if i < n {
				out[i] = Verdict(judge.StatusAccepted, it.ExpectedOutput)
			} else {
				out[i] = Verdict(judge.StatusWrongAnswer, "nope\n")
			}
		}
		return out
	}
}
