// Package harness runs a program against test cases and classifies each case.
package harness

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"edujudge/internal/judge/sandbox/result"
	"edujudge/internal/judge/sandbox/runner"
)

// CaseStatus is the per-case classification.
type CaseStatus string

const (
	StatusPassed CaseStatus = "passed"
	StatusFailed CaseStatus = "failed"
	StatusError  CaseStatus = "error"
)

// TestCase is one input/expected-output pair. IDs increase in creation order.
type TestCase struct {
	ID             int64
	Input          string
	ExpectedOutput string
}

// Submission is the program under test.
type Submission struct {
	Code          string
	Language      string
	TimeLimit     time.Duration
	MemoryLimitMB int64
}

// CaseResult is the outcome of one case.
type CaseResult struct {
	CaseIndex    int
	TestCaseID   int64
	Status       CaseStatus
	ActualOutput string
	ErrorText    string
	Elapsed      time.Duration
	Verdict      result.Verdict
}

// Session runs one compiled program repeatedly.
type Session interface {
	Run(ctx context.Context, stdin string, limits runner.Limits) result.Outcome
	Close()
}

// Runner prepares sessions. A nil session carries the failure in the outcome.
type Runner interface {
	Prepare(ctx context.Context, code, language string) (Session, result.Outcome)
}

type sandboxRunner struct {
	r *runner.Runner
}

func (s sandboxRunner) Prepare(ctx context.Context, code, language string) (Session, result.Outcome) {
	session, out := s.r.Prepare(ctx, code, language)
	if session == nil {
		return nil, out
	}
	return session, out
}

// Harness grades programs case by case.
type Harness struct {
	runner Runner
}

// NewHarness creates a harness backed by the sandbox runner.
func NewHarness(r *runner.Runner) *Harness {
	return &Harness{runner: sandboxRunner{r: r}}
}

// NewHarnessWithRunner creates a harness with a custom runner.
func NewHarnessWithRunner(r Runner) *Harness {
	return &Harness{runner: r}
}

// Compare reports whether outputs match after trimming surrounding whitespace.
func Compare(actual, expected string) bool {
	return strings.TrimSpace(actual) == strings.TrimSpace(expected)
}

// Grade compiles once and runs every case sequentially in creation order.
func (h *Harness) Grade(ctx context.Context, sub Submission, cases []TestCase) []CaseResult {
	ordered := slices.Clone(cases)
	slices.SortStableFunc(ordered, func(a, b TestCase) int { return cmp.Compare(a.ID, b.ID) })

	results := make([]CaseResult, 0, len(ordered))
	session, prepared := h.runner.Prepare(ctx, sub.Code, sub.Language)
	if session == nil {
		for i, tc := range ordered {
			results = append(results, CaseResult{
				CaseIndex:  i,
				TestCaseID: tc.ID,
				Status:     StatusError,
				ErrorText:  prepared.ErrorText(),
				Verdict:    prepared.Verdict,
			})
		}
		return results
	}
	defer session.Close()

	limits := runner.Limits{Time: sub.TimeLimit, MemoryMB: sub.MemoryLimitMB}
	for i, tc := range ordered {
		out := session.Run(ctx, tc.Input, limits)
		results = append(results, classify(i, tc, out))
	}
	return results
}

// Trial runs the sample cases the same way Grade runs hidden ones.
func (h *Harness) Trial(ctx context.Context, sub Submission, samples []TestCase) []CaseResult {
	return h.Grade(ctx, sub, samples)
}

// RunCustom runs a program on arbitrary input and returns the raw outcome.
func (h *Harness) RunCustom(ctx context.Context, sub Submission, input string) result.Outcome {
	session, prepared := h.runner.Prepare(ctx, sub.Code, sub.Language)
	if session == nil {
		return prepared
	}
	defer session.Close()
	return session.Run(ctx, input, runner.Limits{Time: sub.TimeLimit, MemoryMB: sub.MemoryLimitMB})
}

func classify(index int, tc TestCase, out result.Outcome) CaseResult {
	res := CaseResult{
		CaseIndex:    index,
		TestCaseID:   tc.ID,
		ActualOutput: out.Stdout,
		Elapsed:      out.Elapsed,
		Verdict:      out.Verdict,
	}
	switch {
	case out.Verdict != result.VerdictSuccess:
		res.Status = StatusError
		res.ErrorText = out.ErrorText()
	case Compare(out.Stdout, tc.ExpectedOutput):
		res.Status = StatusPassed
	default:
		res.Status = StatusFailed
	}
	return res
}
