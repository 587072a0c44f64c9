package harness

import (
	"time"

	"edujudge/internal/judge/sandbox/result"
)

// Summary aggregates case results.
type Summary struct {
	Passed  int
	Errored int
	Total   int
	Elapsed time.Duration
}

// AllPassed reports whether there was at least one case and every case passed.
func (s Summary) AllPassed() bool {
	return s.Total > 0 && s.Passed == s.Total
}

// Summarize counts statuses and sums elapsed time.
func Summarize(results []CaseResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case StatusPassed:
			s.Passed++
		case StatusError:
			s.Errored++
		}
		s.Elapsed += r.Elapsed
	}
	return s
}

// HasInfraError reports whether any case failed for infrastructure reasons.
func HasInfraError(results []CaseResult) bool {
	for _, r := range results {
		if r.Verdict == result.VerdictInfraError {
			return true
		}
	}
	return false
}
