// Package result defines sandbox execution results and verdicts.
package result

import (
	"fmt"
	"time"
)

// Verdict is the runner-level classification of one execution.
type Verdict string

const (
	VerdictSuccess           Verdict = "success"
	VerdictRuntimeError      Verdict = "runtime_error"
	VerdictCompilationError  Verdict = "compilation_error"
	VerdictTimeLimitExceeded Verdict = "time_limit_exceeded"
	VerdictInfraError        Verdict = "infra_error"
)

// RunResult captures raw engine data for one process tree.
type RunResult struct {
	ExitCode        int
	TimedOut        bool
	WallTime        time.Duration
	MemoryKB        int64
	Stdout          string
	Stderr          string
	OomKilled       bool
	CPUExceeded     bool // killed by SIGXCPU under RLIMIT_CPU
	OutputTruncated bool // stdout was larger than the capture cap
}

// Outcome is what callers of the runner see.
type Outcome struct {
	ExitSucceeded bool
	Stdout        string
	Stderr        string
	Elapsed       time.Duration
	Verdict       Verdict
}

// ElapsedSeconds reports Elapsed in fractional seconds.
func (o Outcome) ElapsedSeconds() float64 {
	return o.Elapsed.Seconds()
}

// ErrorText is the human readable failure description for a non-success outcome.
func (o Outcome) ErrorText() string {
	if o.Verdict == VerdictSuccess {
		return ""
	}
	if o.Stderr != "" {
		return o.Stderr
	}
	switch o.Verdict {
	case VerdictTimeLimitExceeded:
		return fmt.Sprintf("Time limit exceeded (%gs)", o.Elapsed.Seconds())
	case VerdictCompilationError:
		return "Compilation failed"
	case VerdictRuntimeError:
		return "Runtime error"
	default:
		return "Internal error"
	}
}

// Infra wraps an infrastructure failure as an outcome.
func Infra(err error) Outcome {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return Outcome{Stderr: msg, Verdict: VerdictInfraError}
}
