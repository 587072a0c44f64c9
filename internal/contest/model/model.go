// Package model holds the contest domain records.
package model

import (
	"errors"
	"strings"
	"time"
)

const (
	DefaultPoints           = 100
	DefaultTimeLimitSeconds = 1
	DefaultMemoryLimitMB    = 256
)

// SubmissionStatus is the lifecycle state of a graded submission.
type SubmissionStatus string

const (
	SubmissionPending     SubmissionStatus = "pending"
	SubmissionAccepted    SubmissionStatus = "accepted"
	SubmissionPartial     SubmissionStatus = "partial"
	SubmissionWrongAnswer SubmissionStatus = "wrong_answer"
	SubmissionError       SubmissionStatus = "error"
)

// Terminal reports whether the status is final.
func (s SubmissionStatus) Terminal() bool {
	switch s {
	case SubmissionAccepted, SubmissionPartial, SubmissionWrongAnswer, SubmissionError:
		return true
	default:
		return false
	}
}

// TestResultStatus is the per-case status stored with a submission.
type TestResultStatus string

const (
	TestPassed TestResultStatus = "passed"
	TestFailed TestResultStatus = "failed"
	TestError  TestResultStatus = "error"
)

var (
	ErrInvalidDuration = errors.New("contest duration must be positive")
	ErrTitleRequired   = errors.New("title is required")
	ErrInvalidLimits   = errors.New("points and limits must not be negative")
)

// Contest is a time-boxed event.
type Contest struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	StartAt         time.Time `json:"start_at"`
	DurationMinutes int       `json:"duration_minutes"`
	CreatedBy       int64     `json:"created_by"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
}

// Duration returns the contest length.
func (c Contest) Duration() time.Duration {
	return time.Duration(c.DurationMinutes) * time.Minute
}

// EndAt returns the last instant the contest is live.
func (c Contest) EndAt() time.Time {
	return c.StartAt.Add(c.Duration())
}

func (c Contest) Validate() error {
	if strings.TrimSpace(c.Title) == "" {
		return ErrTitleRequired
	}
	if c.DurationMinutes <= 0 {
		return ErrInvalidDuration
	}
	return nil
}

// Problem belongs to exactly one contest.
type Problem struct {
	ID               int64     `json:"id"`
	ContestID        int64     `json:"contest_id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Constraints      string    `json:"constraints"`
	Examples         string    `json:"examples"`
	Points           int       `json:"points"`
	TimeLimitSeconds int       `json:"time_limit_seconds"`
	MemoryLimitMB    int       `json:"memory_limit_mb"`
	CreatedAt        time.Time `json:"created_at"`
}

// WithDefaults fills zero points and limits with the stock values.
func (p Problem) WithDefaults() Problem {
	if p.Points == 0 {
		p.Points = DefaultPoints
	}
	if p.TimeLimitSeconds == 0 {
		p.TimeLimitSeconds = DefaultTimeLimitSeconds
	}
	if p.MemoryLimitMB == 0 {
		p.MemoryLimitMB = DefaultMemoryLimitMB
	}
	return p
}

func (p Problem) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return ErrTitleRequired
	}
	if p.Points < 0 || p.TimeLimitSeconds < 0 || p.MemoryLimitMB < 0 {
		return ErrInvalidLimits
	}
	return nil
}

// TimeLimit returns the configured limit, defaulting to one second.
func (p Problem) TimeLimit() time.Duration {
	if p.TimeLimitSeconds <= 0 {
		return DefaultTimeLimitSeconds * time.Second
	}
	return time.Duration(p.TimeLimitSeconds) * time.Second
}

// MemoryLimit returns the advisory memory limit in MiB.
func (p Problem) MemoryLimit() int64 {
	if p.MemoryLimitMB <= 0 {
		return DefaultMemoryLimitMB
	}
	return int64(p.MemoryLimitMB)
}

// TestCase is an input with its expected output.
type TestCase struct {
	ID             int64     `json:"id"`
	ProblemID      int64     `json:"problem_id"`
	Input          string    `json:"input"`
	ExpectedOutput string    `json:"expected_output"`
	IsSample       bool      `json:"is_sample"`
	CreatedAt      time.Time `json:"created_at"`
}

// SplitCases separates samples from hidden cases, keeping order.
func SplitCases(cases []TestCase) (samples, hidden []TestCase) {
	for _, tc := range cases {
		if tc.IsSample {
			samples = append(samples, tc)
		} else {
			hidden = append(hidden, tc)
		}
	}
	return samples, hidden
}

// Submission is one graded attempt.
type Submission struct {
	ID               string           `json:"id"`
	ContestID        int64            `json:"contest_id"`
	ProblemID        int64            `json:"problem_id"`
	UserID           int64            `json:"user_id"`
	Code             string           `json:"code,omitempty"`
	Language         string           `json:"language"`
	Status           SubmissionStatus `json:"status"`
	Score            int              `json:"score"`
	ExecutionSeconds float64          `json:"execution_seconds"`
	PassedCount      int              `json:"passed_count"`
	TotalCount       int              `json:"total_count"`
	SubmittedAt      time.Time        `json:"submitted_at"`
	JudgedAt         *time.Time       `json:"judged_at,omitempty"`
}

// TestResult is the stored outcome of one case of a submission.
type TestResult struct {
	ID               int64            `json:"id"`
	SubmissionID     string           `json:"submission_id"`
	TestCaseID       int64            `json:"test_case_id"`
	CaseIndex        int              `json:"case_index"`
	Status           TestResultStatus `json:"status"`
	ActualOutput     string           `json:"actual_output"`
	ErrorMessage     string           `json:"error_message,omitempty"`
	ExecutionSeconds float64          `json:"execution_seconds"`
}

// Participant is the per-contest aggregate for one user.
type Participant struct {
	ID             int64      `json:"id"`
	ContestID      int64      `json:"contest_id"`
	UserID         int64      `json:"user_id"`
	TotalScore     int        `json:"total_score"`
	ProblemsSolved int        `json:"problems_solved"`
	Rank           *int       `json:"rank,omitempty"`
	LastSubmission *time.Time `json:"last_submission,omitempty"`
}
