package model

import "time"

// CaseView is a per-case result as shown to clients.
type CaseView struct {
	CaseIndex      int     `json:"case_index"`
	Status         string  `json:"status"`
	Input          string  `json:"input,omitempty"`
	ExpectedOutput string  `json:"expected_output,omitempty"`
	ActualOutput   string  `json:"actual_output,omitempty"`
	Error          string  `json:"error,omitempty"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// SubmissionStatus is the cached view of a submission.
type SubmissionStatus struct {
	SubmissionID     string     `json:"submission_id"`
	ContestID        int64      `json:"contest_id"`
	ProblemID        int64      `json:"problem_id"`
	UserID           int64      `json:"user_id"`
	Status           string     `json:"status"`
	Score            int        `json:"score"`
	PassedCount      int        `json:"passed_count"`
	TotalCount       int        `json:"total_count"`
	ExecutionSeconds float64    `json:"execution_seconds"`
	Cases            []CaseView `json:"cases,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
