// Package model holds judge transport types shared by the service, its
// repositories and the HTTP layer.
package model

import "time"

const VerdictEventFinal = "submission.judged"

// VerdictEvent is published once a submission reaches a terminal status.
// Consumers use it to replay the participant aggregate.
type VerdictEvent struct {
	Type         string    `json:"type"`
	SubmissionID string    `json:"submission_id"`
	ContestID    int64     `json:"contest_id"`
	ProblemID    int64     `json:"problem_id"`
	UserID       int64     `json:"user_id"`
	Status       string    `json:"status"`
	Score        int       `json:"score"`
	PassedCount  int       `json:"passed_count"`
	TotalCount   int       `json:"total_count"`
	SubmittedAt  time.Time `json:"submitted_at"`
	JudgedAt     time.Time `json:"judged_at"`
}
