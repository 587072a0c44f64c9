package service

import (
	"edujudge/internal/contest/model"
	"edujudge/internal/judge/harness"
)

// Score derives the submission status and points from case results.
// Partial credit is floor(points*passed/total) in integer arithmetic.
func Score(points int, results []harness.CaseResult) (model.SubmissionStatus, int) {
	sum := harness.Summarize(results)
	switch {
	case sum.Total == 0 || sum.Errored == sum.Total:
		return model.SubmissionError, 0
	case sum.Passed == sum.Total:
		return model.SubmissionAccepted, points
	case sum.Passed > 0:
		return model.SubmissionPartial, points * sum.Passed / sum.Total
	default:
		return model.SubmissionWrongAnswer, 0
	}
}
