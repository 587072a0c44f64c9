package service

import (
	"context"
	"errors"
	"strings"

	"edujudge/internal/contest/model"
	"edujudge/internal/contest/repository"
	judgeModel "edujudge/internal/judge/model"
	judgeRepo "edujudge/internal/judge/repository"
	appErr "edujudge/pkg/errors"
	"edujudge/pkg/utils/logger"

	"go.uber.org/zap"
)

// GetStatus returns the latest status of a submission. The cache mirror is
// preferred; the database is the source of truth.
func (s *Service) GetStatus(ctx context.Context, submissionID string) (judgeModel.SubmissionStatus, error) {
	submissionID = strings.TrimSpace(submissionID)
	if submissionID == "" {
		return judgeModel.SubmissionStatus{}, appErr.ValidationError("submission_id", "cannot be empty")
	}
	if s.statusStore != nil {
		status, err := s.statusStore.Get(ctx, submissionID)
		if err == nil {
			return status, nil
		}
		if !errors.Is(err, judgeRepo.ErrStatusNotFound) {
			logger.Warn(ctx, "read status mirror failed", zap.String("submission_id", submissionID), zap.Error(err))
		}
	}

	sub, err := s.submissions.GetSubmission(ctx, submissionID)
	if err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			return judgeModel.SubmissionStatus{}, appErr.New(appErr.SubmissionNotFound).WithDetail("submission_id", submissionID)
		}
		return judgeModel.SubmissionStatus{}, appErr.Wrapf(err, appErr.DatabaseError, "load submission failed")
	}
	results, err := s.submissions.ListTestResults(ctx, submissionID)
	if err != nil {
		return judgeModel.SubmissionStatus{}, appErr.Wrapf(err, appErr.DatabaseError, "load test results failed")
	}
	status := statusView(&sub, storedCaseViews(results))
	if sub.JudgedAt != nil {
		status.UpdatedAt = *sub.JudgedAt
	} else {
		status.UpdatedAt = sub.SubmittedAt
	}
	if sub.Status.Terminal() {
		s.saveStatus(ctx, status)
	}
	return status, nil
}

func storedCaseViews(results []model.TestResult) []judgeModel.CaseView {
	if len(results) == 0 {
		return nil
	}
	out := make([]judgeModel.CaseView, 0, len(results))
	for _, r := range results {
		out = append(out, judgeModel.CaseView{
			CaseIndex:      r.CaseIndex,
			Status:         string(r.Status),
			ElapsedSeconds: r.ExecutionSeconds,
		})
	}
	return out
}
