package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"edujudge/internal/contest/model"
	"edujudge/internal/contest/repository"
	"edujudge/internal/judge/harness"
	judgeModel "edujudge/internal/judge/model"
	judgeRepo "edujudge/internal/judge/repository"
	appErr "edujudge/pkg/errors"
	"edujudge/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SubmitRequest is a graded submission.
type SubmitRequest struct {
	ContestID int64
	ProblemID int64
	UserID    int64
	Code      string
	Language  string
}

// SubmitResult is returned once grading finished.
type SubmitResult struct {
	SubmissionID     string                `json:"submission_id"`
	Status           string                `json:"status"`
	Score            int                   `json:"score"`
	PassedCount      int                   `json:"passed_count"`
	TotalCount       int                   `json:"total_count"`
	ExecutionSeconds float64               `json:"execution_seconds"`
	Message          string                `json:"message"`
	Cases            []judgeModel.CaseView `json:"cases"`
}

// SubmitSolution grades code against every hidden case of a problem and
// records the outcome. The gate is checked before anything is written.
func (s *Service) SubmitSolution(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	lang, err := s.validateCode(req.Code, req.Language)
	if err != nil {
		return SubmitResult{}, err
	}
	contest, err := s.liveContest(ctx, req.ContestID)
	if err != nil {
		return SubmitResult{}, err
	}
	problem, cases, err := s.loadProblem(ctx, req.ContestID, req.ProblemID)
	if err != nil {
		return SubmitResult{}, err
	}
	_, hidden := model.SplitCases(cases)
	if len(hidden) == 0 {
		return SubmitResult{}, appErr.New(appErr.ProblemNotSubmittable).WithMessage("problem has no hidden test cases")
	}

	if err := s.acquireSlot(ctx); err != nil {
		return SubmitResult{}, err
	}
	defer s.releaseSlot()

	// Grading is not cancelled by the caller going away.
	gradeCtx, cancel := s.withTimeout(context.WithoutCancel(ctx), s.gradeTimeout)
	defer cancel()

	sub := &model.Submission{
		ID:          uuid.NewString(),
		ContestID:   req.ContestID,
		ProblemID:   req.ProblemID,
		UserID:      req.UserID,
		Code:        req.Code,
		Language:    string(lang),
		SubmittedAt: s.clock.Now().UTC(),
	}
	if err := s.submissions.CreatePending(gradeCtx, sub); err != nil {
		return SubmitResult{}, appErr.Wrapf(err, appErr.SubmissionCreateFailed, "create submission failed")
	}
	s.saveStatus(gradeCtx, statusView(sub, nil))

	results := s.harness.Grade(gradeCtx, harness.Submission{
		Code:          req.Code,
		Language:      string(lang),
		TimeLimit:     problem.TimeLimit(),
		MemoryLimitMB: problem.MemoryLimit(),
	}, toHarnessCases(hidden))

	status, score := Score(problem.Points, results)
	summary := harness.Summarize(results)
	judgedAt := s.clock.Now().UTC()
	sub.Status = status
	sub.Score = score
	sub.PassedCount = summary.Passed
	sub.TotalCount = summary.Total
	sub.ExecutionSeconds = summary.Elapsed.Seconds()
	sub.JudgedAt = &judgedAt

	stored := toTestResults(sub.ID, results)
	if err := s.submissions.Finalize(gradeCtx, sub, stored); err != nil {
		return SubmitResult{}, s.failSubmission(gradeCtx, sub, err)
	}
	logger.Info(ctx, "submission judged",
		zap.String("submission_id", sub.ID),
		zap.Int64("contest_id", sub.ContestID),
		zap.Int64("problem_id", sub.ProblemID),
		zap.String("status", string(sub.Status)),
		zap.Int("score", sub.Score),
	)

	if _, err := s.RecomputeParticipant(gradeCtx, sub.ContestID, sub.UserID); err != nil {
		logger.Warn(ctx, "recompute participant failed, relying on event replay",
			zap.String("submission_id", sub.ID), zap.Error(err))
	}
	s.afterFinalize(gradeCtx, contest, sub, stored, results)

	return SubmitResult{
		SubmissionID:     sub.ID,
		Status:           string(sub.Status),
		Score:            sub.Score,
		PassedCount:      sub.PassedCount,
		TotalCount:       sub.TotalCount,
		ExecutionSeconds: sub.ExecutionSeconds,
		Message:          fmt.Sprintf("%d/%d test cases passed", sub.PassedCount, sub.TotalCount),
		Cases:            hiddenCaseViews(results),
	}, nil
}

// failSubmission handles a failed finalization. Nothing of the transaction
// was kept, so the row is moved to error unless someone else finalized it.
func (s *Service) failSubmission(ctx context.Context, sub *model.Submission, cause error) error {
	if errors.Is(cause, repository.ErrSubmissionFinalized) {
		return appErr.New(appErr.SubmissionFinalized).WithDetail("submission_id", sub.ID)
	}
	logger.Error(ctx, "finalize submission failed", zap.String("submission_id", sub.ID), zap.Error(cause))
	if err := s.submissions.MarkError(ctx, sub.ID, s.clock.Now().UTC()); err != nil {
		logger.Warn(ctx, "mark submission error failed", zap.String("submission_id", sub.ID), zap.Error(err))
	}
	failed := *sub
	failed.Status = model.SubmissionError
	failed.Score = 0
	s.saveStatus(ctx, statusView(&failed, nil))
	return appErr.Wrapf(cause, appErr.JudgeSystemError, "record verdict failed")
}

// afterFinalize runs side effects that must never change the verdict.
func (s *Service) afterFinalize(ctx context.Context, contest model.Contest, sub *model.Submission, stored []model.TestResult, results []harness.CaseResult) {
	sideCtx, cancel := s.withTimeout(ctx, s.sideEffectTimeout)
	defer cancel()

	s.saveStatus(sideCtx, statusView(sub, hiddenCaseViews(results)))

	if s.publisher != nil {
		event := judgeModel.VerdictEvent{
			Type:         judgeModel.VerdictEventFinal,
			SubmissionID: sub.ID,
			ContestID:    sub.ContestID,
			ProblemID:    sub.ProblemID,
			UserID:       sub.UserID,
			Status:       string(sub.Status),
			Score:        sub.Score,
			PassedCount:  sub.PassedCount,
			TotalCount:   sub.TotalCount,
			SubmittedAt:  sub.SubmittedAt,
			JudgedAt:     *sub.JudgedAt,
		}
		if err := s.publisher.PublishVerdict(sideCtx, event); err != nil {
			logger.Warn(ctx, "publish verdict failed", zap.String("submission_id", sub.ID), zap.Error(err))
		}
	}

	if s.archive != nil {
		key, err := s.archive.Store(sideCtx, judgeRepo.ArchiveRecord{
			ContestTitle: contest.Title,
			Submission:   *sub,
			Results:      stored,
		})
		if err != nil {
			logger.Warn(ctx, "archive submission failed", zap.String("submission_id", sub.ID), zap.Error(err))
		} else {
			logger.Debug(ctx, "submission archived", zap.String("submission_id", sub.ID), zap.String("key", key))
		}
	}
}

func (s *Service) saveStatus(ctx context.Context, status judgeModel.SubmissionStatus) {
	if s.statusStore == nil {
		return
	}
	if err := s.statusStore.Save(ctx, status); err != nil {
		logger.Warn(ctx, "save submission status failed", zap.String("submission_id", status.SubmissionID), zap.Error(err))
	}
}

func statusView(sub *model.Submission, cases []judgeModel.CaseView) judgeModel.SubmissionStatus {
	return judgeModel.SubmissionStatus{
		SubmissionID:     sub.ID,
		ContestID:        sub.ContestID,
		ProblemID:        sub.ProblemID,
		UserID:           sub.UserID,
		Status:           string(sub.Status),
		Score:            sub.Score,
		PassedCount:      sub.PassedCount,
		TotalCount:       sub.TotalCount,
		ExecutionSeconds: sub.ExecutionSeconds,
		Cases:            cases,
		UpdatedAt:        time.Now().UTC(),
	}
}

func toHarnessCases(cases []model.TestCase) []harness.TestCase {
	out := make([]harness.TestCase, 0, len(cases))
	for _, tc := range cases {
		out = append(out, harness.TestCase{ID: tc.ID, Input: tc.Input, ExpectedOutput: tc.ExpectedOutput})
	}
	return out
}

func toTestResults(submissionID string, results []harness.CaseResult) []model.TestResult {
	out := make([]model.TestResult, 0, len(results))
	for _, r := range results {
		out = append(out, model.TestResult{
			SubmissionID:     submissionID,
			TestCaseID:       r.TestCaseID,
			CaseIndex:        r.CaseIndex,
			Status:           model.TestResultStatus(r.Status),
			ActualOutput:     r.ActualOutput,
			ErrorMessage:     r.ErrorText,
			ExecutionSeconds: r.Elapsed.Seconds(),
		})
	}
	return out
}

// Hidden cases only reveal their status and timing.
func hiddenCaseViews(results []harness.CaseResult) []judgeModel.CaseView {
	out := make([]judgeModel.CaseView, 0, len(results))
	for _, r := range results {
		out = append(out, judgeModel.CaseView{
			CaseIndex:      r.CaseIndex,
			Status:         string(r.Status),
			ElapsedSeconds: r.Elapsed.Seconds(),
		})
	}
	return out
}
