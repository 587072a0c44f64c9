package service

import (
	"context"
	"strings"

	"edujudge/internal/contest/model"
	"edujudge/internal/judge/harness"
	judgeModel "edujudge/internal/judge/model"
	"edujudge/internal/judge/sandbox/result"
	appErr "edujudge/pkg/errors"
	"edujudge/pkg/utils/logger"

	"go.uber.org/zap"
)

// TrialMode tells which kind of trial run produced a result.
type TrialMode string

const (
	TrialSamples TrialMode = "samples"
	TrialCustom  TrialMode = "custom"
)

// TrialRequest is an ungraded run. A blank CustomInput runs the samples.
type TrialRequest struct {
	ContestID   int64
	ProblemID   int64
	UserID      int64
	Code        string
	Language    string
	CustomInput string
}

// TrialResult is never persisted.
type TrialResult struct {
	Mode           TrialMode             `json:"mode"`
	Stdout         string                `json:"stdout,omitempty"`
	Stderr         string                `json:"stderr,omitempty"`
	Verdict        string                `json:"verdict,omitempty"`
	ElapsedSeconds float64               `json:"elapsed_seconds"`
	Cases          []judgeModel.CaseView `json:"cases,omitempty"`
	Passed         int                   `json:"passed"`
	Total          int                   `json:"total"`
	AllPassed      bool                  `json:"all_passed"`
}

// RunTrial executes code on the sample cases or on custom input.
func (s *Service) RunTrial(ctx context.Context, req TrialRequest) (TrialResult, error) {
	lang, err := s.validateCode(req.Code, req.Language)
	if err != nil {
		return TrialResult{}, err
	}
	if _, err := s.liveContest(ctx, req.ContestID); err != nil {
		return TrialResult{}, err
	}
	problem, cases, err := s.loadProblem(ctx, req.ContestID, req.ProblemID)
	if err != nil {
		return TrialResult{}, err
	}

	sub := harness.Submission{
		Code:          req.Code,
		Language:      string(lang),
		TimeLimit:     problem.TimeLimit(),
		MemoryLimitMB: problem.MemoryLimit(),
	}
	custom := strings.TrimSpace(req.CustomInput)
	if len(custom) > s.maxCodeBytes {
		return TrialResult{}, appErr.New(appErr.CustomInputTooLarge).WithDetail("max_bytes", s.maxCodeBytes)
	}

	var samples []model.TestCase
	if custom == "" {
		samples, _ = model.SplitCases(cases)
		if len(samples) == 0 {
			return TrialResult{}, appErr.New(appErr.NoSampleTestCases).WithDetail("problem_id", req.ProblemID)
		}
	}

	if err := s.allowTrial(ctx, req.UserID); err != nil {
		return TrialResult{}, err
	}
	if err := s.acquireSlot(ctx); err != nil {
		return TrialResult{}, err
	}
	defer s.releaseSlot()

	if custom != "" {
		out := s.harness.RunCustom(ctx, sub, custom)
		if out.Verdict == result.VerdictInfraError {
			logger.Error(ctx, "trial run failed", zap.String("stderr", out.Stderr))
			return TrialResult{}, appErr.New(appErr.JudgeSystemError).WithMessage("internal error, try again")
		}
		return TrialResult{
			Mode:           TrialCustom,
			Stdout:         out.Stdout,
			Stderr:         out.ErrorText(),
			Verdict:        string(out.Verdict),
			ElapsedSeconds: out.ElapsedSeconds(),
		}, nil
	}

	results := s.harness.Trial(ctx, sub, toHarnessCases(samples))
	if harness.HasInfraError(results) {
		logger.Error(ctx, "trial run failed", zap.Int64("problem_id", req.ProblemID))
		return TrialResult{}, appErr.New(appErr.JudgeSystemError).WithMessage("internal error, try again")
	}
	summary := harness.Summarize(results)
	return TrialResult{
		Mode:           TrialSamples,
		ElapsedSeconds: summary.Elapsed.Seconds(),
		Cases:          sampleCaseViews(samples, results),
		Passed:         summary.Passed,
		Total:          summary.Total,
		AllPassed:      summary.AllPassed(),
	}, nil
}

func (s *Service) allowTrial(ctx context.Context, userID int64) error {
	if s.limiter == nil {
		return nil
	}
	ok, err := s.limiter.Allow(ctx, userID)
	if err != nil {
		// An unavailable limiter does not block trial runs.
		logger.Warn(ctx, "trial limiter failed", zap.Int64("user_id", userID), zap.Error(err))
		return nil
	}
	if !ok {
		return appErr.New(appErr.SubmitTooFrequently)
	}
	return nil
}

// Samples are public, so their input and expected output are echoed back.
func sampleCaseViews(samples []model.TestCase, results []harness.CaseResult) []judgeModel.CaseView {
	byID := make(map[int64]model.TestCase, len(samples))
	for _, tc := range samples {
		byID[tc.ID] = tc
	}
	out := make([]judgeModel.CaseView, 0, len(results))
	for _, r := range results {
		tc := byID[r.TestCaseID]
		out = append(out, judgeModel.CaseView{
			CaseIndex:      r.CaseIndex,
			Status:         string(r.Status),
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
			ActualOutput:   r.ActualOutput,
			Error:          r.ErrorText,
			ElapsedSeconds: r.Elapsed.Seconds(),
		})
	}
	return out
}
