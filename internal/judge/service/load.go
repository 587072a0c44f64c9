package service

import (
	"context"
	"errors"
	"strings"

	"edujudge/internal/contest/clock"
	"edujudge/internal/contest/model"
	"edujudge/internal/contest/repository"
	"edujudge/internal/judge/sandbox/profile"
	appErr "edujudge/pkg/errors"
)

func (s *Service) validateCode(code, language string) (profile.Language, error) {
	if strings.TrimSpace(code) == "" {
		return "", appErr.ValidationError("code", "cannot be empty")
	}
	if len(code) > s.maxCodeBytes {
		return "", appErr.New(appErr.CodeTooLarge).WithDetail("max_bytes", s.maxCodeBytes)
	}
	lang, err := profile.ParseLanguage(language)
	if err != nil {
		return "", appErr.New(appErr.LanguageNotSupported).WithDetail("language", language)
	}
	return lang, nil
}

// liveContest loads the contest and evaluates the gate at this instant.
func (s *Service) liveContest(ctx context.Context, contestID int64) (model.Contest, error) {
	contest, err := s.contests.GetContest(ctx, contestID)
	if err != nil {
		if errors.Is(err, repository.ErrContestNotFound) {
			return model.Contest{}, appErr.New(appErr.ContestNotFound).WithDetail("contest_id", contestID)
		}
		return model.Contest{}, appErr.Wrapf(err, appErr.DatabaseError, "load contest failed")
	}
	if !contest.IsActive {
		return model.Contest{}, appErr.New(appErr.ContestAccessDenied).WithMessage("contest is not active")
	}
	if err := clock.Gate(s.clock.Now(), contest); err != nil {
		return model.Contest{}, err
	}
	return contest, nil
}

func (s *Service) loadProblem(ctx context.Context, contestID, problemID int64) (model.Problem, []model.TestCase, error) {
	problem, err := s.problems.GetProblem(ctx, contestID, problemID)
	if err != nil {
		if errors.Is(err, repository.ErrProblemNotFound) {
			return model.Problem{}, nil, appErr.New(appErr.ProblemNotFound).WithDetail("problem_id", problemID)
		}
		return model.Problem{}, nil, appErr.Wrapf(err, appErr.DatabaseError, "load problem failed")
	}
	cases, err := s.problems.ListTestCases(ctx, problemID)
	if err != nil {
		return model.Problem{}, nil, appErr.Wrapf(err, appErr.DatabaseError, "load test cases failed")
	}
	return problem, cases, nil
}
