// Package authoring creates contests and their problems, and registers
// participants. Problems and test cases may only change before a contest
// starts, and only by the contest's creator.
package authoring

import (
	"context"
	"errors"
	"time"

	"edujudge/internal/common/db"
	"edujudge/internal/contest/clock"
	"edujudge/internal/contest/model"
	"edujudge/internal/contest/repository"
	appErr "edujudge/pkg/errors"
	"edujudge/pkg/utils/logger"

	"go.uber.org/zap"
)

type ContestStore interface {
	repository.ContestRepository
	repository.ContestWriter
}

type ProblemStore interface {
	repository.ProblemRepository
	repository.ProblemWriter
}

type ParticipantStore interface {
	repository.ParticipantRegistry
}

// Service applies ownership and lifecycle rules to contest authoring.
type Service struct {
	contests     ContestStore
	problems     ProblemStore
	participants ParticipantStore
	clock        clock.Clock
}

func NewService(contests ContestStore, problems ProblemStore, participants ParticipantStore, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.System
	}
	return &Service{contests: contests, problems: problems, participants: participants, clock: clk}
}

// CreateContestInput is a new contest.
type CreateContestInput struct {
	Title           string
	Description     string
	StartAt         time.Time
	DurationMinutes int
}

// CreateContest stores a new active contest owned by actor.
func (s *Service) CreateContest(ctx context.Context, actor int64, in CreateContestInput) (model.Contest, error) {
	contest := model.Contest{
		Title:           in.Title,
		Description:     in.Description,
		StartAt:         in.StartAt.UTC(),
		DurationMinutes: in.DurationMinutes,
		CreatedBy:       actor,
		IsActive:        true,
		CreatedAt:       s.clock.Now().UTC(),
	}
	if err := contest.Validate(); err != nil {
		return model.Contest{}, validationError(err)
	}
	if err := s.contests.CreateContest(ctx, &contest); err != nil {
		return model.Contest{}, appErr.Wrapf(err, appErr.DatabaseError, "create contest failed")
	}
	logger.Info(ctx, "contest created",
		zap.Int64("contest_id", contest.ID),
		zap.Int64("created_by", actor),
		zap.Time("start_at", contest.StartAt))
	return contest, nil
}

// RescheduleContest changes the start and length of an upcoming contest.
// The start is fixed once any problem is attached.
func (s *Service) RescheduleContest(ctx context.Context, actor, contestID int64, startAt time.Time, durationMinutes int) (model.Contest, error) {
	contest, err := s.editableContest(ctx, actor, contestID)
	if err != nil {
		return model.Contest{}, err
	}
	startAt = startAt.UTC()
	if !startAt.Equal(contest.StartAt) {
		n, err := s.contests.CountProblems(ctx, contestID)
		if err != nil {
			return model.Contest{}, appErr.Wrapf(err, appErr.DatabaseError, "count problems failed")
		}
		if n > 0 {
			return model.Contest{}, appErr.New(appErr.ContestScheduleLocked).
				WithDetail("contest_id", contestID).
				WithDetail("problems", n)
		}
	}
	contest.StartAt = startAt
	contest.DurationMinutes = durationMinutes
	if err := contest.Validate(); err != nil {
		return model.Contest{}, validationError(err)
	}
	if err := s.contests.UpdateSchedule(ctx, contestID, startAt, durationMinutes); err != nil {
		return model.Contest{}, appErr.Wrapf(err, appErr.DatabaseError, "update schedule failed")
	}
	return contest, nil
}

// AddProblem attaches a problem to an upcoming contest. Zero points and
// limits take the stock defaults.
func (s *Service) AddProblem(ctx context.Context, actor, contestID int64, problem model.Problem) (model.Problem, error) {
	if _, err := s.editableContest(ctx, actor, contestID); err != nil {
		return model.Problem{}, err
	}
	problem = problem.WithDefaults()
	problem.ID = 0
	problem.ContestID = contestID
	problem.CreatedAt = s.clock.Now().UTC()
	if err := problem.Validate(); err != nil {
		return model.Problem{}, validationError(err)
	}
	if err := s.problems.CreateProblem(ctx, &problem); err != nil {
		return model.Problem{}, appErr.Wrapf(err, appErr.DatabaseError, "create problem failed")
	}
	return problem, nil
}

// UpdateProblem rewrites a problem statement and its limits.
func (s *Service) UpdateProblem(ctx context.Context, actor, contestID int64, problem model.Problem) (model.Problem, error) {
	if _, err := s.editableContest(ctx, actor, contestID); err != nil {
		return model.Problem{}, err
	}
	current, err := s.problem(ctx, contestID, problem.ID)
	if err != nil {
		return model.Problem{}, err
	}
	problem = problem.WithDefaults()
	problem.ContestID = contestID
	problem.CreatedAt = current.CreatedAt
	if err := problem.Validate(); err != nil {
		return model.Problem{}, validationError(err)
	}
	if err := s.problems.UpdateProblem(ctx, problem); err != nil {
		if errors.Is(err, repository.ErrProblemNotFound) {
			return model.Problem{}, appErr.New(appErr.ProblemNotFound).WithDetail("problem_id", problem.ID)
		}
		return model.Problem{}, appErr.Wrapf(err, appErr.DatabaseError, "update problem failed")
	}
	s.invalidate(ctx, problem.ID)
	return problem, nil
}

// AddTestCase appends a case to a problem of an upcoming contest.
func (s *Service) AddTestCase(ctx context.Context, actor, contestID int64, tc model.TestCase) (model.TestCase, error) {
	if _, err := s.editableContest(ctx, actor, contestID); err != nil {
		return model.TestCase{}, err
	}
	if _, err := s.problem(ctx, contestID, tc.ProblemID); err != nil {
		return model.TestCase{}, err
	}
	tc.ID = 0
	tc.CreatedAt = s.clock.Now().UTC()
	if err := s.problems.CreateTestCase(ctx, &tc); err != nil {
		return model.TestCase{}, appErr.Wrapf(err, appErr.DatabaseError, "create test case failed")
	}
	s.invalidate(ctx, tc.ProblemID)
	return tc, nil
}

// JoinContest registers actor in a live contest. Joining twice returns the
// existing registration.
func (s *Service) JoinContest(ctx context.Context, actor, contestID int64) (model.Participant, error) {
	contest, err := s.contest(ctx, contestID)
	if err != nil {
		return model.Participant{}, err
	}
	if !contest.IsActive {
		return model.Participant{}, appErr.New(appErr.ContestAccessDenied).WithMessage("contest is not active")
	}
	if err := clock.Gate(s.clock.Now(), contest); err != nil {
		return model.Participant{}, err
	}

	p := model.Participant{ContestID: contestID, UserID: actor}
	err = s.participants.Create(ctx, &p)
	if err == nil {
		return p, nil
	}
	if _, dup := db.UniqueViolation(err); !dup {
		return model.Participant{}, appErr.Wrapf(err, appErr.DatabaseError, "join contest failed")
	}
	existing, err := s.participants.Get(ctx, contestID, actor)
	if err != nil {
		return model.Participant{}, appErr.Wrapf(err, appErr.DatabaseError, "load participant failed")
	}
	return existing, nil
}

func (s *Service) contest(ctx context.Context, contestID int64) (model.Contest, error) {
	contest, err := s.contests.GetContest(ctx, contestID)
	if err != nil {
		if errors.Is(err, repository.ErrContestNotFound) {
			return model.Contest{}, appErr.New(appErr.ContestNotFound).WithDetail("contest_id", contestID)
		}
		return model.Contest{}, appErr.Wrapf(err, appErr.DatabaseError, "load contest failed")
	}
	return contest, nil
}

// editableContest loads a contest that actor owns and that has not started.
func (s *Service) editableContest(ctx context.Context, actor, contestID int64) (model.Contest, error) {
	contest, err := s.contest(ctx, contestID)
	if err != nil {
		return model.Contest{}, err
	}
	if contest.CreatedBy != actor {
		return model.Contest{}, appErr.New(appErr.ContestAccessDenied).WithDetail("contest_id", contestID)
	}
	if clock.ContestPhase(s.clock.Now(), contest) != clock.PhaseUpcoming {
		return model.Contest{}, appErr.New(appErr.ContestNotEditable).
			WithDetail("contest_id", contestID).
			WithDetail("start_at", contest.StartAt.UTC().Format(time.RFC3339))
	}
	return contest, nil
}

func (s *Service) problem(ctx context.Context, contestID, problemID int64) (model.Problem, error) {
	problem, err := s.problems.GetProblem(ctx, contestID, problemID)
	if err != nil {
		if errors.Is(err, repository.ErrProblemNotFound) {
			return model.Problem{}, appErr.New(appErr.ProblemNotFound).WithDetail("problem_id", problemID)
		}
		return model.Problem{}, appErr.Wrapf(err, appErr.DatabaseError, "load problem failed")
	}
	return problem, nil
}

// invalidate drops cached statements and cases. A failure only delays the
// change until the cache entry expires.
func (s *Service) invalidate(ctx context.Context, problemID int64) {
	if err := s.problems.InvalidateProblem(ctx, problemID); err != nil {
		logger.Warn(ctx, "invalidate problem cache failed", zap.Int64("problem_id", problemID), zap.Error(err))
	}
}

func validationError(err error) error {
	switch {
	case errors.Is(err, model.ErrTitleRequired):
		return appErr.ValidationError("title", "is required")
	case errors.Is(err, model.ErrInvalidDuration):
		return appErr.ValidationError("duration_minutes", "must be positive")
	case errors.Is(err, model.ErrInvalidLimits):
		return appErr.ValidationError("limits", "must not be negative")
	default:
		return appErr.Wrap(err, appErr.ValidationFailed)
	}
}
