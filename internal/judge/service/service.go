// Package service implements trial runs, graded submissions and participant
// aggregate maintenance for contests.
package service

import (
	"context"
	"fmt"
	"time"

	"edujudge/internal/common/cache"
	"edujudge/internal/contest/clock"
	"edujudge/internal/contest/repository"
	"edujudge/internal/judge/harness"
	"edujudge/internal/judge/model"
	judgeRepo "edujudge/internal/judge/repository"
)

const (
	defaultWorkerPoolSize = 4
	defaultQueueWait      = 2 * time.Second
	defaultMaxCodeBytes   = 64 * 1024
	defaultGradeTimeout   = 5 * time.Minute
	defaultSideEffectWait = 5 * time.Second
	defaultLockTTL        = 10 * time.Second
	defaultLockWait       = 3 * time.Second
)

// StatusStore mirrors submission status for polling.
type StatusStore interface {
	Get(ctx context.Context, submissionID string) (model.SubmissionStatus, error)
	Save(ctx context.Context, status model.SubmissionStatus) error
}

// Archiver keeps a copy of finalized submissions.
type Archiver interface {
	Store(ctx context.Context, record judgeRepo.ArchiveRecord) (string, error)
}

// RateLimiter throttles trial runs per user.
type RateLimiter interface {
	Allow(ctx context.Context, userID int64) (bool, error)
}

// Config holds service dependencies and settings. Optional collaborators may be nil.
type Config struct {
	Harness      *harness.Harness
	Contests     repository.ContestRepository
	Problems     repository.ProblemRepository
	Submissions  repository.SubmissionRepository
	Participants repository.ParticipantRepository

	StatusStore StatusStore
	Publisher   judgeRepo.VerdictPublisher
	Archive     Archiver
	Limiter     RateLimiter
	Locker      cache.LockOps
	Clock       clock.Clock

	WorkerPoolSize    int
	QueueWait         time.Duration
	MaxCodeBytes      int
	GradeTimeout      time.Duration
	SideEffectTimeout time.Duration
	LockTTL           time.Duration
	LockWait          time.Duration
}

// Service handles trial runs and submissions.
type Service struct {
	harness      *harness.Harness
	contests     repository.ContestRepository
	problems     repository.ProblemRepository
	submissions  repository.SubmissionRepository
	participants repository.ParticipantRepository

	statusStore StatusStore
	publisher   judgeRepo.VerdictPublisher
	archive     Archiver
	limiter     RateLimiter
	locker      cache.LockOps
	clock       clock.Clock

	sem               chan struct{}
	queueWait         time.Duration
	maxCodeBytes      int
	gradeTimeout      time.Duration
	sideEffectTimeout time.Duration
	lockTTL           time.Duration
	lockWait          time.Duration
}

// NewService creates a new judge service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Harness == nil {
		return nil, fmt.Errorf("harness is required")
	}
	if cfg.Contests == nil || cfg.Problems == nil {
		return nil, fmt.Errorf("contest and problem repositories are required")
	}
	if cfg.Submissions == nil || cfg.Participants == nil {
		return nil, fmt.Errorf("submission and participant repositories are required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System
	}
	poolSize := cfg.WorkerPoolSize
	if poolSize <= 0 {
		poolSize = defaultWorkerPoolSize
	}
	return &Service{
		harness:           cfg.Harness,
		contests:          cfg.Contests,
		problems:          cfg.Problems,
		submissions:       cfg.Submissions,
		participants:      cfg.Participants,
		statusStore:       cfg.StatusStore,
		publisher:         cfg.Publisher,
		archive:           cfg.Archive,
		limiter:           cfg.Limiter,
		locker:            cfg.Locker,
		clock:             cfg.Clock,
		sem:               make(chan struct{}, poolSize),
		queueWait:         orDefault(cfg.QueueWait, defaultQueueWait),
		maxCodeBytes:      orDefaultInt(cfg.MaxCodeBytes, defaultMaxCodeBytes),
		gradeTimeout:      orDefault(cfg.GradeTimeout, defaultGradeTimeout),
		sideEffectTimeout: orDefault(cfg.SideEffectTimeout, defaultSideEffectWait),
		lockTTL:           orDefault(cfg.LockTTL, defaultLockTTL),
		lockWait:          orDefault(cfg.LockWait, defaultLockWait),
	}, nil
}

func orDefault(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func orDefaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func (s *Service) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
