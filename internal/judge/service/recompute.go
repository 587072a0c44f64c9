package service

import (
	"context"
	"fmt"
	"time"

	"edujudge/internal/common/mq"
	"edujudge/internal/contest/model"
	judgeModel "edujudge/internal/judge/model"
	judgeRepo "edujudge/internal/judge/repository"
	appErr "edujudge/pkg/errors"
	"edujudge/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	recomputeLockPrefix = "judge:recompute:"
	lockRetryInterval   = 50 * time.Millisecond
)

// RecomputeParticipant rebuilds the aggregate of one user from graded
// submissions. Running it twice yields the same row.
func (s *Service) RecomputeParticipant(ctx context.Context, contestID, userID int64) (model.Participant, error) {
	unlock, err := s.lockParticipant(ctx, contestID, userID)
	if err != nil {
		return model.Participant{}, err
	}
	defer unlock()

	stats, err := s.submissions.ParticipantStats(ctx, contestID, userID)
	if err != nil {
		return model.Participant{}, appErr.Wrapf(err, appErr.DatabaseError, "load participant stats failed")
	}
	p := model.Participant{
		ContestID:      contestID,
		UserID:         userID,
		TotalScore:     stats.TotalScore,
		ProblemsSolved: stats.ProblemsSolved,
		LastSubmission: stats.LastSubmission,
	}
	if err := s.participants.Upsert(ctx, p); err != nil {
		return model.Participant{}, appErr.Wrapf(err, appErr.DatabaseError, "upsert participant failed")
	}
	return p, nil
}

// lockParticipant serializes recomputes of one (contest, user) pair across
// instances. Without a locker the upsert alone keeps the row consistent.
func (s *Service) lockParticipant(ctx context.Context, contestID, userID int64) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	key := fmt.Sprintf("%s%d:%d", recomputeLockPrefix, contestID, userID)
	token := uuid.NewString()
	deadline := time.Now().Add(s.lockWait)
	for {
		ok, err := s.locker.TryLock(ctx, key, token, s.lockTTL)
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.CacheError, "acquire recompute lock failed")
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, appErr.New(appErr.Timeout).WithMessage("recompute lock is busy")
		}
		select {
		case <-ctx.Done():
			return nil, appErr.Wrap(ctx.Err(), appErr.Timeout)
		case <-time.After(lockRetryInterval):
		}
	}
	return func() {
		if _, err := s.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
			logger.Warn(ctx, "release recompute lock failed", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

// HandleVerdictEvent replays a verdict event into the participant aggregate.
// Malformed messages are dropped so they are not redelivered forever.
func (s *Service) HandleVerdictEvent(ctx context.Context, msg *mq.Message) error {
	event, err := judgeRepo.DecodeVerdictEvent(msg)
	if err != nil {
		logger.Warn(ctx, "drop invalid verdict event", zap.Error(err))
		return nil
	}
	if event.Type != judgeModel.VerdictEventFinal || event.ContestID <= 0 || event.UserID <= 0 {
		logger.Warn(ctx, "drop unexpected verdict event",
			zap.String("type", event.Type), zap.String("submission_id", event.SubmissionID))
		return nil
	}
	if _, err := s.RecomputeParticipant(ctx, event.ContestID, event.UserID); err != nil {
		logger.Error(ctx, "replay verdict event failed", zap.String("submission_id", event.SubmissionID), zap.Error(err))
		return err
	}
	return nil
}
