package leaderboard

import (
	"context"
	"errors"
	"time"

	"edujudge/internal/contest/clock"
	"edujudge/internal/contest/model"
	"edujudge/internal/contest/repository"
	appErr "edujudge/pkg/errors"
	"edujudge/pkg/utils/logger"

	"go.uber.org/zap"
)

// Board is a leaderboard snapshot.
type Board struct {
	ContestID int64       `json:"contest_id"`
	Phase     clock.Phase `json:"phase"`
	Standings []Standing  `json:"standings"`
}

// Service serves standings, recomputed on every read.
type Service struct {
	contests     repository.ContestRepository
	participants repository.ParticipantRepository
	clock        clock.Clock
}

func NewService(contests repository.ContestRepository, participants repository.ParticipantRepository, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.System
	}
	return &Service{contests: contests, participants: participants, clock: clk}
}

// Standings ranks the participants of a contest. Once the contest is finished
// the ranks are persisted; repeating that write is harmless.
func (s *Service) Standings(ctx context.Context, contestID int64) (Board, error) {
	contest, err := s.contests.GetContest(ctx, contestID)
	if err != nil {
		if errors.Is(err, repository.ErrContestNotFound) {
			return Board{}, appErr.New(appErr.ContestNotFound)
		}
		return Board{}, appErr.Wrapf(err, appErr.DatabaseError, "load contest failed")
	}
	now := s.clock.Now()
	if err := clock.GateReadable(now, contest); err != nil {
		return Board{}, err
	}

	participants, err := s.participants.ListByContest(ctx, contestID)
	if err != nil {
		return Board{}, appErr.Wrapf(err, appErr.DatabaseError, "load participants failed")
	}
	standings := Rank(participants)
	phase := clock.ContestPhase(now, contest)

	if phase == clock.PhaseFinished && needsRankUpdate(participants, standings) {
		ranks := make(map[int64]int, len(standings))
		for _, st := range standings {
			ranks[st.UserID] = st.Rank
		}
		if err := s.participants.UpdateRanks(ctx, contestID, ranks); err != nil {
			logger.Warn(ctx, "persist final ranks failed", zap.Int64("contest_id", contestID), zap.Error(err))
		}
	}
	return Board{ContestID: contestID, Phase: phase, Standings: standings}, nil
}

// ClockView is the phase of a contest and the seconds until it changes.
type ClockView struct {
	ContestID        int64       `json:"contest_id"`
	Phase            clock.Phase `json:"phase"`
	StartAt          time.Time   `json:"start_at"`
	EndAt            time.Time   `json:"end_at"`
	RemainingSeconds int64       `json:"remaining_seconds"`
}

// Clock reports where a contest stands in its lifecycle.
func (s *Service) Clock(ctx context.Context, contestID int64) (ClockView, error) {
	contest, err := s.contests.GetContest(ctx, contestID)
	if err != nil {
		if errors.Is(err, repository.ErrContestNotFound) {
			return ClockView{}, appErr.New(appErr.ContestNotFound)
		}
		return ClockView{}, appErr.Wrapf(err, appErr.DatabaseError, "load contest failed")
	}
	now := s.clock.Now()
	return ClockView{
		ContestID:        contest.ID,
		Phase:            clock.ContestPhase(now, contest),
		StartAt:          contest.StartAt,
		EndAt:            contest.EndAt(),
		RemainingSeconds: int64(clock.Remaining(now, contest) / time.Second),
	}, nil
}

func needsRankUpdate(participants []model.Participant, standings []Standing) bool {
	stored := make(map[int64]*int, len(participants))
	for _, p := range participants {
		stored[p.UserID] = p.Rank
	}
	for _, st := range standings {
		if r := stored[st.UserID]; r == nil || *r != st.Rank {
			return true
		}
	}
	return false
}
