// Package clock derives the lifecycle phase of a contest from wall time.
package clock

import (
	"time"

	"edujudge/internal/contest/model"
	appErr "edujudge/pkg/errors"
)

// Phase is the derived contest state. It is never stored.
type Phase string

const (
	PhaseUpcoming Phase = "upcoming"
	PhaseLive     Phase = "live"
	PhaseFinished Phase = "finished"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System is the production clock.
var System Clock = systemClock{}

// Fixed is a clock frozen at one instant.
type Fixed time.Time

func (f Fixed) Now() time.Time { return time.Time(f) }

// PhaseAt classifies now against [start, start+duration]. Both ends are live.
func PhaseAt(now, start time.Time, duration time.Duration) Phase {
	switch {
	case now.Before(start):
		return PhaseUpcoming
	case now.After(start.Add(duration)):
		return PhaseFinished
	default:
		return PhaseLive
	}
}

// ContestPhase is PhaseAt for a contest record.
func ContestPhase(now time.Time, contest model.Contest) Phase {
	return PhaseAt(now, contest.StartAt, contest.Duration())
}

// Gate permits an action only while the contest is live.
func Gate(now time.Time, contest model.Contest) error {
	switch ContestPhase(now, contest) {
	case PhaseUpcoming:
		return appErr.New(appErr.ContestNotStarted).
			WithDetail("contest_id", contest.ID).
			WithDetail("start_at", contest.StartAt.UTC().Format(time.RFC3339))
	case PhaseFinished:
		return appErr.New(appErr.ContestEnded).
			WithDetail("contest_id", contest.ID).
			WithDetail("end_at", contest.EndAt().UTC().Format(time.RFC3339))
	default:
		return nil
	}
}

// GateReadable permits reading results once the contest has started.
func GateReadable(now time.Time, contest model.Contest) error {
	if ContestPhase(now, contest) == PhaseUpcoming {
		return appErr.New(appErr.RankingNotAvailable).WithDetail("contest_id", contest.ID)
	}
	return nil
}

// Remaining returns how long until the phase changes: time to start while
// upcoming, time to end while live, and zero once finished.
func Remaining(now time.Time, contest model.Contest) time.Duration {
	switch ContestPhase(now, contest) {
	case PhaseUpcoming:
		return contest.StartAt.Sub(now)
	case PhaseLive:
		return contest.EndAt().Sub(now)
	default:
		return 0
	}
}
