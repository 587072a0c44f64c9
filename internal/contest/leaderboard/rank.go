// Package leaderboard orders contest participants and assigns dense ranks.
package leaderboard

import (
	"cmp"
	"slices"
	"time"

	"edujudge/internal/contest/model"
)

// Standing is one ranked row.
type Standing struct {
	Rank           int        `json:"rank"`
	UserID         int64      `json:"user_id"`
	TotalScore     int        `json:"total_score"`
	ProblemsSolved int        `json:"problems_solved"`
	LastSubmission *time.Time `json:"last_submission,omitempty"`
}

// Rank orders by score desc, solved desc, last submission asc (missing last)
// and user id asc. Ranks are dense: equal keys share a rank and the next key
// gets the following integer.
func Rank(participants []model.Participant) []Standing {
	sorted := slices.Clone(participants)
	slices.SortStableFunc(sorted, func(a, b model.Participant) int {
		if c := compareKey(a, b); c != 0 {
			return c
		}
		return cmp.Compare(a.UserID, b.UserID)
	})

	standings := make([]Standing, 0, len(sorted))
	rank := 0
	for i, p := range sorted {
		if i == 0 || compareKey(sorted[i-1], p) != 0 {
			rank++
		}
		standings = append(standings, Standing{
			Rank:           rank,
			UserID:         p.UserID,
			TotalScore:     p.TotalScore,
			ProblemsSolved: p.ProblemsSolved,
			LastSubmission: p.LastSubmission,
		})
	}
	return standings
}

func compareKey(a, b model.Participant) int {
	if c := cmp.Compare(b.TotalScore, a.TotalScore); c != 0 {
		return c
	}
	if c := cmp.Compare(b.ProblemsSolved, a.ProblemsSolved); c != 0 {
		return c
	}
	return compareLast(a.LastSubmission, b.LastSubmission)
}

func compareLast(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	default:
		return a.Compare(*b)
	}
}
