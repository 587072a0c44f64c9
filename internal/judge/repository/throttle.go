package repository

import (
	"context"
	"strconv"
	"time"

	"edujudge/internal/common/cache"
)

const trialKeyPrefix = "judge:trial:"

// TrialLimiter caps trial runs per user in fixed one-minute windows.
type TrialLimiter struct {
	cache     cache.Cache
	perMinute int64
	now       func() time.Time
}

// NewTrialLimiter returns a limiter. perMinute <= 0 disables limiting.
func NewTrialLimiter(cacheClient cache.Cache, perMinute int) *TrialLimiter {
	return &TrialLimiter{cache: cacheClient, perMinute: int64(perMinute), now: time.Now}
}

// Allow counts one attempt and reports whether it fits in the current window.
func (l *TrialLimiter) Allow(ctx context.Context, userID int64) (bool, error) {
	if l == nil || l.cache == nil || l.perMinute <= 0 {
		return true, nil
	}
	window := l.now().Unix() / 60
	key := trialKeyPrefix + strconv.FormatInt(userID, 10) + ":" + strconv.FormatInt(window, 10)
	count, err := l.cache.Incr(ctx, key)
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := l.cache.Expire(ctx, key, 2*time.Minute); err != nil {
			return false, err
		}
	}
	return count <= l.perMinute, nil
}
