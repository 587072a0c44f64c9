// Package observer defines metrics hooks for sandbox execution.
package observer

import (
	"context"
	"time"

	"edujudge/internal/judge/sandbox/result"
)

// MetricsRecorder records sandbox metrics.
type MetricsRecorder interface {
	ObserveCompile(ctx context.Context, language string, ok bool, elapsed time.Duration)
	ObserveRun(ctx context.Context, language string, verdict result.Verdict, elapsed time.Duration, memoryKB int64)
}

// NopRecorder discards every observation.
type NopRecorder struct{}

func (NopRecorder) ObserveCompile(context.Context, string, bool, time.Duration) {}

func (NopRecorder) ObserveRun(context.Context, string, result.Verdict, time.Duration, int64) {}
