//go:build linux

package runner

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"edujudge/internal/judge/sandbox/engine"
	"edujudge/internal/judge/sandbox/profile"
	"edujudge/internal/judge/sandbox/result"
)

// Shell scripts stand in for python so the test only needs /bin/sh.
func newShellRunner(t *testing.T) *Runner {
	t.Helper()
	return newShellRunnerWithEngine(t, engine.Config{})
}

func newShellRunnerWithEngine(t *testing.T, cfg engine.Config) *Runner {
	t.Helper()
	eng, err := engine.NewEngine(cfg)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	reg, err := profile.NewRegistry(map[string]profile.Toolchain{
		"python": {Extension: ".sh", Run: "/bin/sh {src}"},
	})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	r, err := NewRunner(eng, reg, nil, Config{WorkRoot: t.TempDir()})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	return r
}

func TestShellProgramEndToEnd(t *testing.T) {
	r := newShellRunner(t)
	out := r.Execute(context.Background(), Request{
		Code:      "read a b\necho $((a + b))\n",
		Language:  "python",
		Stdin:     "2 3\n",
		TimeLimit: 2 * time.Second,
	})
	if out.Verdict != result.VerdictSuccess || out.Stdout != "5\n" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}

func TestShellProgramTimesOutAtLimit(t *testing.T) {
	r := newShellRunner(t)
	start := time.Now()
	out := r.Execute(context.Background(), Request{
		Code:      "sleep 5\n",
		Language:  "python",
		TimeLimit: 200 * time.Millisecond,
	})
	if out.Verdict != result.VerdictTimeLimitExceeded || out.Elapsed != 200*time.Millisecond {
		t.Fatalf("expected timeout at limit, got %+v", out)
	}
	if time.Since(start) > 3*time.Second {
		t.Fatalf("expected prompt kill, took %v", time.Since(start))
	}
	entries, _ := os.ReadDir(r.cfg.WorkRoot)
	if len(entries) != 0 {
		t.Fatalf("expected workspace removed, found %d entries", len(entries))
	}
}

func TestShellProgramLargeOutputIsComparedInFull(t *testing.T) {
	r := newShellRunner(t)
	out := r.Execute(context.Background(), Request{
		Code:      "head -c 70000 /dev/zero | tr '\\0' a\n",
		Language:  "python",
		TimeLimit: 2 * time.Second,
	})
	if out.Verdict != result.VerdictSuccess {
		t.Fatalf("expected success, got %+v", out.Verdict)
	}
	if out.Stdout != strings.Repeat("a", 70000) {
		t.Fatalf("expected 70000 bytes of output, got %d", len(out.Stdout))
	}
}

func TestShellProgramOverOutputCap(t *testing.T) {
	r := newShellRunnerWithEngine(t, engine.Config{OutputMaxBytes: 1024})
	out := r.Execute(context.Background(), Request{
		Code:      "head -c 2048 /dev/zero | tr '\\0' a\n",
		Language:  "python",
		TimeLimit: 2 * time.Second,
	})
	if out.Verdict != result.VerdictRuntimeError || out.ErrorText() != "Output limit exceeded" {
		t.Fatalf("expected output limit runtime error, got %+v", out)
	}
}
