//go:build linux

package engine

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"edujudge/internal/judge/sandbox/spec"
)

func newDirectEngine(t *testing.T, maxOutput int64) Engine {
	t.Helper()
	eng, err := NewEngine(Config{OutputMaxBytes: maxOutput})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return eng
}

func shellSpec(t *testing.T, script string, wallMs int64) spec.RunSpec {
	t.Helper()
	return spec.RunSpec{
		WorkDir:    t.TempDir(),
		Cmd:        []string{"/bin/sh", "-c", script},
		StdoutPath: "stdout.txt",
		StderrPath: "stderr.txt",
		Limits:     spec.ResourceLimit{WallTimeMs: wallMs},
	}
}

// processGone reports whether pid has exited (missing or zombie).
func processGone(pid int) bool {
	data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return true
	}
	fields := strings.Fields(string(data))
	return len(fields) > 2 && fields[2] == "Z"
}

func waitGone(t *testing.T, pid int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if processGone(pid) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("expected process %d to be killed", pid)
}

func readPid(t *testing.T, dir string) int {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "child.pid"))
	if err != nil {
		t.Fatalf("read child pid: %v", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		t.Fatalf("parse child pid: %v", err)
	}
	return pid
}

func TestRunEchoesStdin(t *testing.T) {
	eng := newDirectEngine(t, 0)
	rs := shellSpec(t, "cat; echo oops >&2", 2000)
	if err := os.WriteFile(filepath.Join(rs.WorkDir, "stdin.txt"), []byte("1 2\n"), 0o600); err != nil {
		t.Fatalf("write stdin: %v", err)
	}
	rs.StdinPath = "stdin.txt"

	res, err := eng.Run(context.Background(), rs)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.ExitCode != 0 || res.TimedOut {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Stdout != "1 2\n" {
		t.Fatalf("expected stdin echoed, got %q", res.Stdout)
	}
	if res.Stderr != "oops\n" {
		t.Fatalf("expected stderr captured, got %q", res.Stderr)
	}
}

func TestRunReportsExitCode(t *testing.T) {
	eng := newDirectEngine(t, 0)
	res, err := eng.Run(context.Background(), shellSpec(t, "exit 3", 2000))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %d", res.ExitCode)
	}
}

func TestRunWallTimeoutKillsGroup(t *testing.T) {
	eng := newDirectEngine(t, 0)
	rs := shellSpec(t, "sleep 30 & echo $! > child.pid; wait", 300)

	start := time.Now()
	res, err := eng.Run(context.Background(), rs)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.TimedOut {
		t.Fatalf("expected timeout, got %+v", res)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("expected prompt kill, took %v", elapsed)
	}
	waitGone(t, readPid(t, rs.WorkDir))
}

func TestRunKillsBackgroundChildrenAfterExit(t *testing.T) {
	eng := newDirectEngine(t, 0)
	rs := shellSpec(t, "sleep 30 & echo $! > child.pid", 5000)

	res, err := eng.Run(context.Background(), rs)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.TimedOut || res.ExitCode != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	waitGone(t, readPid(t, rs.WorkDir))
}

func TestRunTruncatesOutput(t *testing.T) {
	eng := newDirectEngine(t, 8)
	res, err := eng.Run(context.Background(), shellSpec(t, "echo 0123456789abcdef", 2000))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Stdout != "01234567" || !res.OutputTruncated {
		t.Fatalf("expected truncated stdout with flag, got %q %v", res.Stdout, res.OutputTruncated)
	}
}

func TestRunOutputAtCapIsNotTruncated(t *testing.T) {
	eng := newDirectEngine(t, 8)
	res, err := eng.Run(context.Background(), shellSpec(t, "printf 01234567", 2000))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Stdout != "01234567" || res.OutputTruncated {
		t.Fatalf("expected full stdout without flag, got %q %v", res.Stdout, res.OutputTruncated)
	}
}

func TestRunDefaultCapKeepsLargeOutput(t *testing.T) {
	eng := newDirectEngine(t, 0)
	res, err := eng.Run(context.Background(), shellSpec(t, "head -c 70000 /dev/zero | tr '\\0' a", 2000))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Stdout) != 70000 || res.OutputTruncated {
		t.Fatalf("expected 70000 bytes untruncated, got %d %v", len(res.Stdout), res.OutputTruncated)
	}
}

func TestRunReportsCPULimitSignal(t *testing.T) {
	eng := newDirectEngine(t, 0)
	res, err := eng.Run(context.Background(), shellSpec(t, "kill -s XCPU $$", 2000))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.CPUExceeded || res.TimedOut {
		t.Fatalf("expected cpu limit signal, got %+v", res)
	}

	res, err = eng.Run(context.Background(), shellSpec(t, "exit 1", 2000))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.CPUExceeded {
		t.Fatalf("expected plain exit without cpu flag")
	}
}

func TestRunCancelledContext(t *testing.T) {
	eng := newDirectEngine(t, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := eng.Run(ctx, shellSpec(t, "sleep 5", 10000)); err == nil {
		t.Fatalf("expected cancellation error")
	}
}

func TestRunRejectsInvalidSpec(t *testing.T) {
	eng := newDirectEngine(t, 0)
	if _, err := eng.Run(context.Background(), spec.RunSpec{WorkDir: t.TempDir()}); err == nil {
		t.Fatalf("expected missing command error")
	}
}

func TestParseOomKill(t *testing.T) {
	if got := parseOomKill("low 0\nhigh 0\nmax 2\noom 1\noom_kill 1\n"); got != 1 {
		t.Fatalf("expected oom_kill 1, got %d", got)
	}
	if got := parseOomKill(""); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}
