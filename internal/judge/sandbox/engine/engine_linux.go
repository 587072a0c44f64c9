//go:build linux

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"edujudge/internal/judge/sandbox/result"
	"edujudge/internal/judge/sandbox/spec"
	"edujudge/pkg/utils/logger"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

type linuxEngine struct {
	cfg Config
}

// NewEngine creates a Linux sandbox engine.
func NewEngine(cfg Config) (Engine, error) {
	if cfg.OutputMaxBytes <= 0 {
		cfg.OutputMaxBytes = defaultOutputMaxBytes
	}
	if cfg.EnableCgroup && cfg.CgroupRoot == "" {
		return nil, fmt.Errorf("cgroup root is required when cgroups are enabled")
	}
	if cfg.HelperPath != "" {
		if _, err := exec.LookPath(cfg.HelperPath); err != nil {
			return nil, fmt.Errorf("sandbox helper not found: %w", err)
		}
	}
	if cfg.EnableSeccomp && cfg.HelperPath == "" {
		return nil, fmt.Errorf("seccomp requires the sandbox helper")
	}
	return &linuxEngine{cfg: cfg}, nil
}

func (e *linuxEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error) {
	if err := validateRunSpec(runSpec); err != nil {
		return result.RunResult{}, err
	}

	cgroupPath := ""
	if e.cfg.EnableCgroup {
		path, cleanup, err := createRunCgroup(e.cfg.CgroupRoot, filepath.Base(runSpec.WorkDir))
		if err != nil {
			return result.RunResult{}, fmt.Errorf("create cgroup: %w", err)
		}
		defer cleanup()
		if err := applyCgroupLimits(path, runSpec.Limits, e.cfg.EnforceMemory); err != nil {
			return result.RunResult{}, fmt.Errorf("apply cgroup limits: %w", err)
		}
		cgroupPath = path
	}

	cmd, closeIO, err := e.buildCommand(runSpec)
	if err != nil {
		return result.RunResult{}, err
	}
	defer closeIO()

	var helperStderr bytes.Buffer
	if e.cfg.HelperPath != "" {
		cmd.Stderr = &helperStderr
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return result.RunResult{}, fmt.Errorf("start process: %w", err)
	}
	pid := cmd.Process.Pid

	if cgroupPath != "" {
		if err := addProcessToCgroup(cgroupPath, pid); err != nil {
			logger.Warn(ctx, "add process to cgroup failed", zap.String("cgroup", cgroupPath), zap.Error(err))
		}
	}

	var timedOut atomic.Bool
	done := make(chan struct{})
	go func() {
		var wallTimer <-chan time.Time
		if limit := durationFromMs(runSpec.Limits.WallTimeMs); limit > 0 {
			timer := time.NewTimer(limit)
			defer timer.Stop()
			wallTimer = timer.C
		}
		select {
		case <-ctx.Done():
			killProcessGroup(ctx, pid)
		case <-wallTimer:
			timedOut.Store(true)
			killProcessGroup(ctx, pid)
		case <-done:
		}
	}()

	waitErr := cmd.Wait()
	wall := time.Since(start)
	close(done)

	// Background children may outlive the leader; the group goes with it.
	killProcessGroup(ctx, pid)
	if cgroupPath != "" {
		_ = killCgroup(cgroupPath)
	}

	if helperStderr.Len() > 0 {
		logger.Warn(ctx, "sandbox helper stderr", zap.String("stderr", helperStderr.String()))
	}
	if err := ctx.Err(); err != nil && !timedOut.Load() {
		return result.RunResult{}, fmt.Errorf("execution cancelled: %w", err)
	}

	stdout, truncated := readLimitedFile(resolvePath(runSpec.WorkDir, runSpec.StdoutPath), e.cfg.OutputMaxBytes)
	stderr, _ := readLimitedFile(resolvePath(runSpec.WorkDir, runSpec.StderrPath), e.cfg.OutputMaxBytes)
	runResult := result.RunResult{
		ExitCode:        exitCodeFromErr(waitErr, cmd.ProcessState),
		TimedOut:        timedOut.Load(),
		WallTime:        wall,
		MemoryKB:        memoryPeakKB(cgroupPath, cmd.ProcessState),
		Stdout:          stdout,
		Stderr:          stderr,
		OomKilled:       wasOomKilled(cgroupPath),
		CPUExceeded:     killedBy(cmd.ProcessState, syscall.SIGXCPU),
		OutputTruncated: truncated,
	}
	if e.cfg.HelperPath != "" && runResult.ExitCode == helperFailureExitCode && helperStderr.Len() > 0 {
		return runResult, fmt.Errorf("sandbox helper failed: %s", bytes.TrimSpace(helperStderr.Bytes()))
	}
	return runResult, nil
}

// helperFailureExitCode is what sandbox-init exits with before exec succeeds.
const helperFailureExitCode = 126

// buildCommand wires either the helper (which opens the stdio files itself) or
// the target program directly with host-side files.
func (e *linuxEngine) buildCommand(runSpec spec.RunSpec) (*exec.Cmd, func(), error) {
	attr := &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}

	if e.cfg.HelperPath != "" {
		payload, err := json.Marshal(InitRequest{
			RunSpec:        runSpec,
			EnforceMemory:  e.cfg.EnforceMemory,
			SeccompProfile: seccompPath(e.cfg),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("encode init request: %w", err)
		}
		cmd := exec.Command(e.cfg.HelperPath)
		cmd.SysProcAttr = attr
		cmd.Stdin = bytes.NewReader(payload)
		return cmd, func() {}, nil
	}

	var files []*os.File
	closeAll := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}

	stdin, err := openInput(resolvePath(runSpec.WorkDir, runSpec.StdinPath))
	if err != nil {
		return nil, nil, err
	}
	files = append(files, stdin)
	stdout, err := openOutput(resolvePath(runSpec.WorkDir, runSpec.StdoutPath))
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	files = append(files, stdout)
	stderr, err := openOutput(resolvePath(runSpec.WorkDir, runSpec.StderrPath))
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	files = append(files, stderr)

	cmd := exec.Command(runSpec.Cmd[0], runSpec.Cmd[1:]...)
	cmd.Dir = runSpec.WorkDir
	cmd.Env = buildEnv(runSpec.Env)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.SysProcAttr = attr
	return cmd, closeAll, nil
}

func seccompPath(cfg Config) string {
	if !cfg.EnableSeccomp {
		return ""
	}
	return cfg.SeccompProfile
}

func exitCodeFromErr(err error, state *os.ProcessState) int {
	if state != nil {
		return state.ExitCode()
	}
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func killedBy(state *os.ProcessState, sig syscall.Signal) bool {
	if state == nil {
		return false
	}
	ws, ok := state.Sys().(syscall.WaitStatus)
	return ok && ws.Signaled() && ws.Signal() == sig
}

func killProcessGroup(ctx context.Context, pid int) {
	if pid <= 0 {
		return
	}
	if err := unix.Kill(-pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		logger.Warn(ctx, "kill process group failed", zap.Int("pgid", pid), zap.Error(err))
	}
}

func validateRunSpec(runSpec spec.RunSpec) error {
	if runSpec.WorkDir == "" {
		return fmt.Errorf("work dir is required")
	}
	if len(runSpec.Cmd) == 0 {
		return fmt.Errorf("command is required")
	}
	return nil
}

func buildEnv(env []string) []string {
	if len(env) > 0 {
		return env
	}
	return []string{"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"}
}

func resolvePath(workDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(workDir, path)
}

func openInput(path string) (*os.File, error) {
	if path == "" {
		path = os.DevNull
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open stdin: %w", err)
	}
	return f, nil
}

func openOutput(path string) (*os.File, error) {
	if path == "" {
		path = os.DevNull
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open output: %w", err)
	}
	return f, nil
}

// readLimitedFile returns at most maxBytes of the file and whether more was there.
func readLimitedFile(path string, maxBytes int64) (string, bool) {
	if path == "" || path == os.DevNull {
		return "", false
	}
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()
	data, _ := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if int64(len(data)) > maxBytes {
		return string(data[:maxBytes]), true
	}
	return string(data), false
}

func durationFromMs(ms int64) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

func cgroupRunName(base string) string {
	return base + "-" + strconv.FormatInt(time.Now().UnixNano(), 36)
}
