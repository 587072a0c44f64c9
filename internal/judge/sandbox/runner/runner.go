// Package runner compiles and executes untrusted programs through the sandbox engine.
package runner

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"edujudge/internal/judge/sandbox/engine"
	"edujudge/internal/judge/sandbox/observer"
	"edujudge/internal/judge/sandbox/profile"
	"edujudge/internal/judge/sandbox/result"
	"edujudge/internal/judge/sandbox/spec"
	"edujudge/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultCompileTimeout   = 10 * time.Second
	defaultMaxTimeLimit     = 10 * time.Second
	defaultDefaultTimeLimit = 5 * time.Second
	defaultCompileMemoryMB  = 1024
	defaultOutputMB         = 16
	defaultPIDs             = 64

	compileStdout = "compile.out"
	compileStderr = "compile.err"
	runStdin      = "input.txt"
	runStdout     = "output.txt"
	runStderr     = "error.txt"
)

// Config controls workspace placement and time ceilings.
type Config struct {
	WorkRoot         string
	CompileTimeout   time.Duration
	MaxTimeLimit     time.Duration
	DefaultTimeLimit time.Duration
	CompileMemoryMB  int64
	OutputMB         int64
	PIDs             int64
}

func (c *Config) setDefaults() {
	if c.WorkRoot == "" {
		c.WorkRoot = os.TempDir()
	}
	if c.CompileTimeout <= 0 {
		c.CompileTimeout = defaultCompileTimeout
	}
	if c.MaxTimeLimit <= 0 {
		c.MaxTimeLimit = defaultMaxTimeLimit
	}
	if c.DefaultTimeLimit <= 0 {
		c.DefaultTimeLimit = defaultDefaultTimeLimit
	}
	if c.DefaultTimeLimit > c.MaxTimeLimit {
		c.DefaultTimeLimit = c.MaxTimeLimit
	}
	if c.CompileMemoryMB <= 0 {
		c.CompileMemoryMB = defaultCompileMemoryMB
	}
	if c.OutputMB <= 0 {
		c.OutputMB = defaultOutputMB
	}
	if c.PIDs <= 0 {
		c.PIDs = defaultPIDs
	}
}

// Limits bounds one execution. MemoryMB is advisory unless the engine enforces it.
type Limits struct {
	Time     time.Duration
	MemoryMB int64
}

// Request is a one-shot execution.
type Request struct {
	Code          string
	Language      string
	Stdin         string
	TimeLimit     time.Duration
	MemoryLimitMB int64
}

// Runner turns source code into outcomes. It never returns Go errors:
// infrastructure failures are folded into VerdictInfraError.
type Runner struct {
	engine   engine.Engine
	registry *profile.Registry
	recorder observer.MetricsRecorder
	cfg      Config
}

// NewRunner creates a runner.
func NewRunner(eng engine.Engine, registry *profile.Registry, recorder observer.MetricsRecorder, cfg Config) (*Runner, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("language registry is required")
	}
	if recorder == nil {
		recorder = observer.NopRecorder{}
	}
	cfg.setDefaults()
	if err := os.MkdirAll(cfg.WorkRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create work root: %w", err)
	}
	return &Runner{engine: eng, registry: registry, recorder: recorder, cfg: cfg}, nil
}

// ClampTimeLimit applies the default and the ceiling to a requested limit.
func (r *Runner) ClampTimeLimit(limit time.Duration) time.Duration {
	if limit <= 0 {
		return r.cfg.DefaultTimeLimit
	}
	if limit > r.cfg.MaxTimeLimit {
		return r.cfg.MaxTimeLimit
	}
	return limit
}

// Execute compiles and runs code against one input, then removes the workspace.
func (r *Runner) Execute(ctx context.Context, req Request) result.Outcome {
	session, out := r.Prepare(ctx, req.Code, req.Language)
	if session == nil {
		return out
	}
	defer session.Close()
	return session.Run(ctx, req.Stdin, Limits{Time: req.TimeLimit, MemoryMB: req.MemoryLimitMB})
}

// Prepare creates a fresh workspace, writes the source and compiles it.
// A nil session means nothing can run and the outcome says why.
func (r *Runner) Prepare(ctx context.Context, code, language string) (*Session, result.Outcome) {
	strategy, err := r.registry.Strategy(language)
	if err != nil {
		return nil, result.Infra(err)
	}

	dir, err := os.MkdirTemp(r.cfg.WorkRoot, "run-")
	if err != nil {
		return nil, result.Infra(fmt.Errorf("create workspace: %w", err))
	}
	session := &Session{runner: r, strategy: strategy, code: code, dir: dir}

	if err := os.WriteFile(filepath.Join(dir, strategy.SourceFile(code)), []byte(code), 0o600); err != nil {
		session.Close()
		return nil, result.Infra(fmt.Errorf("write source: %w", err))
	}

	out := session.compile(ctx)
	if out.Verdict != result.VerdictSuccess {
		session.Close()
		return nil, out
	}
	return session, out
}

// Session owns one workspace with an already compiled program.
// Runs are serialized; Close must be called exactly when the session is no longer needed.
type Session struct {
	runner   *Runner
	strategy profile.Strategy
	code     string
	dir      string

	mu     sync.Mutex
	closed bool
}

func (s *Session) compile(ctx context.Context) result.Outcome {
	cmd := s.strategy.CompileCommand(s.code)
	if cmd == nil {
		return result.Outcome{ExitSucceeded: true, Verdict: result.VerdictSuccess}
	}
	cfg := s.runner.cfg
	lang := string(s.strategy.Language())

	res, err := s.runner.engine.Run(ctx, spec.RunSpec{
		WorkDir:    s.dir,
		Cmd:        cmd,
		Env:        s.strategy.Env(),
		StdoutPath: compileStdout,
		StderrPath: compileStderr,
		Limits: spec.ResourceLimit{
			WallTimeMs: cfg.CompileTimeout.Milliseconds(),
			CPUTimeMs:  cpuBudget(cfg.CompileTimeout).Milliseconds(),
			MemoryMB:   cfg.CompileMemoryMB,
			OutputMB:   cfg.OutputMB,
			PIDs:       cfg.PIDs,
		},
	})
	if err != nil {
		logger.Error(ctx, "compile step failed to run", zap.String("language", lang), zap.Error(err))
		return result.Infra(err)
	}

	out := result.Outcome{
		ExitSucceeded: res.ExitCode == 0 && !res.TimedOut,
		Stdout:        res.Stdout,
		Stderr:        res.Stderr,
		Elapsed:       res.WallTime,
		Verdict:       result.VerdictSuccess,
	}
	switch {
	case res.TimedOut:
		out.Verdict = result.VerdictCompilationError
		out.Stdout = ""
		out.Stderr = "Compilation timeout"
		out.Elapsed = cfg.CompileTimeout
	case res.ExitCode != 0:
		out.Verdict = result.VerdictCompilationError
		if strings.TrimSpace(out.Stderr) == "" {
			out.Stderr = res.Stdout
		}
	}
	s.runner.recorder.ObserveCompile(ctx, lang, out.Verdict == result.VerdictSuccess, out.Elapsed)
	return out
}

// Run executes the compiled program with stdin as input.
func (s *Session) Run(ctx context.Context, stdin string, limits Limits) result.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return result.Infra(fmt.Errorf("session is closed"))
	}

	lang := string(s.strategy.Language())
	limit := s.effectiveLimit(limits.Time)

	if err := os.WriteFile(filepath.Join(s.dir, runStdin), []byte(stdin), 0o600); err != nil {
		return result.Infra(fmt.Errorf("write stdin: %w", err))
	}

	res, err := s.runner.engine.Run(ctx, spec.RunSpec{
		WorkDir:    s.dir,
		Cmd:        s.strategy.RunCommand(s.code),
		Env:        s.strategy.Env(),
		StdinPath:  runStdin,
		StdoutPath: runStdout,
		StderrPath: runStderr,
		Limits: spec.ResourceLimit{
			WallTimeMs: limit.Milliseconds(),
			CPUTimeMs:  cpuBudget(limit).Milliseconds(),
			MemoryMB:   limits.MemoryMB,
			OutputMB:   s.runner.cfg.OutputMB,
			PIDs:       s.runner.cfg.PIDs,
		},
	})
	if err != nil {
		logger.Error(ctx, "run step failed to run", zap.String("language", lang), zap.Error(err))
		out := result.Infra(err)
		s.runner.recorder.ObserveRun(ctx, lang, out.Verdict, 0, 0)
		return out
	}

	out := classify(res, limit)
	s.runner.recorder.ObserveRun(ctx, lang, out.Verdict, out.Elapsed, res.MemoryKB)
	return out
}

// Close removes the workspace. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if err := os.RemoveAll(s.dir); err != nil {
		logger.Warn(context.Background(), "remove workspace failed", zap.String("dir", s.dir), zap.Error(err))
	}
}

func (s *Session) effectiveLimit(requested time.Duration) time.Duration {
	limit := s.runner.ClampTimeLimit(requested)
	if m := s.strategy.TimeMultiplier(); m > 0 && m != 1 {
		limit = time.Duration(math.Round(float64(limit) * m))
	}
	return limit
}

// cpuBudget is the RLIMIT_CPU backstop. Multi-threaded runtimes burn CPU
// faster than wall time, so the wall timer stays the primary limit.
func cpuBudget(limit time.Duration) time.Duration {
	return 2*limit + time.Second
}

func timeLimitExceeded(limit time.Duration) result.Outcome {
	return result.Outcome{
		Stderr:  fmt.Sprintf("Time limit exceeded (%gs)", limit.Seconds()),
		Elapsed: limit,
		Verdict: result.VerdictTimeLimitExceeded,
	}
}

func classify(res result.RunResult, limit time.Duration) result.Outcome {
	// A run that finished past the deadline before the kill landed is still over the limit.
	if res.TimedOut || res.CPUExceeded || res.WallTime > limit {
		return timeLimitExceeded(limit)
	}
	out := result.Outcome{
		ExitSucceeded: res.ExitCode == 0,
		Stdout:        res.Stdout,
		Stderr:        res.Stderr,
		Elapsed:       res.WallTime,
		Verdict:       result.VerdictSuccess,
	}
	if res.OomKilled {
		out.ExitSucceeded = false
		out.Verdict = result.VerdictRuntimeError
		if strings.TrimSpace(out.Stderr) == "" {
			out.Stderr = "Memory limit exceeded"
		}
		return out
	}
	if res.OutputTruncated {
		out.ExitSucceeded = false
		out.Verdict = result.VerdictRuntimeError
		out.Stderr = "Output limit exceeded"
		return out
	}
	if res.ExitCode != 0 {
		out.Verdict = result.VerdictRuntimeError
		if strings.TrimSpace(out.Stderr) == "" {
			out.Stderr = fmt.Sprintf("Process exited with code %d", res.ExitCode)
		}
	}
	return out
}
