package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"edujudge/internal/judge/sandbox/profile"
	"edujudge/internal/judge/sandbox/result"
	"edujudge/internal/judge/sandbox/spec"
)

type fakeEngine struct {
	specs   []spec.RunSpec
	results []result.RunResult
	errs    []error
	stdins  []string
}

func (f *fakeEngine) Run(_ context.Context, runSpec spec.RunSpec) (result.RunResult, error) {
	idx := len(f.specs)
	f.specs = append(f.specs, runSpec)
	if runSpec.StdinPath != "" {
		data, _ := os.ReadFile(filepath.Join(runSpec.WorkDir, runSpec.StdinPath))
		f.stdins = append(f.stdins, string(data))
	}
	var err error
	if idx < len(f.errs) {
		err = f.errs[idx]
	}
	if idx < len(f.results) {
		return f.results[idx], err
	}
	return result.RunResult{}, err
}

func newTestRunner(t *testing.T, eng *fakeEngine) *Runner {
	t.Helper()
	reg, err := profile.NewRegistry(nil)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	r, err := NewRunner(eng, reg, nil, Config{WorkRoot: t.TempDir(), MaxTimeLimit: 10 * time.Second})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	return r
}

func workspaceEntries(t *testing.T, r *Runner) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(r.cfg.WorkRoot)
	if err != nil {
		t.Fatalf("read work root: %v", err)
	}
	return entries
}

func TestClampTimeLimit(t *testing.T) {
	r := newTestRunner(t, &fakeEngine{})
	cases := []struct {
		in   time.Duration
		want time.Duration
	}{
		{0, 5 * time.Second},
		{-time.Second, 5 * time.Second},
		{2 * time.Second, 2 * time.Second},
		{30 * time.Second, 10 * time.Second},
	}
	for _, tc := range cases {
		if got := r.ClampTimeLimit(tc.in); got != tc.want {
			t.Fatalf("clamp(%v): expected %v, got %v", tc.in, tc.want, got)
		}
	}
}

func TestExecuteInterpretedSuccess(t *testing.T) {
	eng := &fakeEngine{results: []result.RunResult{{ExitCode: 0, Stdout: "5\n", WallTime: 30 * time.Millisecond}}}
	r := newTestRunner(t, eng)

	out := r.Execute(context.Background(), Request{Code: "print(5)", Language: "python", Stdin: "2 3\n", TimeLimit: 2 * time.Second})
	if out.Verdict != result.VerdictSuccess || !out.ExitSucceeded || out.Stdout != "5\n" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if len(eng.specs) != 1 {
		t.Fatalf("expected only a run step, got %d", len(eng.specs))
	}
	if eng.specs[0].Limits.WallTimeMs != 2000 {
		t.Fatalf("expected 2000ms wall limit, got %d", eng.specs[0].Limits.WallTimeMs)
	}
	if eng.stdins[0] != "2 3\n" {
		t.Fatalf("expected stdin delivered, got %q", eng.stdins[0])
	}
	if len(workspaceEntries(t, r)) != 0 {
		t.Fatalf("expected workspace removed")
	}
}

func TestExecuteTimeoutReportsLimit(t *testing.T) {
	eng := &fakeEngine{results: []result.RunResult{{TimedOut: true, ExitCode: -1, Stdout: "partial", WallTime: 2100 * time.Millisecond}}}
	r := newTestRunner(t, eng)

	out := r.Execute(context.Background(), Request{Code: "while True: pass", Language: "python", TimeLimit: 2 * time.Second})
	if out.Verdict != result.VerdictTimeLimitExceeded {
		t.Fatalf("expected time limit exceeded, got %s", out.Verdict)
	}
	if out.Elapsed != 2*time.Second || out.Stdout != "" {
		t.Fatalf("expected elapsed at limit and empty output, got %+v", out)
	}
	if out.ErrorText() != "Time limit exceeded (2s)" {
		t.Fatalf("unexpected error text: %q", out.ErrorText())
	}
}

func TestExecuteClampsRequestedLimit(t *testing.T) {
	eng := &fakeEngine{results: []result.RunResult{{TimedOut: true}}}
	r := newTestRunner(t, eng)

	out := r.Execute(context.Background(), Request{Code: "x", Language: "python", TimeLimit: time.Minute})
	if eng.specs[0].Limits.WallTimeMs != 10000 {
		t.Fatalf("expected clamped 10s limit, got %dms", eng.specs[0].Limits.WallTimeMs)
	}
	if out.Elapsed != 10*time.Second {
		t.Fatalf("expected elapsed equal to clamped limit, got %v", out.Elapsed)
	}
}

func TestExecuteRuntimeError(t *testing.T) {
	eng := &fakeEngine{results: []result.RunResult{{ExitCode: 1, Stderr: "Traceback: ZeroDivisionError", WallTime: time.Millisecond}}}
	r := newTestRunner(t, eng)

	out := r.Execute(context.Background(), Request{Code: "1/0", Language: "python"})
	if out.Verdict != result.VerdictRuntimeError || out.ExitSucceeded {
		t.Fatalf("expected runtime error, got %+v", out)
	}
	if !strings.Contains(out.ErrorText(), "ZeroDivisionError") {
		t.Fatalf("expected stderr in error text, got %q", out.ErrorText())
	}
}

func TestCompilationErrorSkipsRun(t *testing.T) {
	eng := &fakeEngine{results: []result.RunResult{{ExitCode: 1, Stderr: "solution.cpp:1: error: expected ';'"}}}
	r := newTestRunner(t, eng)

	out := r.Execute(context.Background(), Request{Code: "int main() {", Language: "cpp"})
	if out.Verdict != result.VerdictCompilationError {
		t.Fatalf("expected compilation error, got %s", out.Verdict)
	}
	if len(eng.specs) != 1 {
		t.Fatalf("expected nothing to run after a failed compile, got %d engine calls", len(eng.specs))
	}
	if eng.specs[0].Limits.WallTimeMs != 10000 {
		t.Fatalf("expected 10s compile ceiling, got %dms", eng.specs[0].Limits.WallTimeMs)
	}
	if len(workspaceEntries(t, r)) != 0 {
		t.Fatalf("expected workspace removed")
	}
}

func TestCompileTimeout(t *testing.T) {
	eng := &fakeEngine{results: []result.RunResult{{TimedOut: true}}}
	r := newTestRunner(t, eng)

	out := r.Execute(context.Background(), Request{Code: "template hell", Language: "cpp"})
	if out.Verdict != result.VerdictCompilationError || out.Stderr != "Compilation timeout" {
		t.Fatalf("expected compile timeout, got %+v", out)
	}
}

func TestEngineFailureBecomesInfraError(t *testing.T) {
	eng := &fakeEngine{errs: []error{errors.New("fork failed")}}
	r := newTestRunner(t, eng)

	out := r.Execute(context.Background(), Request{Code: "print(1)", Language: "python"})
	if out.Verdict != result.VerdictInfraError || out.Stderr != "fork failed" {
		t.Fatalf("expected infra error, got %+v", out)
	}
}

func TestUnsupportedLanguageBecomesInfraError(t *testing.T) {
	eng := &fakeEngine{}
	r := newTestRunner(t, eng)

	out := r.Execute(context.Background(), Request{Code: "fn main() {}", Language: "rust"})
	if out.Verdict != result.VerdictInfraError {
		t.Fatalf("expected infra error, got %s", out.Verdict)
	}
	if len(eng.specs) != 0 {
		t.Fatalf("expected engine untouched")
	}
}

func TestJavaSessionCompilesOnce(t *testing.T) {
	eng := &fakeEngine{results: []result.RunResult{
		{ExitCode: 0},
		{ExitCode: 0, Stdout: "a"},
		{ExitCode: 0, Stdout: "b"},
	}}
	r := newTestRunner(t, eng)
	code := "public class Sum { public static void main(String[] a) {} }"

	session, out := r.Prepare(context.Background(), code, "java")
	if session == nil {
		t.Fatalf("expected session, got %+v", out)
	}
	if _, err := os.Stat(filepath.Join(session.dir, "Sum.java")); err != nil {
		t.Fatalf("expected Sum.java in workspace: %v", err)
	}
	first := session.Run(context.Background(), "1", Limits{Time: time.Second})
	second := session.Run(context.Background(), "2", Limits{Time: time.Second})
	session.Close()
	session.Close()

	if first.Stdout != "a" || second.Stdout != "b" {
		t.Fatalf("unexpected outputs: %q %q", first.Stdout, second.Stdout)
	}
	if len(eng.specs) != 3 || eng.specs[0].Cmd[0] != "javac" {
		t.Fatalf("expected one javac call followed by two runs, got %+v", eng.specs)
	}
	if last := eng.specs[2].Cmd; last[len(last)-1] != "Sum" {
		t.Fatalf("expected run of class Sum, got %v", last)
	}
	if _, err := os.Stat(session.dir); !os.IsNotExist(err) {
		t.Fatalf("expected workspace removed, got %v", err)
	}
	if out := session.Run(context.Background(), "3", Limits{}); out.Verdict != result.VerdictInfraError {
		t.Fatalf("expected closed session to fail, got %s", out.Verdict)
	}
}

func TestTimeMultiplierStretchesLimit(t *testing.T) {
	reg, err := profile.NewRegistry(map[string]profile.Toolchain{"python": {TimeMultiplier: 1.5}})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	eng := &fakeEngine{results: []result.RunResult{{TimedOut: true}}}
	r, err := NewRunner(eng, reg, nil, Config{WorkRoot: t.TempDir()})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	out := r.Execute(context.Background(), Request{Code: "x", Language: "python", TimeLimit: 2 * time.Second})
	if eng.specs[0].Limits.WallTimeMs != 3000 || out.Elapsed != 3*time.Second {
		t.Fatalf("expected 3s effective limit, got %dms %v", eng.specs[0].Limits.WallTimeMs, out.Elapsed)
	}
}

func TestRunPastLimitIsTimeLimitExceeded(t *testing.T) {
	cases := []struct {
		name string
		res  result.RunResult
		want result.Verdict
	}{
		{"exited just after deadline", result.RunResult{ExitCode: 0, Stdout: "5\n", WallTime: 2*time.Second + 5*time.Millisecond}, result.VerdictTimeLimitExceeded},
		{"one nanosecond over", result.RunResult{ExitCode: 0, WallTime: 2*time.Second + time.Nanosecond}, result.VerdictTimeLimitExceeded},
		{"cpu rlimit signal", result.RunResult{ExitCode: -1, CPUExceeded: true, WallTime: time.Second}, result.VerdictTimeLimitExceeded},
		{"exactly at limit", result.RunResult{ExitCode: 0, Stdout: "5\n", WallTime: 2 * time.Second}, result.VerdictSuccess},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			eng := &fakeEngine{results: []result.RunResult{tc.res}}
			r := newTestRunner(t, eng)

			out := r.Execute(context.Background(), Request{Code: "x", Language: "python", TimeLimit: 2 * time.Second})
			if out.Verdict != tc.want {
				t.Fatalf("expected %s, got %+v", tc.want, out)
			}
			if out.Elapsed > 2*time.Second {
				t.Fatalf("expected elapsed capped at limit, got %v", out.Elapsed)
			}
			if tc.want == result.VerdictTimeLimitExceeded && (out.Stdout != "" || out.ErrorText() != "Time limit exceeded (2s)") {
				t.Fatalf("expected bare timeout outcome, got %+v", out)
			}
		})
	}
}

func TestRunGivesCPULimitHeadroom(t *testing.T) {
	eng := &fakeEngine{results: []result.RunResult{{ExitCode: 0}, {ExitCode: 0}}}
	r := newTestRunner(t, eng)

	r.Execute(context.Background(), Request{Code: "public class Main {}", Language: "java", TimeLimit: 2 * time.Second})
	if len(eng.specs) != 2 {
		t.Fatalf("expected compile and run, got %d engine calls", len(eng.specs))
	}
	if got := eng.specs[0].Limits.CPUTimeMs; got != 21000 {
		t.Fatalf("expected 21000ms compile cpu budget, got %d", got)
	}
	run := eng.specs[1].Limits
	if run.WallTimeMs != 2000 || run.CPUTimeMs != 5000 {
		t.Fatalf("expected 2000ms wall and 5000ms cpu, got %d and %d", run.WallTimeMs, run.CPUTimeMs)
	}
}

func TestTruncatedOutputIsRuntimeError(t *testing.T) {
	eng := &fakeEngine{results: []result.RunResult{{ExitCode: 0, Stdout: "aaaa", OutputTruncated: true, WallTime: time.Millisecond}}}
	r := newTestRunner(t, eng)

	out := r.Execute(context.Background(), Request{Code: "x", Language: "python", TimeLimit: time.Second})
	if out.Verdict != result.VerdictRuntimeError || out.ExitSucceeded {
		t.Fatalf("expected runtime error, got %+v", out)
	}
	if out.ErrorText() != "Output limit exceeded" {
		t.Fatalf("unexpected error text: %q", out.ErrorText())
	}
}
