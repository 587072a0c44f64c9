//go:build linux

// Command sandbox-init applies resource limits and an optional syscall filter
// to itself and then execs the submitted program in place.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"edujudge/internal/judge/sandbox/engine"
	"edujudge/internal/judge/sandbox/spec"

	"golang.org/x/sys/unix"
)

// exitSetupFailed must match the engine's helper failure code.
const exitSetupFailed = 126

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(exitSetupFailed)
	}
}

func run() error {
	req, err := decodeRequest(os.Stdin)
	if err != nil {
		return err
	}
	rs := req.RunSpec
	if len(rs.Cmd) == 0 {
		return fmt.Errorf("command is required")
	}
	if rs.WorkDir == "" {
		return fmt.Errorf("work dir is required")
	}

	if err := os.Chdir(rs.WorkDir); err != nil {
		return fmt.Errorf("chdir workdir: %w", err)
	}
	if err := applyRlimits(rs.Limits, req.EnforceMemory); err != nil {
		return err
	}

	// Resolve before the filter is loaded and before stderr is redirected.
	cmdPath, err := exec.LookPath(rs.Cmd[0])
	if err != nil {
		return fmt.Errorf("resolve command: %w", err)
	}
	if req.SeccompProfile != "" {
		if err := applySeccomp(req.SeccompProfile); err != nil {
			return err
		}
	}
	if err := redirectIO(rs); err != nil {
		return err
	}
	return unix.Exec(cmdPath, rs.Cmd, buildEnv(rs.Env))
}

func decodeRequest(r io.Reader) (engine.InitRequest, error) {
	var req engine.InitRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return engine.InitRequest{}, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

func applyRlimits(limits spec.ResourceLimit, enforceMemory bool) error {
	set := func(resource int, value uint64, name string) error {
		if err := unix.Setrlimit(resource, &unix.Rlimit{Cur: value, Max: value}); err != nil {
			return fmt.Errorf("set rlimit %s: %w", name, err)
		}
		return nil
	}
	if limits.CPUTimeMs > 0 {
		if err := set(unix.RLIMIT_CPU, uint64((limits.CPUTimeMs+999)/1000), "cpu"); err != nil {
			return err
		}
	}
	if limits.OutputMB > 0 {
		if err := set(unix.RLIMIT_FSIZE, uint64(limits.OutputMB)<<20, "fsize"); err != nil {
			return err
		}
	}
	if limits.StackMB > 0 {
		if err := set(unix.RLIMIT_STACK, uint64(limits.StackMB)<<20, "stack"); err != nil {
			return err
		}
	}
	if limits.PIDs > 0 {
		if err := set(unix.RLIMIT_NPROC, uint64(limits.PIDs), "nproc"); err != nil {
			return err
		}
	}
	if enforceMemory && limits.MemoryMB > 0 {
		if err := set(unix.RLIMIT_AS, uint64(limits.MemoryMB)<<20, "as"); err != nil {
			return err
		}
	}
	return nil
}

func redirectIO(rs spec.RunSpec) error {
	type target struct {
		path  string
		fd    int
		write bool
	}
	targets := []target{
		{rs.StdinPath, 0, false},
		{rs.StdoutPath, 1, true},
		{rs.StderrPath, 2, true},
	}
	for _, tgt := range targets {
		path := tgt.path
		if path == "" {
			path = os.DevNull
		} else if !filepath.IsAbs(path) {
			path = filepath.Join(rs.WorkDir, path)
		}
		var (
			f   *os.File
			err error
		)
		if tgt.write {
			f, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		} else {
			f, err = os.Open(path)
		}
		if err != nil {
			return fmt.Errorf("open fd %d: %w", tgt.fd, err)
		}
		if err := unix.Dup2(int(f.Fd()), tgt.fd); err != nil {
			_ = f.Close()
			return fmt.Errorf("dup fd %d: %w", tgt.fd, err)
		}
		_ = f.Close()
	}
	return nil
}

func buildEnv(env []string) []string {
	if len(env) > 0 {
		return env
	}
	return []string{"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"}
}
