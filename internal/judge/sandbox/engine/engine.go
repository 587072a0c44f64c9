package engine

import (
	"context"

	"edujudge/internal/judge/sandbox/result"
	"edujudge/internal/judge/sandbox/spec"
)

const defaultOutputMaxBytes int64 = 8 << 20

// Engine executes a RunSpec as an isolated process group.
// A returned error means the engine itself failed; program failures live in RunResult.
type Engine interface {
	Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error)
}

// Config controls sandbox engine behavior.
type Config struct {
	// HelperPath points to the sandbox-init binary. Empty runs programs directly.
	HelperPath string
	// SeccompProfile is a JSON syscall policy applied by the helper.
	SeccompProfile string
	EnableSeccomp  bool

	// EnforceMemory turns the advisory memory limit into a hard one
	// (RLIMIT_AS in the helper, memory.max with cgroups).
	EnforceMemory bool
	EnableCgroup  bool
	CgroupRoot    string

	OutputMaxBytes int64
}

// InitRequest is sent to the sandbox-init helper as JSON on its stdin.
type InitRequest struct {
	RunSpec        spec.RunSpec `json:"runSpec"`
	EnforceMemory  bool         `json:"enforceMemory"`
	SeccompProfile string       `json:"seccompProfile,omitempty"`
}
