// Package spec defines the execution specification and resource limits.
package spec

// ResourceLimit describes the limits attached to one execution.
// MemoryMB is only enforced when the engine is configured to do so.
type ResourceLimit struct {
	WallTimeMs int64
	CPUTimeMs  int64
	MemoryMB   int64
	StackMB    int64
	OutputMB   int64
	PIDs       int64
}

// RunSpec is the unified execution specification for one process tree.
// Paths are relative to WorkDir unless absolute.
type RunSpec struct {
	WorkDir    string
	Cmd        []string
	Env        []string
	StdinPath  string
	StdoutPath string
	StderrPath string
	Limits     ResourceLimit
}
