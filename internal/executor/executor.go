// Package executor runs a built agent reference (container image or
// WASM module) against task text and captures its result. Container
// artifacts run via a local container runtime; WASM artifacts dispatch
// over a pub/sub request/reply channel to a worker pool, with a local
// CLI fallback when no workers are reachable.
package executor

import "context"

// Result is what every Executor implementation returns: raw process
// output plus the orchestrator's derived success flag. Non-zero exit
// is a failure, but stdout is preserved whenever the process managed
// to emit something — a crash after partial JSON output is still
// useful to record.
type Result struct {
	Stdout     string
	Stderr     string
	ExitCode   int
	DurationMS int64
	Success    bool
	Error      string
}

// Executor runs one artifact reference against one task. credentials
// maps environment variable names to values the caller has already
// resolved; the executor forwards every entry it is given.
type Executor interface {
	Run(ctx context.Context, ref string, taskText string, credentials map[string]string) (Result, error)
}
