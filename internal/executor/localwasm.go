package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// LocalWASMExecutor runs a WASM module directly through a local
// runtime CLI (e.g. wasmtime), the fallback path when no worker in
// the NATS pool answers a WASMExecutor.Ping.
type LocalWASMExecutor struct {
	runtimeBin string
}

// NewLocalWASMExecutor wraps the given WASM runtime CLI binary name.
func NewLocalWASMExecutor(runtimeBin string) *LocalWASMExecutor {
	if runtimeBin == "" {
		runtimeBin = "wasmtime"
	}
	return &LocalWASMExecutor{runtimeBin: runtimeBin}
}

// Run invokes `<runtime> <ref> -- <taskText>`, matching the argument
// convention of the pooled WASM path exactly so a caller can fall back
// transparently. ref is a path to the .wasm file on local disk.
func (e *LocalWASMExecutor) Run(ctx context.Context, ref string, taskText string, credentials map[string]string) (Result, error) {
	cmd := exec.CommandContext(ctx, e.runtimeBin, ref, "--", taskText)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	result := Result{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		DurationMS: duration.Milliseconds(),
	}

	if err == nil {
		result.ExitCode = 0
		result.Success = true
		return result, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		result.Success = false
		result.Error = stderr.String()
		if result.Error == "" {
			result.Error = fmt.Sprintf("exit code: %d", result.ExitCode)
		}
		return result, nil
	}

	if errors.Is(err, exec.ErrNotFound) {
		return Result{Success: false, Error: fmt.Sprintf("%s not installed", e.runtimeBin)}, nil
	}

	return result, fmt.Errorf("failed to run local wasm executor: %w", err)
}
