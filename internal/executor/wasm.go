package executor

import (
	"context"
	"fmt"
	"time"

	helixnats "github.com/HELIXFACTORY/internal/nats"
)

// WASMExecutor dispatches a task to a pool of WASM workers listening
// on a shared queue-group subject and waits for one reply.
type WASMExecutor struct {
	client         *helixnats.Client
	defaultTimeout time.Duration
}

// NewWASMExecutor wraps an already-connected NATS client. timeout <= 0
// falls back to the 30s default spec §4.5 names.
func NewWASMExecutor(client *helixnats.Client, timeout time.Duration) *WASMExecutor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WASMExecutor{client: client, defaultTimeout: timeout}
}

// Run publishes a WASMTaskMessage and waits for one WASMResultMessage
// reply, up to the executor's timeout. credentials are not forwarded:
// WASM-suitable tasks are, by construction (wasmsuitability.go),
// credential-free.
func (e *WASMExecutor) Run(ctx context.Context, ref string, taskText string, credentials map[string]string) (Result, error) {
	taskID := fmt.Sprintf("%d", time.Now().UnixNano())
	req := helixnats.WASMTaskMessage{
		TaskID: taskID,
		Ref:    ref,
		Input:  taskText,
	}

	var resp helixnats.WASMResultMessage
	start := time.Now()

	timeout := e.defaultTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	err := e.client.RequestJSON(helixnats.SubjectWASMTask, req, &resp, timeout)
	duration := time.Since(start)

	if err != nil {
		return Result{
			DurationMS: duration.Milliseconds(),
			Success:    false,
			Error:      fmt.Sprintf("wasm dispatch failed: %v", err),
		}, nil
	}

	if resp.Error != "" {
		return Result{
			Stdout:     resp.Output,
			DurationMS: duration.Milliseconds(),
			Success:    false,
			Error:      resp.Error,
		}, nil
	}

	return Result{
		Stdout:     resp.Output,
		ExitCode:   0,
		DurationMS: duration.Milliseconds(),
		Success:    true,
	}, nil
}

// Ping checks whether any WASM worker is currently connected, so the
// orchestrator can skip straight to the local fallback instead of
// paying for a full dispatch timeout against an empty pool.
func (e *WASMExecutor) Ping(ctx context.Context) bool {
	var reply helixnats.WASMPingReply
	timeout := 5 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	err := e.client.RequestJSON(helixnats.SubjectWASMPing, helixnats.WASMPingMessage{Timestamp: time.Now()}, &reply, timeout)
	return err == nil && reply.Workers > 0
}
