// Package orchestrator implements the top-level controller that
// routes one incoming task through search, optional build, execution,
// and memory finalization.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/HELIXFACTORY/internal/build"
	"github.com/HELIXFACTORY/internal/classify"
	"github.com/HELIXFACTORY/internal/executor"
	"github.com/HELIXFACTORY/internal/memory"
	"github.com/HELIXFACTORY/internal/metrics"
	"github.com/HELIXFACTORY/internal/registry"
)

// ExecutionResult is the orchestrator's return structure for one task,
// per spec §4.1: {reference, stdout, stderr, exit_code, duration_ms, source}.
type ExecutionResult struct {
	Reference  string
	Stdout     string
	Stderr     string
	ExitCode   int
	DurationMS int64
	Source     string // "memory", "registry", or "built"
}

// Config bundles the orchestrator's own timeouts (spec §5: "execute =
// 300s default, WASM executor = 30s") and the concurrent-build cap
// (spec §5's back-pressure: "caps concurrent builds, default 4;
// excess tasks queue").
type Config struct {
	ExecuteTimeout     time.Duration
	WASMTimeout        time.Duration
	MaxConcurrentBuild int
}

// Orchestrator is the single entry point: Run(task_text) → ExecutionResult.
// A single Orchestrator instance is safe to call Run on concurrently:
// memory and the build-concurrency semaphore are the only shared
// state, and both are already internally synchronized.
type Orchestrator struct {
	memory        *memory.Manager
	registry      *registry.Unified
	pipeline      *build.Pipeline
	containerExec executor.Executor
	wasmExec      *executor.WASMExecutor
	localWasmExec executor.Executor
	cfg           Config
	buildSlots    chan struct{}
}

// New wires an orchestrator. localWasmExec and wasmExec may both be
// nil if this deployment only serves container agents.
func New(mem *memory.Manager, reg *registry.Unified, pipeline *build.Pipeline,
	containerExec executor.Executor, wasmExec *executor.WASMExecutor, localWasmExec executor.Executor, cfg Config) *Orchestrator {
	if cfg.ExecuteTimeout <= 0 {
		cfg.ExecuteTimeout = 300 * time.Second
	}
	if cfg.WASMTimeout <= 0 {
		cfg.WASMTimeout = 30 * time.Second
	}
	if cfg.MaxConcurrentBuild <= 0 {
		cfg.MaxConcurrentBuild = 4
	}
	return &Orchestrator{
		memory:        mem,
		registry:      reg,
		pipeline:      pipeline,
		containerExec: containerExec,
		wasmExec:      wasmExec,
		localWasmExec: localWasmExec,
		cfg:           cfg,
		buildSlots:    make(chan struct{}, cfg.MaxConcurrentBuild),
	}
}

// Run drives one task end to end: start_task → search (episodic
// memory, then registry) → build on miss → execute → complete_task →
// opportunistic lifecycle pass.
func (o *Orchestrator) Run(ctx context.Context, rawTask string) (ExecutionResult, error) {
	o.memory.StartTask(rawTask)

	ref, rt, source, classResult, err := o.locate(ctx, rawTask)
	if err != nil {
		o.finalizeFailure(err.Error())
		return ExecutionResult{}, err
	}

	if cur := o.memory.Working.Current(); cur != nil {
		cur.Class = string(classResult.Class)
	}

	timeout := o.cfg.ExecuteTimeout
	if rt == registry.RuntimeWASM {
		timeout = o.cfg.WASMTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := o.execute(execCtx, ref, rt, rawTask, classResult)
	if err != nil {
		o.finalizeFailure(err.Error())
		return ExecutionResult{}, err
	}

	outcome := memory.OutcomeFailure
	if result.Success {
		outcome = memory.OutcomeSuccess
	}
	summary := truncate(result.Stdout, 500)
	if _, err := o.memory.CompleteTask(outcome, summary, result.Error, ref, result.DurationMS, nil); err != nil {
		log.Printf("[ORCH] failed to finalize task: %v", err)
	}
	o.memory.MaybeRunLifecycle()

	return ExecutionResult{
		Reference:  ref,
		Stdout:     result.Stdout,
		Stderr:     result.Stderr,
		ExitCode:   result.ExitCode,
		DurationMS: result.DurationMS,
		Source:     source,
	}, nil
}

// locate implements steps 2-4 of §4.1: registry search, episodic
// memory-hit preference, and build-on-miss.
func (o *Orchestrator) locate(ctx context.Context, rawTask string) (ref string, rt registry.Runtime, source string, classResult classify.Result, err error) {
	if recalled, recallErr := o.memory.Recall(rawTask, 1); recallErr == nil && len(recalled) > 0 {
		top := recalled[0]
		if top.Outcome == memory.OutcomeSuccess && top.Reference != "" {
			return top.Reference, registry.RuntimeContainer, "memory", classify.Classify(top.RefinedTask), nil
		}
	}

	if o.registry != nil {
		results, searchErr := o.registry.Search(rawTask, "")
		if searchErr != nil {
			log.Printf("[ORCH] registry search failed, falling through to build: %v", searchErr)
		} else if len(results) > 0 {
			top := results[0]
			return top.ArtifactRef, top.Runtime, "registry", classify.Classify(rawTask), nil
		}
	}

	if o.pipeline == nil {
		return "", "", "", classify.Result{}, fmt.Errorf("no registry match and no build pipeline configured")
	}

	select {
	case o.buildSlots <- struct{}{}:
	case <-ctx.Done():
		return "", "", "", classify.Result{}, ctx.Err()
	}
	metrics.ConcurrentBuilds.Inc()
	defer func() {
		<-o.buildSlots
		metrics.ConcurrentBuilds.Dec()
	}()

	outcome := o.pipeline.Run(ctx, rawTask)
	if outcome.Status != build.StatusDone {
		metrics.BuildStagesTotal.WithLabelValues("pipeline", "failed").Inc()
		return "", "", "", classify.Result{}, fmt.Errorf("build pipeline failed: %s", outcome.ErrorText)
	}
	metrics.BuildStagesTotal.WithLabelValues("pipeline", outcome.Source).Inc()
	return outcome.ImageTag, registry.RuntimeContainer, "built", classify.Classify(outcome.RefinedTask), nil
}

// execute dispatches to the runtime-appropriate executor. WASM
// artifacts prefer the pooled path and ping first to avoid a wasted
// timeout against an empty worker pool, falling back to a local
// runtime CLI when no worker answers.
func (o *Orchestrator) execute(ctx context.Context, ref string, rt registry.Runtime, taskText string, classResult classify.Result) (executor.Result, error) {
	if rt == registry.RuntimeWASM {
		if o.wasmExec != nil && o.wasmExec.Ping(ctx) {
			return o.wasmExec.Run(ctx, ref, taskText, nil)
		}
		if o.localWasmExec != nil {
			return o.localWasmExec.Run(ctx, ref, taskText, nil)
		}
		return executor.Result{}, fmt.Errorf("no wasm executor available for %s", ref)
	}

	if o.containerExec == nil {
		return executor.Result{}, fmt.Errorf("no container executor configured")
	}
	return o.containerExec.Run(ctx, ref, taskText, resolveCredentials(classResult.RequiredCredentials))
}

func (o *Orchestrator) finalizeFailure(errorText string) {
	if _, err := o.memory.CompleteTask(memory.OutcomeFailure, "", errorText, "", 0, nil); err != nil {
		log.Printf("[ORCH] failed to record task failure: %v", err)
	}
}

// resolveCredentials reads the actual secret values for the env var
// names a class is allowed to use, from this process's environment.
// Names absent from the environment are simply omitted.
func resolveCredentials(names []string) map[string]string {
	creds := make(map[string]string, len(names))
	for _, name := range names {
		if v, ok := os.LookupEnv(name); ok {
			creds[name] = v
		}
	}
	return creds
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
