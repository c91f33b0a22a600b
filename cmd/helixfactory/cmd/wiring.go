package cmd

import (
	"fmt"
	"time"

	"github.com/HELIXFACTORY/internal/build"
	"github.com/HELIXFACTORY/internal/config"
	"github.com/HELIXFACTORY/internal/executor"
	"github.com/HELIXFACTORY/internal/llm"
	"github.com/HELIXFACTORY/internal/memory"
	helixnats "github.com/HELIXFACTORY/internal/nats"
	"github.com/HELIXFACTORY/internal/orchestrator"
	"github.com/HELIXFACTORY/internal/registry"
)

func sec(n int) time.Duration { return time.Duration(n) * time.Second }

// defaultBuilderImage/defaultBaseImage are the toolchain/runtime images
// used when the config file doesn't override them: a TinyGo cross-
// compile sandbox and a distroless static runtime layer, matching the
// generated agents' "depend only on the Go standard library" contract.
const (
	defaultBuilderImage = "tinygo/tinygo:0.31.0"
	defaultBaseImage    = "gcr.io/distroless/static-debian12"
)

// newMemoryManager opens the on-disk memory stores described by cfg.
func newMemoryManager(cfg *config.Config) (*memory.Manager, error) {
	mgr, err := memory.NewManager(memory.Config{
		DBDir:                cfg.Memory.DBPath,
		KeychainService:      cfg.Memory.KeychainService,
		KeyEnv:               cfg.Memory.KeyEnv,
		PassiveBufferMinutes: cfg.Memory.PassiveBufferMin,
		RetentionDays:        cfg.Memory.RetentionDays,
		LifecycleIntervalMin: cfg.Memory.LifecycleIntervalMin,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open memory manager: %w", err)
	}
	return mgr, nil
}

// newRegistry wires both registry backends. The container catalog is
// not enumerated here (no catalog-sync process is modeled by this
// spec); container search participates only once a name/tag source is
// configured, exactly as NewUnified's own doc comment describes.
func newRegistry(cfg *config.Config) (*registry.Unified, error) {
	wasmBackend, err := registry.NewWASMBackend(cfg.Registry.WASMRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to open wasm registry: %w", err)
	}
	containerBackend := registry.NewContainerBackend(cfg.Registry.ContainerURL, sec(cfg.Registry.ManifestCacheTTLS))
	return registry.NewUnified(containerBackend, wasmBackend, nil, "latest", cfg.Registry.TieBreakMargin), nil
}

// newPipeline wires a build pipeline against cfg, biased by mem's
// episodic/semantic context when mem is non-nil.
func newPipeline(cfg *config.Config, mem *memory.Manager) *build.Pipeline {
	provider := llm.NewHTTPProvider(cfg.LLM.Endpoint, cfg.LLM.Models, cfg.LLM.APIKeyEnv, cfg.LLM.RatePerSec, cfg.LLM.RateBurst)
	compiler := build.NewCompiler(defaultBuilderImage)
	packager := build.NewPackager(cfg.Registry.ContainerURL, defaultBaseImage)
	verifier := build.NewVerifier()

	var memCtx build.MemoryContext
	if mem != nil {
		memCtx = mem
	}

	return build.NewPipeline(provider, compiler, packager, verifier, memCtx, build.Config{
		RefineTimeout:  sec(cfg.LLM.RefineTimeoutS),
		GenTimeout:     sec(cfg.LLM.GenTimeoutS),
		CompileTimeout: sec(cfg.Build.CompileTimeoutS),
		PackageTimeout: sec(cfg.Build.PackageTimeoutS),
		VerifyTimeout:  sec(cfg.Build.VerifyTimeoutS),
	})
}

// newOrchestrator wires a full orchestrator: memory, registry, build
// pipeline, container executor, and the WASM pooled/local executor
// pair. natsClient may be nil, in which case no pooled WASM executor
// is wired.
func newOrchestrator(cfg *config.Config, mem *memory.Manager, reg *registry.Unified, pipeline *build.Pipeline, natsClient *helixnats.Client) *orchestrator.Orchestrator {
	containerExec := executor.NewContainerExecutor("")
	localWasmExec := executor.NewLocalWASMExecutor(cfg.Executor.LocalWASMRuntime)

	var wasmExec *executor.WASMExecutor
	if natsClient != nil {
		wasmExec = executor.NewWASMExecutor(natsClient, sec(cfg.Executor.WASMTimeoutS))
	}

	return orchestrator.New(mem, reg, pipeline, containerExec, wasmExec, localWasmExec, orchestrator.Config{
		ExecuteTimeout:     sec(cfg.Executor.ExecuteTimeoutS),
		WASMTimeout:        sec(cfg.Executor.WASMTimeoutS),
		MaxConcurrentBuild: cfg.Build.MaxConcurrentBuilds,
	})
}
