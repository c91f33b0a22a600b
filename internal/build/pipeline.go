package build

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/HELIXFACTORY/internal/agentcontract"
	"github.com/HELIXFACTORY/internal/classify"
	"github.com/HELIXFACTORY/internal/llm"
)

// maxCompileRepairs is how many times the pipeline asks the LLM to fix
// a compile error before giving up on this task.
const maxCompileRepairs = 2

// maxPackageVerifyAttempts is the total number of package+verify
// attempts (the first plus up to 2 retries) before the pipeline fails.
const maxPackageVerifyAttempts = 3

// packageVerifyBackoff is the minimum pause between package+verify
// retries.
const packageVerifyBackoff = time.Second

// MemoryContext is the subset of the memory manager the pipeline
// needs for context-biased generation. Declared as an interface here
// (rather than importing internal/memory directly) so the pipeline's
// dependency graph stays one-directional and testable with a stub.
type MemoryContext interface {
	ContextForSubagentPrompt(taskText, class string) (string, error)
}

// Status is where a pipeline run ended up.
type Status string

const (
	StatusDone   Status = "done"
	StatusFailed Status = "failed"
)

// Outcome is the pipeline's final result for one task.
type Outcome struct {
	Status      Status
	RawTask     string
	RefinedTask string
	Class       classify.Class
	ImageTag    string
	Source      string // "built" (first attempt) or "repaired" (after a compile fix)
	ErrorText   string
}

// Config bundles the per-stage timeouts spec §5 assigns to the build
// pipeline. The retry budgets are the fixed constants above.
type Config struct {
	RefineTimeout  time.Duration
	GenTimeout     time.Duration
	CompileTimeout time.Duration
	PackageTimeout time.Duration
	VerifyTimeout  time.Duration
}

// compilerIface is the seam between the pipeline and *Compiler, so
// tests can drive the compile-repair loop with a fake.
type compilerIface interface {
	Compile(ctx context.Context, source string) ([]byte, error)
}

// packagerIface is the seam between the pipeline and *Packager.
type packagerIface interface {
	Package(ctx context.Context, binary []byte, meta ImageMetadata) (string, error)
}

// verifierIface is the seam between the pipeline and *Verifier.
type verifierIface interface {
	Verify(ctx context.Context, imageTag string) error
}

// Pipeline runs the Refine -> Classify -> Generate -> Compile(repair
// loop) -> Package -> Verify(retry loop) -> Done|Failed state machine
// for a single task. A Pipeline instance is sequential; run multiple
// concurrently for parallel builds (the orchestrator owns that cap).
type Pipeline struct {
	provider llm.Provider
	compiler compilerIface
	packager packagerIface
	verifier verifierIface
	memory   MemoryContext
	cfg      Config
}

// NewPipeline wires a pipeline instance. memory may be nil to disable
// context-biased generation entirely.
func NewPipeline(provider llm.Provider, compiler *Compiler, packager *Packager, verifier *Verifier, memory MemoryContext, cfg Config) *Pipeline {
	return &Pipeline{
		provider: provider,
		compiler: compiler,
		packager: packager,
		verifier: verifier,
		memory:   memory,
		cfg:      cfg,
	}
}

// Run drives one task through the full pipeline.
func (p *Pipeline) Run(ctx context.Context, rawTask string) Outcome {
	refined := p.refine(ctx, rawTask)
	classResult := classify.Classify(refined)

	source, err := p.generate(ctx, refined, classResult)
	if err != nil {
		return p.failed(rawTask, refined, classResult.Class, err)
	}

	binary, genSource, repaired, err := p.compileWithRepair(ctx, source)
	if err != nil {
		return p.failed(rawTask, refined, classResult.Class, err)
	}
	_ = genSource

	imageTag, err := p.packageAndVerify(ctx, binary, classResult, refined)
	if err != nil {
		return p.failed(rawTask, refined, classResult.Class, err)
	}

	sourceLabel := "built"
	if repaired {
		sourceLabel = "repaired"
	}
	return Outcome{
		Status:      StatusDone,
		RawTask:     rawTask,
		RefinedTask: refined,
		Class:       classResult.Class,
		ImageTag:    imageTag,
		Source:      sourceLabel,
	}
}

func (p *Pipeline) failed(rawTask, refined string, class classify.Class, err error) Outcome {
	return Outcome{
		Status:      StatusFailed,
		RawTask:     rawTask,
		RefinedTask: refined,
		Class:       class,
		ErrorText:   err.Error(),
	}
}

// refine asks the LLM to rewrite the raw task as a precise,
// unambiguous task spec. A failure here is non-fatal: the raw task is
// used unchanged.
func (p *Pipeline) refine(ctx context.Context, rawTask string) string {
	prompt := "Rewrite the following user request as a precise, unambiguous task specification. " +
		"Respond with only the rewritten task text, nothing else.\n\nRequest: " + rawTask
	text, err := p.provider.Complete(ctx, prompt, p.cfg.RefineTimeout)
	if err != nil {
		return rawTask
	}
	refined := strings.TrimSpace(text)
	if refined == "" {
		return rawTask
	}
	return refined
}

// generate assembles the class-specific prompt (schema, credentials,
// memory context) and asks the LLM for agent source.
func (p *Pipeline) generate(ctx context.Context, refinedTask string, classResult classify.Result) (string, error) {
	var preamble string
	if p.memory != nil {
		if rendered, err := p.memory.ContextForSubagentPrompt(refinedTask, string(classResult.Class)); err == nil {
			preamble = rendered
		}
	}

	prompt := p.buildGeneratePrompt(refinedTask, classResult, preamble)
	text, err := p.provider.Complete(ctx, prompt, p.cfg.GenTimeout)
	if err != nil {
		return "", fmt.Errorf("generate failed: %w", err)
	}
	return text, nil
}

func (p *Pipeline) buildGeneratePrompt(refinedTask string, classResult classify.Result, preamble string) string {
	var b strings.Builder
	if preamble != "" {
		b.WriteString(preamble)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Generate a single-file Go program implementing a %q-class agent for this task:\n%s\n\n", classResult.Class, refinedTask)

	schema := agentcontract.Schemas[classResult.Class]
	b.WriteString("The program MUST:\n")
	b.WriteString("- read exactly one positional command-line argument: the task text.\n")
	envVars := agentcontract.RequiredEnvFor(classResult.RequiredCredentials)
	if len(envVars) > 0 {
		fmt.Fprintf(&b, "- read credentials only from these environment variables: %s.\n", strings.Join(envVars, ", "))
	}
	b.WriteString("- emit exactly one JSON object to standard output with these fields:\n")
	for _, f := range schema.Fields {
		fmt.Fprintf(&b, "  - %s: %s\n", f.Name, f.Description)
	}
	b.WriteString("- on any internal error, emit a JSON object {\"error\": \"...\"} instead.\n")
	b.WriteString("- use an HTTP client timeout of 120 seconds for any outbound request.\n")
	b.WriteString("- depend only on the Go standard library.\n")
	b.WriteString("\nRespond with only the Go source code.\n")
	return b.String()
}

// compileWithRepair compiles source, and on failure asks the LLM to
// fix the reported error and recompiles, up to maxCompileRepairs times.
func (p *Pipeline) compileWithRepair(ctx context.Context, source string) (binary []byte, finalSource string, repaired bool, err error) {
	current := source
	for attempt := 0; attempt <= maxCompileRepairs; attempt++ {
		compileCtx, cancel := context.WithTimeout(ctx, p.cfg.CompileTimeout)
		binary, err = p.compiler.Compile(compileCtx, current)
		cancel()
		if err == nil {
			return binary, current, attempt > 0, nil
		}
		if attempt == maxCompileRepairs {
			break
		}

		repairPrompt := fmt.Sprintf(
			"The following Go program failed to compile with this error:\n\n%s\n\nFix the program. Respond with only the corrected Go source code.\n\n%s",
			err.Error(), current,
		)
		fixed, repairErr := p.provider.Complete(ctx, repairPrompt, p.cfg.GenTimeout)
		if repairErr != nil {
			return nil, current, true, fmt.Errorf("compile failed and repair call failed: %w (compile error: %v)", repairErr, err)
		}
		current = fixed
	}
	return nil, current, true, fmt.Errorf("compile failed after %d repair attempts: %w", maxCompileRepairs, err)
}

// packageAndVerify packages the binary and verifies the resulting
// image, retrying the same binary (rebuilt under a fresh timestamped
// name each attempt, per the ordering rule) up to
// maxPackageVerifyAttempts times with a backoff between attempts.
func (p *Pipeline) packageAndVerify(ctx context.Context, binary []byte, classResult classify.Result, refinedTask string) (string, error) {
	meta := ImageMetadata{
		Class:        string(classResult.Class),
		Task:         refinedTask,
		Capabilities: []string{"generated"},
	}

	var lastErr error
	for attempt := 1; attempt <= maxPackageVerifyAttempts; attempt++ {
		if attempt > 1 {
			time.Sleep(packageVerifyBackoff)
		}

		packageCtx, cancel := context.WithTimeout(ctx, p.cfg.PackageTimeout)
		imageTag, err := p.packager.Package(packageCtx, binary, meta)
		cancel()
		if err != nil {
			lastErr = fmt.Errorf("package attempt %d/%d failed: %w", attempt, maxPackageVerifyAttempts, err)
			continue
		}

		verifyCtx, verifyCancel := context.WithTimeout(ctx, p.cfg.VerifyTimeout)
		err = p.verifier.Verify(verifyCtx, imageTag)
		verifyCancel()
		if err != nil {
			lastErr = fmt.Errorf("verify attempt %d/%d failed: %w", attempt, maxPackageVerifyAttempts, err)
			continue
		}

		return imageTag, nil
	}
	return "", lastErr
}
