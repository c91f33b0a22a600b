package build

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/HELIXFACTORY/internal/classify"
)

type fakeProvider struct {
	responses []string
	calls     []string
}

func (f *fakeProvider) Complete(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
	f.calls = append(f.calls, prompt)
	if len(f.responses) == 0 {
		return "", fmt.Errorf("fakeProvider: no more responses queued")
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

type fakeCompiler struct {
	failUntilAttempt int // compile fails on attempts before this (1-indexed)
	attempt          int
}

func (f *fakeCompiler) Compile(ctx context.Context, source string) ([]byte, error) {
	f.attempt++
	if f.attempt < f.failUntilAttempt {
		return nil, fmt.Errorf("syntax error near line 1")
	}
	return []byte("fake-binary:" + source), nil
}

type fakePackager struct {
	tag string
}

func (f *fakePackager) Package(ctx context.Context, binary []byte, meta ImageMetadata) (string, error) {
	return f.tag, nil
}

type fakeVerifier struct {
	err error
}

func (f *fakeVerifier) Verify(ctx context.Context, imageTag string) error {
	return f.err
}

func testConfig() Config {
	return Config{
		RefineTimeout:  time.Second,
		GenTimeout:     time.Second,
		CompileTimeout: time.Second,
		PackageTimeout: time.Second,
		VerifyTimeout:  time.Second,
	}
}

func TestPipelineHappyPath(t *testing.T) {
	provider := &fakeProvider{responses: []string{
		"calculate the 10th fibonacci number", // refine
		"package main\nfunc main() {}",        // generate
	}}
	p := &Pipeline{
		provider: provider,
		compiler: &fakeCompiler{failUntilAttempt: 1},
		packager: &fakePackager{tag: "registry.local/helix-compute-1:latest"},
		verifier: &fakeVerifier{},
		cfg:      testConfig(),
	}

	outcome := p.Run(context.Background(), "calculate fib(10)")
	if outcome.Status != StatusDone {
		t.Fatalf("expected StatusDone, got %s (%s)", outcome.Status, outcome.ErrorText)
	}
	if outcome.Source != "built" {
		t.Errorf("expected source=built on first-try success, got %s", outcome.Source)
	}
	if outcome.ImageTag != "registry.local/helix-compute-1:latest" {
		t.Errorf("unexpected image tag %s", outcome.ImageTag)
	}
}

// TestPipelineSelfHealsOnCompileFailure covers scenario 2: the first
// generated source fails to compile; a second LLM call containing the
// source and error text produces source that compiles on the second
// attempt.
func TestPipelineSelfHealsOnCompileFailure(t *testing.T) {
	provider := &fakeProvider{responses: []string{
		"refined task",
		"package main // broken",
		"package main // fixed",
	}}
	compiler := &fakeCompiler{failUntilAttempt: 2}
	p := &Pipeline{
		provider: provider,
		compiler: compiler,
		packager: &fakePackager{tag: "registry.local/helix-compute-2:latest"},
		verifier: &fakeVerifier{},
		cfg:      testConfig(),
	}

	outcome := p.Run(context.Background(), "calculate fib(11)")
	if outcome.Status != StatusDone {
		t.Fatalf("expected recovery to StatusDone, got %s (%s)", outcome.Status, outcome.ErrorText)
	}
	if outcome.Source != "repaired" {
		t.Errorf("expected source=repaired after a compile fix, got %s", outcome.Source)
	}
	if compiler.attempt != 2 {
		t.Errorf("expected exactly 2 compile attempts, got %d", compiler.attempt)
	}
}

func TestPipelineFailsAfterExhaustingCompileRepairs(t *testing.T) {
	provider := &fakeProvider{responses: []string{
		"refined task",
		"gen-1", "fix-1", "fix-2",
	}}
	compiler := &fakeCompiler{failUntilAttempt: 99} // never succeeds
	p := &Pipeline{
		provider: provider,
		compiler: compiler,
		packager: &fakePackager{},
		verifier: &fakeVerifier{},
		cfg:      testConfig(),
	}

	outcome := p.Run(context.Background(), "an impossible task")
	if outcome.Status != StatusFailed {
		t.Fatalf("expected StatusFailed, got %s", outcome.Status)
	}
	if compiler.attempt != maxCompileRepairs+1 {
		t.Errorf("expected %d total compile attempts (1 + %d repairs), got %d", maxCompileRepairs+1, maxCompileRepairs, compiler.attempt)
	}
}

// TestPipelineVerifyDetectsSegfaultAsTerminal covers scenario 3:
// verify failing on every attempt exhausts the package+verify retry
// budget and fails the whole pipeline.
func TestPipelineVerifyDetectsSegfaultAsTerminal(t *testing.T) {
	provider := &fakeProvider{responses: []string{"refined task", "package main"}}
	p := &Pipeline{
		provider: provider,
		compiler: &fakeCompiler{failUntilAttempt: 1},
		packager: &fakePackager{tag: "registry.local/helix-compute-3:latest"},
		verifier: &fakeVerifier{err: fmt.Errorf("%w: sigsegv (139)", ErrVerifyFailed)},
		cfg:      testConfig(),
	}

	outcome := p.Run(context.Background(), "a segfaulting task")
	if outcome.Status != StatusFailed {
		t.Fatalf("expected StatusFailed after repeated verify failures, got %s", outcome.Status)
	}
}

func TestBuildGeneratePromptIncludesSchemaFields(t *testing.T) {
	p := &Pipeline{cfg: testConfig()}
	computeResult := classify.Classify("calculate the square root of 81")
	prompt := p.buildGeneratePrompt("calculate something", computeResult, "")
	for _, field := range []string{"expression", "result", "steps"} {
		if !contains(prompt, field) {
			t.Errorf("expected generate prompt to mention schema field %q, got:\n%s", field, prompt)
		}
	}
}

// fakeMemory lets TestPipelineGenerationIsMemoryBiased assert that a
// non-empty preamble from memory reaches the LLM prompt verbatim.
type fakeMemory struct {
	preamble string
	err      error
}

func (f *fakeMemory) ContextForSubagentPrompt(taskText, class string) (string, error) {
	return f.preamble, f.err
}

// TestPipelineGenerationIsMemoryBiased covers scenario 6: when memory
// returns a non-empty preamble, it must appear in the prompt sent to
// the LLM for the generate step.
func TestPipelineGenerationIsMemoryBiased(t *testing.T) {
	provider := &fakeProvider{responses: []string{
		"refined task",
		"package main",
	}}
	p := &Pipeline{
		provider: provider,
		compiler: &fakeCompiler{failUntilAttempt: 1},
		packager: &fakePackager{tag: "registry.local/helix-compute-4:latest"},
		verifier: &fakeVerifier{},
		memory:   &fakeMemory{preamble: "Prior runs of similar compute tasks used integer overflow checks."},
		cfg:      testConfig(),
	}

	outcome := p.Run(context.Background(), "calculate something large")
	if outcome.Status != StatusDone {
		t.Fatalf("expected StatusDone, got %s (%s)", outcome.Status, outcome.ErrorText)
	}
	if len(provider.calls) < 2 {
		t.Fatalf("expected at least 2 LLM calls (refine, generate), got %d", len(provider.calls))
	}
	generatePrompt := provider.calls[1]
	if !contains(generatePrompt, "integer overflow checks") {
		t.Errorf("expected generate prompt to include memory preamble, got:\n%s", generatePrompt)
	}
}

// TestPipelineGenerationWithoutMemoryOmitsPreamble is the negative
// counterpart: a nil MemoryContext must not inject anything.
func TestPipelineGenerationWithoutMemoryOmitsPreamble(t *testing.T) {
	provider := &fakeProvider{responses: []string{
		"refined task",
		"package main",
	}}
	p := &Pipeline{
		provider: provider,
		compiler: &fakeCompiler{failUntilAttempt: 1},
		packager: &fakePackager{tag: "registry.local/helix-compute-5:latest"},
		verifier: &fakeVerifier{},
		cfg:      testConfig(),
	}

	outcome := p.Run(context.Background(), "calculate something else")
	if outcome.Status != StatusDone {
		t.Fatalf("expected StatusDone, got %s (%s)", outcome.Status, outcome.ErrorText)
	}
	generatePrompt := provider.calls[1]
	if contains(generatePrompt, "Prior runs") {
		t.Errorf("did not expect any memory preamble text with nil MemoryContext, got:\n%s", generatePrompt)
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}
