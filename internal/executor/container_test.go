package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeFakeRuntime writes an executable shell script standing in for
// the docker/wasmtime CLI, ignoring its arguments and producing the
// given stdout/stderr/exit code.
func writeFakeRuntime(t *testing.T, stdout, stderr string, exitCode int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-runtime.sh")
	script := fmt.Sprintf("#!/bin/sh\nprintf '%%s' %q\nprintf '%%s' %q >&2\nexit %d\n", stdout, stderr, exitCode)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("failed to write fake runtime: %v", err)
	}
	return path
}

func TestContainerExecutorSuccessReturnsStdout(t *testing.T) {
	bin := writeFakeRuntime(t, `{"result": 42}`, "", 0)
	e := NewContainerExecutor(bin)

	result, err := e.Run(context.Background(), "registry.local/helix-compute-1:latest", "calculate 6*7", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Errorf("expected success, got %+v", result)
	}
	if result.Stdout != `{"result": 42}` {
		t.Errorf("unexpected stdout: %q", result.Stdout)
	}
	if result.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %d", result.ExitCode)
	}
}

func TestContainerExecutorNonZeroExitPreservesStdout(t *testing.T) {
	bin := writeFakeRuntime(t, `{"partial": true}`, "boom", 1)
	e := NewContainerExecutor(bin)

	result, err := e.Run(context.Background(), "registry.local/helix-compute-2:latest", "a bad task", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Error("expected failure for non-zero exit")
	}
	if result.ExitCode != 1 {
		t.Errorf("expected exit code 1, got %d", result.ExitCode)
	}
	if result.Stdout != `{"partial": true}` {
		t.Errorf("expected stdout preserved on non-zero exit, got %q", result.Stdout)
	}
	if result.Stderr != "boom" {
		t.Errorf("expected stderr captured, got %q", result.Stderr)
	}
}

func TestContainerExecutorForwardsCredentialsAsEnv(t *testing.T) {
	// This fake runtime echoes its arguments so the -e flags are visible.
	bin := filepath.Join(t.TempDir(), "echo-args.sh")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\necho \"$@\"\n"), 0o755); err != nil {
		t.Fatalf("failed to write fake runtime: %v", err)
	}
	e := NewContainerExecutor(bin)

	result, err := e.Run(context.Background(), "registry.local/helix-research-1:latest", "look up something",
		map[string]string{"WEB_SEARCH_KEY": "secret-key"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Errorf("expected success, got %+v", result)
	}
	if !strings.Contains(result.Stdout, "-e WEB_SEARCH_KEY=secret-key") {
		t.Errorf("expected credential forwarded as an -e flag, got args %q", result.Stdout)
	}
}
