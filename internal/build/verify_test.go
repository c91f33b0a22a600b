package build

import (
	"errors"
	"testing"
)

func TestClassifyVerifyExitCodeSegfaultIsTerminal(t *testing.T) {
	err := classifyVerifyExitCode(139, "registry.local/helix-compute-1:latest")
	if err == nil {
		t.Fatal("expected an error for exit code 139")
	}
	if !errors.Is(err, ErrVerifyFailed) {
		t.Errorf("expected error to wrap ErrVerifyFailed, got %v", err)
	}
}

func TestClassifyVerifyExitCodeExecErrorsAreFailures(t *testing.T) {
	for _, code := range []int{126, 127} {
		err := classifyVerifyExitCode(code, "registry.local/helix-compute-1:latest")
		if err == nil {
			t.Fatalf("expected an error for exit code %d", code)
		}
		if !errors.Is(err, ErrVerifyFailed) {
			t.Errorf("expected error to wrap ErrVerifyFailed for code %d, got %v", code, err)
		}
	}
}

func TestClassifyVerifyExitCodeOtherCodesPass(t *testing.T) {
	for _, code := range []int{0, 1, 2, 255} {
		if err := classifyVerifyExitCode(code, "registry.local/helix-compute-1:latest"); err != nil {
			t.Errorf("expected exit code %d to pass verification, got error %v", code, err)
		}
	}
}
