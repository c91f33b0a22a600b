package build

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// verifySentinelArg is the positional argument passed to a freshly
// built image to check that it starts cleanly without touching real
// credentials or side effects.
const verifySentinelArg = "verify_startup"

// ErrVerifyFailed marks a verification failure the pipeline should
// retry (as opposed to an error constructing the verify command
// itself).
var ErrVerifyFailed = errors.New("image failed verification")

// Verifier runs a freshly packaged image once with a sentinel
// argument and classifies its exit code.
type Verifier struct{}

// NewVerifier builds a verifier. It holds no state; its only job is
// running `docker run` and reading the exit code.
func NewVerifier() *Verifier {
	return &Verifier{}
}

// Verify runs the image once. Exit 139 is a segfault and a hard
// failure; 126/127 are architecture/exec errors and also failures.
// Any other exit code counts as "starts cleanly" — agents are
// expected to emit a JSON error for unrecognized sentinel input, not
// crash, so a non-zero-but-not-{139,126,127} exit still passes.
func (v *Verifier) Verify(ctx context.Context, imageTag string) error {
	cmd := exec.CommandContext(ctx, "docker", "run", "--rm", imageTag, verifySentinelArg)
	err := cmd.Run()
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return fmt.Errorf("failed to run verify container: %w", err)
	}

	return classifyVerifyExitCode(exitErr.ExitCode(), imageTag)
}

// classifyVerifyExitCode applies the 139/126-127/else rule in
// isolation from process spawning, so it can be unit-tested without a
// real docker invocation.
func classifyVerifyExitCode(code int, imageTag string) error {
	switch code {
	case 139:
		return fmt.Errorf("%w: sigsegv (139) during verification of %s", ErrVerifyFailed, imageTag)
	case 126, 127:
		return fmt.Errorf("%w: exec error (%d), possibly arch mismatch, for %s", ErrVerifyFailed, code, imageTag)
	default:
		return nil
	}
}
