package build

import "testing"

func TestDetectGOARCHOnlyReturnsSupportedTargets(t *testing.T) {
	got := detectGOARCH()
	if got != "amd64" && got != "arm64" {
		t.Errorf("detectGOARCH returned unsupported value %q", got)
	}
}
