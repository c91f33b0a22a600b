package registry

import "testing"

func TestIsWASMSuitableRejectsCredentials(t *testing.T) {
	if IsWASMSuitable("calculate fibonacci", []string{"api-key"}) {
		t.Error("expected a task requiring credentials to be unsuitable")
	}
}

func TestIsWASMSuitableRejectsNetworkKeywords(t *testing.T) {
	if IsWASMSuitable("fetch data from the api", nil) {
		t.Error("expected a fetch/api task to be unsuitable for wasm")
	}
}

func TestIsWASMSuitableAcceptsPureCompute(t *testing.T) {
	if !IsWASMSuitable("calculate the 10th fibonacci number", nil) {
		t.Error("expected a pure compute task to be wasm-suitable")
	}
}

func TestIsWASMSuitableDefaultsToFalse(t *testing.T) {
	if IsWASMSuitable("write a short story about a dragon", nil) {
		t.Error("expected an ambiguous task to default to not suitable")
	}
}
