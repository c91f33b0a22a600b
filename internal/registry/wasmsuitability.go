package registry

import "strings"

// k8sRequiredKeywords mark a task as needing the full container
// runtime: network/filesystem/credential access that the WASM
// sandbox cannot grant.
var k8sRequiredKeywords = []string{
	"api", "http", "fetch", "request", "download", "secret", "key",
	"credential", "auth", "token", "database", "storage", "persist",
	"save", "file", "docker", "container", "deploy",
}

// wasmSuitableKeywords mark a task as pure computation: the kind of
// thing the WASM sandbox is built for.
var wasmSuitableKeywords = []string{
	"calculate", "compute", "math", "fibonacci", "prime", "factorial",
	"sum", "multiply", "divide", "add", "parse", "transform", "format",
	"convert", "encode", "decode", "sort", "filter", "process", "analyze",
}

// IsWASMSuitable decides whether a task can run in the WASM sandbox.
// Any required credential rules it out outright. Otherwise a
// container/k8s keyword rules it out, a compute keyword clears it, and
// anything else defaults to not suitable: when in doubt, prefer the
// container runtime for safety.
func IsWASMSuitable(taskText string, requiredCredentials []string) bool {
	if len(requiredCredentials) > 0 {
		return false
	}

	lower := strings.ToLower(taskText)

	for _, kw := range k8sRequiredKeywords {
		if strings.Contains(lower, kw) {
			return false
		}
	}

	for _, kw := range wasmSuitableKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}

	return false
}
