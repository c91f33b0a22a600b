package registry

import "testing"

func validWasmBinary() []byte {
	return append([]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}, make([]byte, 16)...)
}

func TestWASMBackendRejectsInvalidMagicBytes(t *testing.T) {
	backend, err := NewWASMBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewWASMBackend failed: %v", err)
	}
	err = backend.Store(WASMManifest{Name: "bad-agent"}, []byte("not a wasm binary"))
	if err == nil {
		t.Error("expected storing a non-wasm binary to fail")
	}
}

func TestWASMBackendVisibleOnlyWhenBothFilesPresent(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewWASMBackend(dir)
	if err != nil {
		t.Fatalf("NewWASMBackend failed: %v", err)
	}

	manifests, err := backend.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(manifests) != 0 {
		t.Fatalf("expected empty registry, got %+v", manifests)
	}

	if err := backend.Store(WASMManifest{Name: "fib-agent", Task: "computes fibonacci numbers"}, validWasmBinary()); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	manifests, err = backend.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(manifests) != 1 || manifests[0].Name != "fib-agent" {
		t.Errorf("expected one visible agent fib-agent, got %+v", manifests)
	}
}

func TestWASMBackendStoreAndRetrieveBinary(t *testing.T) {
	backend, err := NewWASMBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewWASMBackend failed: %v", err)
	}
	binary := validWasmBinary()
	if err := backend.Store(WASMManifest{Name: "agent-a"}, binary); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	got, err := backend.GetWASMBinary("agent-a")
	if err != nil {
		t.Fatalf("GetWASMBinary failed: %v", err)
	}
	if string(got) != string(binary) {
		t.Error("round-tripped binary does not match stored binary")
	}
}

func TestWASMBackendDeleteRemovesVisibility(t *testing.T) {
	backend, err := NewWASMBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewWASMBackend failed: %v", err)
	}
	if err := backend.Store(WASMManifest{Name: "agent-a"}, validWasmBinary()); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if err := backend.Delete("agent-a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := backend.GetWASMBinary("agent-a"); err == nil {
		t.Error("expected deleted agent to be gone")
	}
}
