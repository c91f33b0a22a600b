package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// wasmMagic is the 4-byte preamble every valid WASM binary starts
// with ("\0asm").
var wasmMagic = []byte{0x00, 0x61, 0x73, 0x6d}

// WASMManifest describes one WASM-backed agent, mirroring the
// container backend's image labels field-for-field (task/capabilities/
// created) plus the fields specific to a filesystem-backed catalog.
type WASMManifest struct {
	Name         string    `json:"name"`
	Task         string    `json:"task"`
	Runtime      string    `json:"runtime"`
	Capabilities []string  `json:"capabilities"`
	WASMFile     string    `json:"wasm_file"`
	Created      time.Time `json:"created"`
	Embedding    []float32 `json:"embedding,omitempty"`
}

// WASMBackend is a directory-based agent catalog: an agent is visible
// only once both its manifest.json and agent.wasm are present, so a
// build that's still mid-write never shows up as a search hit.
type WASMBackend struct {
	mu   sync.RWMutex
	root string
}

// NewWASMBackend opens (creating if necessary) a WASM registry rooted
// at root, where each agent lives under root/<name>/{manifest.json,agent.wasm}.
func NewWASMBackend(root string) (*WASMBackend, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create wasm registry root: %w", err)
	}
	return &WASMBackend{root: root}, nil
}

func (b *WASMBackend) agentDir(name string) string {
	return filepath.Join(b.root, name)
}

// Store writes manifest and binary to the agent's directory. The
// manifest is written last so a reader never observes a manifest
// without its binary.
func (b *WASMBackend) Store(manifest WASMManifest, wasmBinary []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !bytes.HasPrefix(wasmBinary, wasmMagic) {
		return fmt.Errorf("rejecting store for %q: not a valid wasm binary", manifest.Name)
	}

	dir := b.agentDir(manifest.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create agent directory: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "agent.wasm"), wasmBinary, 0o644); err != nil {
		return fmt.Errorf("failed to write wasm binary: %w", err)
	}

	manifest.Runtime = "wasm"
	manifest.WASMFile = "agent.wasm"
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// List returns the manifests of every fully-written agent.
func (b *WASMBackend) List() ([]WASMManifest, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entries, err := os.ReadDir(b.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read wasm registry root: %w", err)
	}

	var manifests []WASMManifest
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		manifest, ok := b.readManifestLocked(entry.Name())
		if ok {
			manifests = append(manifests, manifest)
		}
	}
	return manifests, nil
}

func (b *WASMBackend) readManifestLocked(name string) (WASMManifest, bool) {
	dir := b.agentDir(name)
	wasmPath := filepath.Join(dir, "agent.wasm")
	manifestPath := filepath.Join(dir, "manifest.json")

	if _, err := os.Stat(wasmPath); err != nil {
		return WASMManifest{}, false
	}
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return WASMManifest{}, false
	}
	var manifest WASMManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return WASMManifest{}, false
	}
	return manifest, true
}

// GetWASMBinary returns the binary for a fully-written agent.
func (b *WASMBackend) GetWASMBinary(name string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if _, ok := b.readManifestLocked(name); !ok {
		return nil, fmt.Errorf("agent %q not found in wasm registry", name)
	}
	data, err := os.ReadFile(filepath.Join(b.agentDir(name), "agent.wasm"))
	if err != nil {
		return nil, fmt.Errorf("failed to read wasm binary: %w", err)
	}
	return data, nil
}

// Delete removes an agent's directory entirely.
func (b *WASMBackend) Delete(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return os.RemoveAll(b.agentDir(name))
}

// ArtifactRef returns the filesystem path the executor loads the
// binary from.
func (b *WASMBackend) ArtifactRef(name string) string {
	return filepath.Join(b.agentDir(name), "agent.wasm")
}

// Candidates builds search candidates out of every visible manifest.
func (b *WASMBackend) Candidates() ([]Candidate, error) {
	manifests, err := b.List()
	if err != nil {
		return nil, err
	}
	candidates := make([]Candidate, 0, len(manifests))
	for _, m := range manifests {
		candidates = append(candidates, Candidate{
			Name:        m.Name,
			Description: m.Task,
			Tools:       m.Capabilities,
		})
	}
	return candidates, nil
}

// Embedding returns the stored embedding for a manifest, if any.
// Search does not use it; search ranking uses no embeddings.
func (b *WASMBackend) Embedding(name string) ([]float32, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	m, ok := b.readManifestLocked(name)
	if !ok || len(m.Embedding) == 0 {
		return nil, false
	}
	return m.Embedding, true
}

// manifestByName maps a candidate name back to its full manifest.
func (b *WASMBackend) manifestByName(name string) (WASMManifest, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.readManifestLocked(name)
}
