package build

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/HELIXFACTORY/internal/agentcontract"
)

// Packager builds a minimal container image around a compiled binary
// and pushes it to the configured registry.
type Packager struct {
	registryURL string
	baseImage   string
}

// NewPackager builds a packager against the given registry base URL
// and base image (a distroless static image, matching the teacher's
// scratch-layer convention).
func NewPackager(registryURL, baseImage string) *Packager {
	return &Packager{registryURL: registryURL, baseImage: baseImage}
}

// ImageMetadata carries the fields the packager writes as image
// labels, per the agent contract's fixed label set.
type ImageMetadata struct {
	Class        string
	Task         string
	Capabilities []string
}

// Package writes binary and a generated Dockerfile to a scratch
// directory, builds an image named helix-<class>-<unix-seconds>, and
// pushes it, returning <registry>/<name>:latest.
func (p *Packager) Package(ctx context.Context, binary []byte, meta ImageMetadata) (string, error) {
	tempDir, err := os.MkdirTemp("", "helixfactory-package-*")
	if err != nil {
		return "", fmt.Errorf("failed to create package scratch dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	agentPath := filepath.Join(tempDir, "agent")
	if err := os.WriteFile(agentPath, binary, 0o755); err != nil {
		return "", fmt.Errorf("failed to write agent binary: %w", err)
	}

	imageName := fmt.Sprintf("helix-%s-%d", meta.Class, time.Now().Unix())
	dockerfile := p.renderDockerfile(meta)
	if err := os.WriteFile(filepath.Join(tempDir, "Dockerfile"), []byte(dockerfile), 0o644); err != nil {
		return "", fmt.Errorf("failed to write Dockerfile: %w", err)
	}

	fullTag := fmt.Sprintf("%s/%s:latest", p.registryURL, imageName)

	buildCmd := exec.CommandContext(ctx, "docker", "build", "-t", fullTag, tempDir)
	if out, err := buildCmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("docker build failed: %w: %s", err, string(out))
	}

	pushCmd := exec.CommandContext(ctx, "docker", "push", fullTag)
	if out, err := pushCmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("docker push failed: %w: %s", err, string(out))
	}

	return fullTag, nil
}

func (p *Packager) renderDockerfile(meta ImageMetadata) string {
	caps := strings.Join(meta.Capabilities, ",")
	var b strings.Builder
	fmt.Fprintf(&b, "FROM %s\n", p.baseImage)
	b.WriteString("WORKDIR /\n")
	b.WriteString("COPY agent /agent\n")
	fmt.Fprintf(&b, "LABEL %s=%q\n", agentcontract.LabelTask, meta.Task)
	fmt.Fprintf(&b, "LABEL %s=%q\n", agentcontract.LabelCapabilities, caps)
	fmt.Fprintf(&b, "LABEL %s=%q\n", agentcontract.LabelType, meta.Class)
	fmt.Fprintf(&b, "LABEL %s=%q\n", agentcontract.LabelCreated, fmt.Sprintf("%d", time.Now().Unix()))
	fmt.Fprintf(&b, "LABEL %s=%q\n", agentcontract.LabelAuthor, agentcontract.AgentAuthor)
	b.WriteString(`ENTRYPOINT ["/agent"]` + "\n")
	return b.String()
}
