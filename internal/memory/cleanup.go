package memory

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const defaultRetentionDays = 30

// CleanupStats reports counters from one sweep.
type CleanupStats struct {
	MemoriesArchived int
	MemoriesDeleted  int
	ImagesDeleted    int
}

// Cleaner runs the 30-day retention sweep: archiving cold episodic
// entries, deleting stale low-success semantic rows, and garbage
// collecting container images no longer cited by any recent
// successful episodic entry.
type Cleaner struct {
	lifecycle      *LifecycleController
	episodic       *EpisodicStore
	semantic       *SemanticStore
	retentionDays  int
	dockerBin      string
}

// NewCleaner wires the cleanup sweep to the stores and lifecycle
// controller it shares its archival logic with.
func NewCleaner(lifecycle *LifecycleController, episodic *EpisodicStore, semantic *SemanticStore, retentionDays int) *Cleaner {
	if retentionDays <= 0 {
		retentionDays = defaultRetentionDays
	}
	return &Cleaner{
		lifecycle:     lifecycle,
		episodic:      episodic,
		semantic:      semantic,
		retentionDays: retentionDays,
		dockerBin:     "docker",
	}
}

// RunFull performs the full cleanup sweep.
func (c *Cleaner) RunFull(ctx context.Context) (CleanupStats, error) {
	var stats CleanupStats

	archived, err := c.archiveOldMemories()
	if err != nil {
		return stats, fmt.Errorf("failed to archive old memories: %w", err)
	}
	stats.MemoriesArchived = archived

	deleted, err := c.cleanupStalePatterns()
	if err != nil {
		return stats, fmt.Errorf("failed to clean up stale patterns: %w", err)
	}
	stats.MemoriesDeleted = deleted

	images, err := c.cleanupDockerImages(ctx)
	if err != nil {
		// Docker may simply not be installed on this host; this is not
		// fatal to the rest of the sweep.
		stats.ImagesDeleted = images
		return stats, fmt.Errorf("docker image cleanup incomplete: %w", err)
	}
	stats.ImagesDeleted = images

	return stats, nil
}

// archiveOldMemories delegates to the lifecycle controller's archive
// path for every episodic entry past the retention cutoff.
func (c *Cleaner) archiveOldMemories() (int, error) {
	cutoff := time.Now().AddDate(0, 0, -c.retentionDays)

	entries, err := c.episodic.AllForLifecycle()
	if err != nil {
		return 0, err
	}

	count := 0
	for _, rec := range entries {
		if rec.LastAccessed.After(cutoff) {
			continue
		}
		if err := c.lifecycle.archiveEntry(rec); err != nil {
			return count, fmt.Errorf("failed to archive %s: %w", rec.ID, err)
		}
		count++
	}
	return count, nil
}

// cleanupStalePatterns deletes semantic rows with success_rate<0.5
// that haven't been touched within the retention window.
func (c *Cleaner) cleanupStalePatterns() (int, error) {
	cutoff := time.Now().AddDate(0, 0, -c.retentionDays)

	rows, err := c.semantic.All()
	if err != nil {
		return 0, err
	}

	count := 0
	for _, agentCap := range rows {
		if agentCap.SuccessRate() < 0.5 && agentCap.LastAccessed.Before(cutoff) {
			if err := c.semantic.Delete(agentCap.Class); err != nil {
				return count, fmt.Errorf("failed to delete stale pattern %s: %w", agentCap.Class, err)
			}
			count++
		}
	}
	return count, nil
}

// cleanupDockerImages lists helix-* images and removes any not cited
// by a successful episodic entry newer than the retention cutoff.
func (c *Cleaner) cleanupDockerImages(ctx context.Context) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -c.retentionDays)

	inUse, err := c.episodic.ReferencedImages(cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to compute in-use images: %w", err)
	}

	images, err := c.listHelixImages(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, img := range images {
		if inUse[img] {
			continue
		}
		if err := c.removeImage(ctx, img); err != nil {
			return count, fmt.Errorf("failed to remove image %s: %w", img, err)
		}
		count++
	}
	return count, nil
}

func (c *Cleaner) listHelixImages(ctx context.Context) ([]string, error) {
	cmd := exec.CommandContext(ctx, c.dockerBin, "images", "--filter", "reference=helix-*", "--format", "{{.Repository}}:{{.Tag}}")
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("failed to list docker images: %w", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	var images []string
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			images = append(images, l)
		}
	}
	return images, nil
}

func (c *Cleaner) removeImage(ctx context.Context, ref string) error {
	cmd := exec.CommandContext(ctx, c.dockerBin, "rmi", ref)
	return cmd.Run()
}
