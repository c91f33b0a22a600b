package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Run the retention sweep: evict stale episodic rows and garbage-collect orphaned agent images",
	RunE:  runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	mem, err := newMemoryManager(cfg)
	if err != nil {
		return err
	}
	defer mem.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	stats, err := mem.RunCleanup(ctx)
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}

	fmt.Printf("cleanup complete: archived=%d deleted=%d images_deleted=%d\n", stats.MemoriesArchived, stats.MemoriesDeleted, stats.ImagesDeleted)
	return nil
}
