package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/HELIXFACTORY/internal/metrics"
)

var lifecycleCmd = &cobra.Command{
	Use:   "lifecycle",
	Short: "Force a memory lifecycle pass regardless of the configured interval",
	RunE:  runLifecycle,
}

func init() {
	rootCmd.AddCommand(lifecycleCmd)
}

func runLifecycle(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	mem, err := newMemoryManager(cfg)
	if err != nil {
		return err
	}
	defer mem.Close()

	stats, err := mem.RunLifecycle()
	if err != nil {
		metrics.LifecyclePassesTotal.WithLabelValues("manual", "failed").Inc()
		return fmt.Errorf("lifecycle pass failed: %w", err)
	}
	metrics.LifecyclePassesTotal.WithLabelValues("manual", "ok").Inc()

	fmt.Printf("lifecycle pass complete: evaluated=%d promoted=%d demoted=%d archived=%d deleted=%d\n",
		stats.Evaluated, stats.Promoted, stats.Demoted, stats.Archived, stats.Deleted)
	return nil
}
