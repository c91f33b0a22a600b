package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/HELIXFACTORY/internal/build"
)

var buildTimeoutMin int

var buildCmd = &cobra.Command{
	Use:   "build [task description]",
	Short: "Force a build-pipeline run for a task, bypassing registry search",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runBuild,
}

func init() {
	buildCmd.Flags().IntVar(&buildTimeoutMin, "timeout-minutes", 10, "Overall timeout for the build run")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	mem, err := newMemoryManager(cfg)
	if err != nil {
		return err
	}
	defer mem.Close()

	pipeline := newPipeline(cfg, mem)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(buildTimeoutMin)*time.Minute)
	defer cancel()

	rawTask := strings.Join(args, " ")
	start := time.Now()
	outcome := pipeline.Run(ctx, rawTask)
	elapsed := time.Since(start)

	if outcome.Status != build.StatusDone {
		return fmt.Errorf("build failed after %s: %s", elapsed.Round(time.Second), outcome.ErrorText)
	}

	fmt.Printf("built %s (%s, class=%s) in %s\n", outcome.ImageTag, outcome.Source, outcome.Class, elapsed.Round(time.Second))
	return nil
}
