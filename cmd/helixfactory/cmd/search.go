package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/HELIXFACTORY/internal/metrics"
)

var searchClass string

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the unified container/WASM registry without dispatching",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchClass, "class", "", "Task class passed to the search (results are not filtered by it)")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	reg, err := newRegistry(cfg)
	if err != nil {
		return err
	}

	query := strings.Join(args, " ")
	start := time.Now()
	results, err := reg.Search(query, searchClass)
	elapsed := time.Since(start)
	metrics.SearchLatencySeconds.Observe(elapsed.Seconds())
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("no matching agents found")
		return nil
	}

	fmt.Printf("%-20s %-10s %-10s %-8s %s\n", "NAME", "RUNTIME", "CLASS", "SCORE", "REFERENCE")
	for _, r := range results {
		fmt.Printf("%-20s %-10s %-10s %-8s %s\n", r.Name, r.Runtime, r.Class, humanize.Ftoa(r.Score), r.ArtifactRef)
	}
	fmt.Printf("\nsearched in %s\n", elapsed.Round(time.Millisecond))
	return nil
}
