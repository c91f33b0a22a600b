// Package cmd implements the helixfactory CLI: serve the dispatcher,
// search the registry, force a one-off build, or run a cleanup/
// lifecycle sweep, all against the same on-disk state the serve
// command uses.
package cmd

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/HELIXFACTORY/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "helixfactory",
	Short: "HELIXFACTORY — autonomous agent build, registry, and dispatch",
	Long: `HELIXFACTORY turns a task description into a running agent: it
searches the unified container/WASM registry first, builds and
verifies a fresh agent image on a miss, then dispatches execution to
the matching runtime and records the outcome to memory.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/helixfactory.yaml", "Path to configuration file")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig loads configuration from --config, falling back to
// defaults when the file does not exist, matching the teacher's
// main.go behavior of warning and continuing rather than failing.
func loadConfig() *config.Config {
	if _, err := os.Stat(configPath); err != nil {
		log.Printf("[CONFIG] config file not found at %s, using defaults", configPath)
		return config.DefaultConfig()
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Printf("[CONFIG] failed to load config from %s: %v, using defaults", configPath, err)
		return config.DefaultConfig()
	}
	log.Printf("[CONFIG] loaded configuration from %s", configPath)
	return cfg
}
