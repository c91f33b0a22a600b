// Package config holds HELIXFACTORY's root configuration, loaded from YAML
// with environment-variable fallbacks for secrets.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds dashboard/API server settings.
type ServerConfig struct {
	Port     int `yaml:"port" json:"port"`
	NATSPort int `yaml:"nats_port" json:"nats_port"`
}

// LLMConfig describes the generator/refiner LLM endpoint.
type LLMConfig struct {
	Endpoint       string   `yaml:"endpoint" json:"endpoint"`
	Models         []string `yaml:"models" json:"models"` // priority order, first to last
	APIKeyEnv      string   `yaml:"api_key_env" json:"api_key_env"`
	RefineTimeoutS int      `yaml:"refine_timeout_s" json:"refine_timeout_s"`
	GenTimeoutS    int      `yaml:"generate_timeout_s" json:"generate_timeout_s"`
	RatePerSec     float64  `yaml:"rate_per_sec" json:"rate_per_sec"`
	RateBurst      int      `yaml:"rate_burst" json:"rate_burst"`
}

// BuildConfig holds build-pipeline tuning.
type BuildConfig struct {
	MaxConcurrentBuilds int `yaml:"max_concurrent_builds" json:"max_concurrent_builds"`
	CompileRetries      int `yaml:"compile_retries" json:"compile_retries"`
	VerifyRetries       int `yaml:"verify_retries" json:"verify_retries"`
	CompileTimeoutS     int `yaml:"compile_timeout_s" json:"compile_timeout_s"`
	PackageTimeoutS     int `yaml:"package_timeout_s" json:"package_timeout_s"`
	VerifyTimeoutS      int `yaml:"verify_timeout_s" json:"verify_timeout_s"`
}

// RegistryConfig holds the two backend registries' locations.
type RegistryConfig struct {
	ContainerURL      string  `yaml:"container_registry_url" json:"container_registry_url"`
	WASMRoot          string  `yaml:"wasm_registry_root" json:"wasm_registry_root"`
	TieBreakMargin    float64 `yaml:"tie_break_margin" json:"tie_break_margin"`
	MatchThreshold    float64 `yaml:"match_threshold" json:"match_threshold"`
	ManifestCacheTTLS int     `yaml:"manifest_cache_ttl_s" json:"manifest_cache_ttl_s"`
}

// MemoryConfig holds the memory store's persistence settings.
type MemoryConfig struct {
	DBPath               string `yaml:"db_path" json:"db_path"`
	KeychainService      string `yaml:"keychain_service" json:"keychain_service"`
	KeyEnv               string `yaml:"key_env" json:"key_env"`
	PassiveBufferMin     int    `yaml:"passive_buffer_minutes" json:"passive_buffer_minutes"`
	RetentionDays        int    `yaml:"retention_days" json:"retention_days"`
	LifecycleIntervalMin int    `yaml:"lifecycle_interval_minutes" json:"lifecycle_interval_minutes"`
}

// ExecutorConfig holds executor timeouts and fallback behavior.
type ExecutorConfig struct {
	ExecuteTimeoutS  int    `yaml:"execute_timeout_s" json:"execute_timeout_s"`
	WASMTimeoutS     int    `yaml:"wasm_timeout_s" json:"wasm_timeout_s"`
	LocalWASMRuntime string `yaml:"local_wasm_runtime" json:"local_wasm_runtime"` // e.g. "wasmtime"
}

// Config is the root configuration for HELIXFACTORY.
type Config struct {
	Server   ServerConfig   `yaml:"server" json:"server"`
	LLM      LLMConfig      `yaml:"llm" json:"llm"`
	Build    BuildConfig    `yaml:"build" json:"build"`
	Registry RegistryConfig `yaml:"registry" json:"registry"`
	Memory   MemoryConfig   `yaml:"memory" json:"memory"`
	Executor ExecutorConfig `yaml:"executor" json:"executor"`
}

// DefaultConfig returns sensible defaults for HELIXFACTORY.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     8080,
			NATSPort: 4222,
		},
		LLM: LLMConfig{
			Endpoint:       "http://localhost:1234/v1",
			Models:         []string{"qwen2.5-coder-32b", "qwen2.5-coder-7b"},
			APIKeyEnv:      "LLM_API_KEY",
			RefineTimeoutS: 60,
			GenTimeoutS:    120,
			RatePerSec:     1.0,
			RateBurst:      3,
		},
		Build: BuildConfig{
			MaxConcurrentBuilds: 4,
			CompileRetries:      2,
			VerifyRetries:       2,
			CompileTimeoutS:     300,
			PackageTimeoutS:     180,
			VerifyTimeoutS:      30,
		},
		Registry: RegistryConfig{
			ContainerURL:      "localhost:5000",
			WASMRoot:          "data/wasm-registry",
			TieBreakMargin:    0.1,
			MatchThreshold:    0.2,
			ManifestCacheTTLS: 60,
		},
		Memory: MemoryConfig{
			DBPath:               "data",
			KeychainService:      "helixfactory-memory",
			KeyEnv:               "HELIX_MEMORY_KEY",
			PassiveBufferMin:     5,
			RetentionDays:        30,
			LifecycleIntervalMin: 5,
		},
		Executor: ExecutorConfig{
			ExecuteTimeoutS:  300,
			WASMTimeoutS:     30,
			LocalWASMRuntime: "wasmtime",
		},
	}
}

// LoadConfig loads configuration from a YAML file, keeping
// DefaultConfig's values for every field the file does not set.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate checks invariants the rest of the system assumes hold.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.NATSPort <= 0 || c.Server.NATSPort > 65535 {
		return fmt.Errorf("invalid NATS port: %d", c.Server.NATSPort)
	}
	if c.LLM.Endpoint == "" {
		return fmt.Errorf("llm endpoint is required")
	}
	if len(c.LLM.Models) == 0 {
		return fmt.Errorf("at least one llm model must be configured")
	}
	if c.Build.MaxConcurrentBuilds <= 0 {
		return fmt.Errorf("build.max_concurrent_builds must be positive")
	}
	if c.Registry.WASMRoot == "" {
		return fmt.Errorf("registry.wasm_registry_root is required")
	}
	if c.Memory.DBPath == "" {
		return fmt.Errorf("memory.db_path is required")
	}
	return nil
}
