// Package config loads the flat set of runtime options this service
// exposes from environment variables with an "ICM_" prefix, optionally
// overlaid with a YAML settings file, following the env-var-with-default
// idiom this module was adapted from.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds every enumerated runtime option.
type Config struct {
	Store      StoreConfig      `yaml:"store"`
	Memory     MemoryConfig     `yaml:"memory"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Recall     RecallConfig     `yaml:"recall"`
	MCP        MCPConfig        `yaml:"mcp"`
}

// StoreConfig configures where persisted state lives.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// MemoryConfig configures memory-store defaults.
type MemoryConfig struct {
	DefaultImportance string  `yaml:"default_importance"`
	DecayRate         float64 `yaml:"decay_rate"`
	PruneThreshold    float64 `yaml:"prune_threshold"`
}

// ExtractionConfig configures the fact extractor.
type ExtractionConfig struct {
	Enabled  bool    `yaml:"enabled"`
	MinScore float64 `yaml:"min_score"`
	MaxFacts int     `yaml:"max_facts"`
}

// RecallConfig configures the icm_recall tool's defaults.
type RecallConfig struct {
	Enabled bool `yaml:"enabled"`
	Limit   int  `yaml:"limit"`
}

// MCPConfig configures the JSON-RPC tool server.
type MCPConfig struct {
	Transport    string `yaml:"transport"`
	Instructions string `yaml:"instructions"`
}

// Load builds a Config from defaults, an optional YAML file named by
// ICM_CONFIG_FILE, and ICM_-prefixed environment variables, in that order
// of increasing precedence.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("ICM_CONFIG_FILE"); path != "" {
		if err := overlayYAML(cfg, path); err != nil {
			return nil, fmt.Errorf("config: load yaml overlay: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Store: StoreConfig{
			Path: "./data/icm.db",
		},
		Memory: MemoryConfig{
			DefaultImportance: "medium",
			DecayRate:         0.95,
			PruneThreshold:    0.05,
		},
		Extraction: ExtractionConfig{
			Enabled:  true,
			MinScore: 3.0,
			MaxFacts: 20,
		},
		Recall: RecallConfig{
			Enabled: true,
			Limit:   5,
		},
		MCP: MCPConfig{
			Transport:    "stdio",
			Instructions: defaultInstructions,
		},
	}
}

func overlayYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnvOverrides(cfg *Config) {
	cfg.Store.Path = getEnv("ICM_STORE_PATH", cfg.Store.Path)
	cfg.Memory.DefaultImportance = getEnv("ICM_MEMORY_DEFAULT_IMPORTANCE", cfg.Memory.DefaultImportance)
	cfg.Memory.DecayRate = getEnvFloat("ICM_MEMORY_DECAY_RATE", cfg.Memory.DecayRate)
	cfg.Memory.PruneThreshold = getEnvFloat("ICM_MEMORY_PRUNE_THRESHOLD", cfg.Memory.PruneThreshold)
	cfg.Extraction.Enabled = getEnvBool("ICM_EXTRACTION_ENABLED", cfg.Extraction.Enabled)
	cfg.Extraction.MinScore = getEnvFloat("ICM_EXTRACTION_MIN_SCORE", cfg.Extraction.MinScore)
	cfg.Extraction.MaxFacts = getEnvInt("ICM_EXTRACTION_MAX_FACTS", cfg.Extraction.MaxFacts)
	cfg.Recall.Enabled = getEnvBool("ICM_RECALL_ENABLED", cfg.Recall.Enabled)
	cfg.Recall.Limit = getEnvInt("ICM_RECALL_LIMIT", cfg.Recall.Limit)
	cfg.MCP.Transport = getEnv("ICM_MCP_TRANSPORT", cfg.MCP.Transport)
	cfg.MCP.Instructions = getEnv("ICM_MCP_INSTRUCTIONS", cfg.MCP.Instructions)
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		switch v {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}

const defaultInstructions = `This server stores and recalls durable facts across sessions.

RECALL (icm_recall): before starting substantive work, recall relevant
prior context by topic or free-text query. Results are ranked by a blend
of full-text and semantic similarity when an embedding capability is
available, falling back to full-text and then keyword matching.

STORE (icm_store): when you learn something worth remembering beyond the
current conversation, store it under a descriptive topic such as
"decisions-{project}", "errors-resolved", "preferences", or
"context-{project}". Use importance "critical" for facts that must never
be forgotten (they are exempt from decay and pruning), and "high",
"medium", or "low" for other facts by decreasing importance; those three
levels decay at the same rate.`
