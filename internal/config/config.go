// Package config loads the per-project twining configuration.
//
// Settings live in .twining/config.yml (or config.toml when present) and are
// merged over Default(): keys the file omits keep their default values,
// nested sections included. The twining directory layout is also defined
// here so every store agrees on file names.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	// DirName is the state directory created at the project root.
	DirName = ".twining"

	yamlFile = "config.yml"
	tomlFile = "config.toml"

	gitignoreContent = "embeddings/*.index\narchive/\nmodels/\nmetrics.jsonl\n"
)

// Subdirectories created by Init.
var subdirs = []string{"decisions", "graph", "handoffs", "agents", "archive", "embeddings"}

// ─── Types ───────────────────────────────────────────────────────────────────

// Config is the full project configuration.
type Config struct {
	Version            int                   `yaml:"version" toml:"version" json:"version"`
	EmbeddingModel     string                `yaml:"embedding_model" toml:"embedding_model" json:"embedding_model"`
	Archive            ArchiveConfig         `yaml:"archive" toml:"archive" json:"archive"`
	ContextAssembly    ContextAssemblyConfig `yaml:"context_assembly" toml:"context_assembly" json:"context_assembly"`
	ConflictResolution string                `yaml:"conflict_resolution" toml:"conflict_resolution" json:"conflict_resolution"`
	Agents             AgentsConfig          `yaml:"agents" toml:"agents" json:"agents"`
	Delegations        DelegationsConfig     `yaml:"delegations" toml:"delegations" json:"delegations"`
	Notify             NotifyConfig          `yaml:"notify" toml:"notify" json:"notify"`
}

// ArchiveConfig controls blackboard archiving.
type ArchiveConfig struct {
	AutoArchiveOnCommit               bool `yaml:"auto_archive_on_commit" toml:"auto_archive_on_commit" json:"auto_archive_on_commit"`
	AutoArchiveOnContextSwitch        bool `yaml:"auto_archive_on_context_switch" toml:"auto_archive_on_context_switch" json:"auto_archive_on_context_switch"`
	MaxBlackboardEntriesBeforeArchive int  `yaml:"max_blackboard_entries_before_archive" toml:"max_blackboard_entries_before_archive" json:"max_blackboard_entries_before_archive"`
}

// ContextAssemblyConfig controls assemble's budget and scoring.
type ContextAssemblyConfig struct {
	DefaultMaxTokens int             `yaml:"default_max_tokens" toml:"default_max_tokens" json:"default_max_tokens"`
	Tokenizer        string          `yaml:"tokenizer" toml:"tokenizer" json:"tokenizer"`
	PriorityWeights  PriorityWeights `yaml:"priority_weights" toml:"priority_weights" json:"priority_weights"`
}

// PriorityWeights are the multipliers of each scoring signal.
type PriorityWeights struct {
	Recency            float64 `yaml:"recency" toml:"recency" json:"recency"`
	Relevance          float64 `yaml:"relevance" toml:"relevance" json:"relevance"`
	DecisionConfidence float64 `yaml:"decision_confidence" toml:"decision_confidence" json:"decision_confidence"`
	WarningBoost       float64 `yaml:"warning_boost" toml:"warning_boost" json:"warning_boost"`
	GraphConnectivity  float64 `yaml:"graph_connectivity" toml:"graph_connectivity" json:"graph_connectivity"`
}

// AgentsConfig holds agent registry settings.
type AgentsConfig struct {
	Liveness LivenessConfig `yaml:"liveness" toml:"liveness" json:"liveness"`
}

// LivenessConfig holds the idle/gone thresholds in milliseconds.
type LivenessConfig struct {
	IdleAfterMs int64 `yaml:"idle_after_ms" toml:"idle_after_ms" json:"idle_after_ms"`
	GoneAfterMs int64 `yaml:"gone_after_ms" toml:"gone_after_ms" json:"gone_after_ms"`
}

// IdleAfter returns the idle threshold as a duration.
func (l LivenessConfig) IdleAfter() time.Duration { return time.Duration(l.IdleAfterMs) * time.Millisecond }

// GoneAfter returns the gone threshold as a duration.
func (l LivenessConfig) GoneAfter() time.Duration { return time.Duration(l.GoneAfterMs) * time.Millisecond }

// DelegationsConfig holds delegation defaults.
type DelegationsConfig struct {
	Timeouts TimeoutsConfig `yaml:"timeouts" toml:"timeouts" json:"timeouts"`
}

// TimeoutsConfig is the default delegation expiry per urgency, in milliseconds.
type TimeoutsConfig struct {
	HighMs   int64 `yaml:"high_ms" toml:"high_ms" json:"high_ms"`
	NormalMs int64 `yaml:"normal_ms" toml:"normal_ms" json:"normal_ms"`
	LowMs    int64 `yaml:"low_ms" toml:"low_ms" json:"low_ms"`
}

// NotifyConfig configures the optional Redis event publisher.
// An empty RedisAddr disables publishing.
type NotifyConfig struct {
	RedisAddr string `yaml:"redis_addr" toml:"redis_addr" json:"redis_addr"`
	Channel   string `yaml:"channel" toml:"channel" json:"channel"`
}

// ─── Defaults ────────────────────────────────────────────────────────────────

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Version:        1,
		EmbeddingModel: "all-MiniLM-L6-v2",
		Archive: ArchiveConfig{
			AutoArchiveOnCommit:               true,
			AutoArchiveOnContextSwitch:        true,
			MaxBlackboardEntriesBeforeArchive: 500,
		},
		ContextAssembly: ContextAssemblyConfig{
			DefaultMaxTokens: 4000,
			Tokenizer:        "heuristic",
			PriorityWeights: PriorityWeights{
				Recency:            0.3,
				Relevance:          0.4,
				DecisionConfidence: 0.2,
				WarningBoost:       0.1,
				GraphConnectivity:  0.1,
			},
		},
		ConflictResolution: "human",
		Agents: AgentsConfig{
			Liveness: LivenessConfig{
				IdleAfterMs: 5 * 60 * 1000,
				GoneAfterMs: 30 * 60 * 1000,
			},
		},
		Delegations: DelegationsConfig{
			Timeouts: TimeoutsConfig{
				HighMs:   5 * 60 * 1000,
				NormalMs: 30 * 60 * 1000,
				LowMs:    4 * 60 * 60 * 1000,
			},
		},
		Notify: NotifyConfig{Channel: "twining:events"},
	}
}

// ─── Paths ───────────────────────────────────────────────────────────────────

// Dir returns the twining directory for a project root.
func Dir(projectRoot string) string {
	return filepath.Join(projectRoot, DirName)
}

// ─── Load / Init ─────────────────────────────────────────────────────────────

// Load reads the configuration from twiningDir. config.toml wins over
// config.yml when both exist. A missing file yields Default().
func Load(twiningDir string) (Config, error) {
	cfg := Default()

	if data, err := os.ReadFile(filepath.Join(twiningDir, tomlFile)); err == nil {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Default(), fmt.Errorf("config: parse %s: %w", tomlFile, err)
		}
		return cfg, nil
	} else if !os.IsNotExist(err) {
		return Default(), fmt.Errorf("config: read %s: %w", tomlFile, err)
	}

	data, err := os.ReadFile(filepath.Join(twiningDir, yamlFile))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Default(), fmt.Errorf("config: read %s: %w", yamlFile, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("config: parse %s: %w", yamlFile, err)
	}
	return cfg, nil
}

// Init creates the twining directory for projectRoot if needed, with its
// subdirectories, a default config.yml and a .gitignore. Existing files are
// left untouched. It returns the twining directory path.
func Init(projectRoot string) (string, error) {
	dir := Dir(projectRoot)
	for _, sub := range subdirs {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return "", fmt.Errorf("config: create %s: %w", sub, err)
		}
	}

	cfgPath := filepath.Join(dir, yamlFile)
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		data, err := yaml.Marshal(Default())
		if err != nil {
			return "", fmt.Errorf("config: marshal defaults: %w", err)
		}
		if err := os.WriteFile(cfgPath, data, 0o644); err != nil {
			return "", fmt.Errorf("config: write %s: %w", yamlFile, err)
		}
	}

	ignorePath := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(ignorePath); os.IsNotExist(err) {
		if err := os.WriteFile(ignorePath, []byte(gitignoreContent), 0o644); err != nil {
			return "", fmt.Errorf("config: write .gitignore: %w", err)
		}
	}

	return dir, nil
}
