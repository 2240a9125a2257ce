// Package config loads playbookd configuration from YAML and the
// environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/fyrsmithlabs/playbookd/internal/curation"
	"github.com/fyrsmithlabs/playbookd/internal/evidence"
	"github.com/fyrsmithlabs/playbookd/internal/llm"
	"github.com/fyrsmithlabs/playbookd/internal/logging"
	"github.com/fyrsmithlabs/playbookd/internal/store"
	"github.com/fyrsmithlabs/playbookd/internal/validation"
)

// envPrefix namespaces environment overrides, e.g.
// PLAYBOOKD_LOGGING_LEVEL=debug -> logging.level.
const envPrefix = "PLAYBOOKD_"

// maxConfigFileSize bounds the config file to keep a corrupted or
// malicious file from exhausting memory.
const maxConfigFileSize = 1024 * 1024

// Config is the full playbookd configuration.
type Config struct {
	Logging    logging.Config        `koanf:"logging"`
	Store      store.Config          `koanf:"store"`
	Curation   curation.Config       `koanf:"curation"`
	Validation validation.Config     `koanf:"validation"`
	Evidence   evidence.ClientConfig `koanf:"evidence"`
	LLM        llm.Config            `koanf:"llm"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Logging:    logging.DefaultConfig(),
		Store:      store.DefaultConfig(),
		Curation:   curation.DefaultConfig(),
		Validation: validation.DefaultConfig(),
		LLM:        llm.DefaultConfig(),
	}
}

// DefaultPath returns the standard config file location,
// ~/.config/playbookd/config.yaml.
func DefaultPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving user config dir: %w", err)
	}
	return filepath.Join(base, "playbookd", "config.yaml"), nil
}

// Load reads configuration with the usual precedence: environment
// variables over the YAML file over built-in defaults. A missing file is
// not an error; an unreadable or oversized one is.
func Load(configPath string) (Config, error) {
	cfg := Default()

	if configPath == "" {
		var err error
		if configPath, err = DefaultPath(); err != nil {
			return cfg, err
		}
	}

	k := koanf.New(".")

	if info, err := os.Stat(configPath); err == nil {
		if info.Size() > maxConfigFileSize {
			return cfg, fmt.Errorf("config file %s exceeds %d bytes", configPath, maxConfigFileSize)
		}
		content, err := os.ReadFile(configPath)
		if err != nil {
			return cfg, fmt.Errorf("reading config file %s: %w", configPath, err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return cfg, fmt.Errorf("parsing config file %s: %w", configPath, err)
		}
	}

	// Environment overrides: strip the prefix, lowercase, and split on
	// the first underscore into section.field_name.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return cfg, fmt.Errorf("loading environment overrides: %w", err)
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Validate rejects configurations that would misbehave silently.
func (c Config) Validate() error {
	if c.Curation.DedupSimilarityThreshold < 0 || c.Curation.DedupSimilarityThreshold > 1 {
		return fmt.Errorf("curation.dedup_similarity_threshold must be in [0,1], got %v", c.Curation.DedupSimilarityThreshold)
	}
	if c.Curation.Scoring.HalfLifeDays <= 0 {
		return fmt.Errorf("curation.scoring.half_life_days must be positive, got %v", c.Curation.Scoring.HalfLifeDays)
	}
	if c.Validation.LookbackDays < 0 {
		return fmt.Errorf("validation.lookback_days must not be negative, got %d", c.Validation.LookbackDays)
	}
	switch c.Curation.PruneMode {
	case curation.PruneTombstone, curation.PruneDelete:
	default:
		return fmt.Errorf("curation.prune_mode must be tombstone or delete, got %q", c.Curation.PruneMode)
	}
	return nil
}
