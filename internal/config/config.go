// Package config loads pagevault's YAML configuration file, applying the
// same style of defensive defaulting pkg/logger and pkg/telemetry use for
// their own config structs.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pagevaultdb/pagevault/pkg/logger"
	"github.com/pagevaultdb/pagevault/pkg/telemetry"
)

// Defaults for zero-valued fields, per SPEC_FULL.md §2.2.
const (
	DefaultPoolSize   = 64
	DefaultK          = 2
	DefaultBucketSize = 4
)

// Config mirrors the option table in spec.md §6, plus the ambient stack's
// own configuration blocks.
type Config struct {
	PoolSize   int    `yaml:"pool_size"`
	K          int    `yaml:"k"`
	BucketSize int    `yaml:"bucket_size"`
	DataFile   string `yaml:"data_file"`
	WALDir     string `yaml:"wal_dir"`

	Logger    logger.Config    `yaml:"logger"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// Load reads and unmarshals the YAML file at path, applying defaults to
// any zero-valued field spec.md leaves optional.
func Load(path string) (Config, error) {
	var cfg Config

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultPoolSize
	}
	if cfg.K <= 0 {
		cfg.K = DefaultK
	}
	if cfg.BucketSize <= 0 {
		cfg.BucketSize = DefaultBucketSize
	}
	if cfg.DataFile == "" {
		cfg.DataFile = "pagevault.db"
	}
	if cfg.WALDir == "" {
		cfg.WALDir = "pagevault-wal"
	}
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Logger.Format == "" {
		cfg.Logger.Format = "console"
	}
	if cfg.Logger.OutputFile == "" {
		cfg.Logger.OutputFile = "stdout"
	}
	if cfg.Logger.SampleInitial <= 0 {
		cfg.Logger.SampleInitial = 100
	}
	if cfg.Logger.SampleThereafter <= 0 {
		cfg.Logger.SampleThereafter = 100
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "pagevaultd"
	}
}
