// Package config defines telescan's recognized configuration keys and
// loads them from TOML (spec.md §6 "Configuration (recognized keys)").
package config

import (
	"time"

	"github.com/BurntSushi/toml"

	"github.com/telescan/telescan/importer"
	"github.com/telescan/telescan/metaindex"
)

// Config holds every recognized key. Field names map to kebab-case TOML
// keys via the `toml` struct tags below.
type Config struct {
	MaxPartitionSize      uint64        `toml:"max-partition-size"`
	MaxResidentPartitions int           `toml:"max-resident-partitions"`
	TastePartitions       int           `toml:"taste-partitions"`
	MaxQueries            int           `toml:"max-queries"`
	MetaIndexFPRate       float64       `toml:"meta-index-fp-rate"`
	AddressSynopsisFPRate float64       `toml:"address-synopsis-fp-rate"`
	StringSynopsisFPRate  float64       `toml:"string-synopsis-fp-rate"`
	MaxContainerElements  int           `toml:"max-container-elements"`
	MaxStringSize         int           `toml:"max-string-size"`
	DBDirectory           string        `toml:"db-directory"`
	TelemetryRate         time.Duration `toml:"telemetry-rate"`
	IDBlockSize           uint64        `toml:"id-block-size"`
}

// Default returns the configuration spec.md §6 implies when a key is
// absent: generous partition capacity, a modest in-memory cache, and
// the library defaults for Bloom sizing and container/string limits.
func Default() Config {
	return Config{
		MaxPartitionSize:      1_000_000,
		MaxResidentPartitions: 128,
		TastePartitions:       8,
		MaxQueries:            64,
		MetaIndexFPRate:       0.01,
		AddressSynopsisFPRate: 0, // 0: use MetaIndexFPRate
		StringSynopsisFPRate:  0, // 0: use MetaIndexFPRate
		MaxContainerElements:  256,
		MaxStringSize:         1024,
		DBDirectory:           "./db",
		TelemetryRate:         10 * time.Second,
		IDBlockSize:           importer.DefaultBlockSize,
	}
}

// Load reads path as TOML, starting from Default() so every unset key
// keeps its default value (BurntSushi/toml decodes into the existing
// struct rather than zeroing it first).
func Load(path string) (Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, &cfg)
	return cfg, err
}

// SynopsisConfig projects the Bloom-sizing keys into the
// metaindex.SynopsisConfig a partition's synopsis set is built with.
// MetaIndexFPRate becomes the default rate that AddressSynopsisFPRate and
// StringSynopsisFPRate override per type when set.
func (c Config) SynopsisConfig() metaindex.SynopsisConfig {
	return metaindex.SynopsisConfig{
		MaxElements:   c.MaxPartitionSize,
		FPRate:        c.MetaIndexFPRate,
		AddressFPRate: c.AddressSynopsisFPRate,
		StringFPRate:  c.StringSynopsisFPRate,
	}
}

// Option mutates a Config; used by callers (tests, the CLI) that want
// to override a handful of keys without hand-writing a TOML file.
type Option func(*Config)

func WithDBDirectory(dir string) Option {
	return func(c *Config) { c.DBDirectory = dir }
}

func WithMaxPartitionSize(n uint64) Option {
	return func(c *Config) { c.MaxPartitionSize = n }
}

func WithMaxResidentPartitions(n int) Option {
	return func(c *Config) { c.MaxResidentPartitions = n }
}

func WithTastePartitions(n int) Option {
	return func(c *Config) { c.TastePartitions = n }
}

func WithMaxQueries(n int) Option {
	return func(c *Config) { c.MaxQueries = n }
}

// Apply runs opts in order over a copy of c and returns the result.
func (c Config) Apply(opts ...Option) Config {
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
