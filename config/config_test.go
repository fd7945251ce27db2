package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/telescan/telescan/config"
)

// Load starts from Default() so a TOML file overriding one key leaves
// every other key at its default.
func TestLoadOverridesOnlyNamedKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "telescan.toml")
	require.NoError(t, os.WriteFile(path, []byte("max-queries = 4\n"), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	require.Equal(t, 4, cfg.MaxQueries)
	require.Equal(t, config.Default().MaxPartitionSize, cfg.MaxPartitionSize)
	require.Equal(t, config.Default().TastePartitions, cfg.TastePartitions)
}

// Apply runs functional options over a copy, leaving the receiver
// untouched.
func TestApplyLeavesReceiverUntouched(t *testing.T) {
	base := config.Default()
	derived := base.Apply(config.WithMaxQueries(1), config.WithDBDirectory("/tmp/x"))

	require.Equal(t, config.Default().MaxQueries, base.MaxQueries)
	require.Equal(t, 1, derived.MaxQueries)
	require.Equal(t, "/tmp/x", derived.DBDirectory)
}

func TestSynopsisConfigProjectsFPRates(t *testing.T) {
	cfg := config.Default().Apply(config.WithMaxPartitionSize(500))
	sc := cfg.SynopsisConfig()

	require.Equal(t, uint64(500), sc.MaxElements)
	require.Equal(t, cfg.AddressSynopsisFPRate, sc.AddressFPRate)
	require.Equal(t, cfg.StringSynopsisFPRate, sc.StringFPRate)
}
