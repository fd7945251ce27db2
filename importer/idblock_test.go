package importer_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/telescan/telescan/importer"
	"github.com/telescan/telescan/internal/storage"
)

func TestIDAllocatorFreshStart(t *testing.T) {
	dir := storage.NewMemDir()
	a, err := importer.NewIDAllocator(dir, 16)
	require.NoError(t, err)

	base, err := a.Allocate(5)
	require.NoError(t, err)
	require.Equal(t, uint64(0), base)

	base, err = a.Allocate(5)
	require.NoError(t, err)
	require.Equal(t, uint64(5), base)
}

func TestIDAllocatorRollsOverBlock(t *testing.T) {
	dir := storage.NewMemDir()
	a, err := importer.NewIDAllocator(dir, 10)
	require.NoError(t, err)

	base, err := a.Allocate(8)
	require.NoError(t, err)
	require.Equal(t, uint64(0), base)

	// Exceeds remaining capacity (2) in the current block: rolls to a
	// fresh block starting strictly after the first block's end (10).
	base, err = a.Allocate(3)
	require.NoError(t, err)
	require.GreaterOrEqual(t, base, uint64(10))
}

func TestIDAllocatorForfeitsOnIrregularShutdown(t *testing.T) {
	dir := storage.NewMemDir()
	a, err := importer.NewIDAllocator(dir, importer.DefaultBlockSize)
	require.NoError(t, err)
	_, err = a.Allocate(100)
	require.NoError(t, err)

	// Simulate a crash: truncate the persisted id-block file so only
	// the End field survived (no Next field written).
	raw, err := dir.ReadFile("importer/current_id_block")
	require.NoError(t, err)
	require.NoError(t, dir.Remove("importer/current_id_block"))
	truncated := raw[:8] // just the End uint64
	require.NoError(t, dir.WriteFile("importer/current_id_block", truncated))

	b2, err := importer.NewIDAllocator(dir, importer.DefaultBlockSize)
	require.NoError(t, err)

	first, err := b2.Allocate(1)
	require.NoError(t, err)
	// The recovered allocator must start at or beyond the forfeited
	// block's end, never reusing IDs below it.
	var end uint64
	require.Equal(t, 8, len(truncated))
	end = binary.LittleEndian.Uint64(truncated)
	require.GreaterOrEqual(t, first, end)
}
