package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/telescan/telescan/config"
	"github.com/telescan/telescan/coordinator"
	"github.com/telescan/telescan/expr/parser"
	"github.com/telescan/telescan/importer"
	"github.com/telescan/telescan/internal/metrics"
	"github.com/telescan/telescan/internal/storage"
	"github.com/telescan/telescan/partition"
	"github.com/telescan/telescan/schema"
	"github.com/telescan/telescan/scheduler"
)

// Tests that the ingest command exists and has the required layout flag.
func TestIngestCommandFlags(t *testing.T) {
	app := cli.NewApp()
	app.Writer = io.Discard
	app.Commands = []*cli.Command{ingestCommand}

	var layoutFlagFound bool
	for _, flag := range ingestCommand.Flags {
		if flag.Names()[0] == layoutFlag.Name {
			layoutFlagFound = true
			break
		}
	}
	require.True(t, layoutFlagFound, "layout flag not registered")

	require.NoError(t, app.Run([]string{"telescand", "ingest", "--help"}))
}

// Tests that the query and serve commands are registered with their
// expected flags, mirroring go-ethereum's own cmd/geth flag-presence
// tests.
func TestQueryAndServeCommandFlags(t *testing.T) {
	app := cli.NewApp()
	app.Writer = io.Discard
	app.Commands = []*cli.Command{queryCommand, serveCommand}

	require.NoError(t, app.Run([]string{"telescand", "query", "--help"}))
	require.NoError(t, app.Run([]string{"telescand", "serve", "--help"}))

	var addrFlagFound bool
	for _, flag := range serveCommand.Flags {
		if flag.Names()[0] == addrFlag.Name {
			addrFlagFound = true
			break
		}
	}
	require.True(t, addrFlagFound, "addr flag not registered")
}

func testLayout() schema.Layout {
	return schema.Layout{
		Name: "conn",
		Fields: []schema.Field{
			{Name: "id.orig_h", Type: "addr"},
			{Name: "service", Type: "string"},
		},
	}
}

// ingestLines turns newline-delimited JSON rows into partition slices;
// this exercises the full ingest -> query round trip through the
// coordinator and scheduler without touching the real filesystem.
func TestIngestLinesThenQuery(t *testing.T) {
	layout := testLayout()
	dir := storage.NewMemDir()
	cfg := config.Default().Apply(config.WithMaxPartitionSize(100))
	reg := metrics.NewRegistry()

	coord, err := coordinator.Open(cfg, dir, partition.GobCodec{}, reg)
	require.NoError(t, err)
	alloc, err := importer.NewIDAllocator(dir, cfg.IDBlockSize)
	require.NoError(t, err)

	input := strings.NewReader(
		`{"id.orig_h":"10.0.0.1","service":"http"}` + "\n" +
			`{"id.orig_h":"10.0.0.2","service":"dns"}` + "\n",
	)
	n, err := ingestLines(coord, alloc, layout, input)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	sched := scheduler.New(coord, cfg, reg)
	e, err := parser.Parse(`service == "http"`)
	require.NoError(t, err)

	h := &printHandler{w: &bytes.Buffer{}}
	_, total, _, err := sched.Lookup(context.Background(), e, h)
	require.NoError(t, err)
	require.GreaterOrEqual(t, total, 1)
}
