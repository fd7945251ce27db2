// Command telescand wires the configuration, index coordinator, and
// query scheduler into a CLI exposing ingest, query, and serve
// subcommands (spec.md §1 Non-goals exclude source readers and CLI
// parsing from the core; this binary is the outer shell that supplies
// them, grounded on go-ethereum's cmd/geth use of urfave/cli/v2).
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/telescan/telescan/bitmap"
	"github.com/telescan/telescan/config"
	"github.com/telescan/telescan/coordinator"
	"github.com/telescan/telescan/expr/parser"
	"github.com/telescan/telescan/importer"
	"github.com/telescan/telescan/internal/metrics"
	"github.com/telescan/telescan/internal/storage"
	"github.com/telescan/telescan/log"
	"github.com/telescan/telescan/partition"
	"github.com/telescan/telescan/schema"
	"github.com/telescan/telescan/scheduler"
	"github.com/telescan/telescan/view"
)

var (
	dbFlag = &cli.StringFlag{
		Name:  "db",
		Usage: "database directory",
		Value: "./db",
	}
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "path to a TOML configuration file",
	}
	layoutFlag = &cli.StringFlag{
		Name:     "layout",
		Usage:    "path to a JSON layout declaration",
		Required: true,
	}
	addrFlag = &cli.StringFlag{
		Name:  "addr",
		Usage: "address to serve /metrics on",
		Value: ":9090",
	}
)

func main() {
	app := &cli.App{
		Name:  "telescand",
		Usage: "telemetry search engine: query and indexing core",
		Commands: []*cli.Command{
			ingestCommand,
			queryCommand,
			serveCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Root().Crit("telescand exiting", "err", err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if path := c.String(configFlag.Name); path != "" {
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return config.Config{}, fmt.Errorf("load config: %w", err)
		}
	}
	if db := c.String(dbFlag.Name); db != "" {
		cfg = cfg.Apply(config.WithDBDirectory(db))
	}
	return cfg, nil
}

func openCoordinator(cfg config.Config) (*coordinator.Coordinator, *metrics.Registry, error) {
	reg := metrics.NewRegistry()
	dir := storage.NewOSDir(cfg.DBDirectory)
	coord, err := coordinator.Open(cfg, dir, partition.GobCodec{}, reg)
	if err != nil {
		return nil, nil, fmt.Errorf("open coordinator: %w", err)
	}
	return coord, reg, nil
}

var ingestCommand = &cli.Command{
	Name:      "ingest",
	Usage:     "append newline-delimited JSON events from a file (or stdin with '-')",
	ArgsUsage: "<events.jsonl>",
	Flags:     []cli.Flag{dbFlag, configFlag, layoutFlag},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.Exit("ingest requires exactly one events file argument (or -)", 1)
		}
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		layout, err := loadLayout(c.String(layoutFlag.Name))
		if err != nil {
			return err
		}
		coord, _, err := openCoordinator(cfg)
		if err != nil {
			return err
		}
		dir := storage.NewOSDir(cfg.DBDirectory)
		alloc, err := importer.NewIDAllocator(dir, cfg.IDBlockSize)
		if err != nil {
			return fmt.Errorf("open id allocator: %w", err)
		}

		var in io.Reader = os.Stdin
		if path := c.Args().First(); path != "-" {
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open events file: %w", err)
			}
			defer f.Close()
			in = f
		}

		n, err := ingestLines(coord, alloc, layout, in)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "ingested %d events\n", n)
		return nil
	},
}

// ingestLines feeds each non-empty line (a flat JSON object keyed by
// field name) to the coordinator as a one-row slice. Batching multiple
// lines per slice is left to a future bulk-loading path; one row per
// slice is the simplest correct realization of the stream-stage
// contract.
func ingestLines(coord *coordinator.Coordinator, alloc *importer.IDAllocator, layout schema.Layout, in io.Reader) (int, error) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	count := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var row map[string]any
		if err := json.Unmarshal(line, &row); err != nil {
			return count, fmt.Errorf("parse event line %d: %w", count+1, err)
		}

		id, err := alloc.Allocate(1)
		if err != nil {
			return count, fmt.Errorf("allocate id: %w", err)
		}

		columns := make(map[string][]view.Value, len(layout.Fields))
		for _, f := range layout.Fields {
			if f.HasAttribute("skip") {
				continue
			}
			v, err := decodeCell(f.Type, row[f.Name])
			if err != nil {
				return count, fmt.Errorf("decode event line %d field %s: %w", count+1, f.Name, err)
			}
			columns[f.QualifiedName(layout.Name)] = []view.Value{v}
		}
		slice := partition.Slice{BaseID: id, Rows: 1, Columns: columns}
		if err := coord.Ingest(layout, slice); err != nil {
			return count, fmt.Errorf("ingest event line %d: %w", count+1, err)
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("scan events: %w", err)
	}
	return count, nil
}

var queryCommand = &cli.Command{
	Name:      "query",
	Usage:     "run one query against the database and print matching IDs",
	ArgsUsage: "<query>",
	Flags:     []cli.Flag{dbFlag, configFlag},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.Exit("query requires exactly one query string argument", 1)
		}
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		coord, reg, err := openCoordinator(cfg)
		if err != nil {
			return err
		}
		sched := scheduler.New(coord, cfg, reg)

		e, err := parser.Parse(c.Args().First())
		if err != nil {
			return cli.Exit(fmt.Sprintf("parse query: %v", err), 1)
		}

		h := &printHandler{w: c.App.Writer}
		ctx := context.Background()
		queryID, total, scheduled, err := sched.Lookup(ctx, e, h)
		if err != nil {
			return fmt.Errorf("lookup: %w", err)
		}
		fmt.Fprintf(c.App.Writer, "candidates=%d scheduled=%d\n", total, scheduled)
		remaining := total - scheduled
		for remaining > 0 {
			batch := cfg.TastePartitions
			if batch > remaining {
				batch = remaining
			}
			n, err := sched.Schedule(ctx, queryID, batch, h)
			if err != nil {
				return fmt.Errorf("schedule: %w", err)
			}
			if n == 0 {
				break
			}
			remaining -= n
		}
		h.printSummary()
		return nil
	},
}

// printHandler accumulates one query's hit-set as it streams in,
// printing a sorted summary once the caller is done paging.
type printHandler struct {
	w     io.Writer
	hits  []uint64
	warns int
}

func (h *printHandler) Deliver(partitionID uuid.UUID, bm *bitmap.Bitmap) {
	h.hits = append(h.hits, bm.ToSortedSlice()...)
}

func (h *printHandler) Warn(partitionID uuid.UUID, err error) {
	h.warns++
}

func (h *printHandler) printSummary() {
	sort.Slice(h.hits, func(i, j int) bool { return h.hits[i] < h.hits[j] })
	w := h.w
	if w == nil {
		w = os.Stdout
	}
	for _, id := range h.hits {
		fmt.Fprintf(w, "%d\n", id)
	}
	if h.warns > 0 {
		fmt.Fprintf(w, "warnings: %d partitions skipped\n", h.warns)
	}
}

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "expose /metrics and accept line-oriented queries on stdin",
	Flags: []cli.Flag{dbFlag, configFlag, addrFlag},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		coord, reg, err := openCoordinator(cfg)
		if err != nil {
			return err
		}
		sched := scheduler.New(coord, cfg, reg)

		promReg := prometheus.NewRegistry()
		reg.MustRegister(promReg)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: c.String(addrFlag.Name), Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Root().Error("metrics server stopped", "err", err)
			}
		}()

		l := log.Root().New("component", "repl")
		l.Info("ready", "addr", c.String(addrFlag.Name))
		return runREPL(context.Background(), sched, os.Stdin, c.App.Writer)
	},
}

func runREPL(ctx context.Context, sched *scheduler.Scheduler, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		e, err := parser.Parse(line)
		if err != nil {
			fmt.Fprintln(out, "parse error:", err)
			continue
		}
		h := &printHandler{w: out}
		queryID, total, scheduled, err := sched.Lookup(ctx, e, h)
		if err != nil {
			fmt.Fprintln(out, "lookup error:", err)
			continue
		}
		fmt.Fprintf(out, "query=%s candidates=%d scheduled=%d\n", queryID, total, scheduled)
		h.printSummary()
	}
	return scanner.Err()
}
