package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/leonardosantosdev/imdb-analytics/internal/config"
	"github.com/leonardosantosdev/imdb-analytics/internal/logging"
	"github.com/leonardosantosdev/imdb-analytics/internal/metrics"
	"github.com/leonardosantosdev/imdb-analytics/internal/pipeline"
	"github.com/leonardosantosdev/imdb-analytics/internal/server"
	"github.com/leonardosantosdev/imdb-analytics/internal/snapshot"
)

const usage = `Usage: imdb-pipeline <command> [flags]

Commands:
  ingest      download the raw extracts into a new bronze snapshot
  transform   build a validated silver snapshot from a bronze snapshot
  metrics     publish the dashboard reports for a silver snapshot
  run         ingest, transform and metrics for one snapshot date
  serve       serve published reports and snapshot listings over HTTP
  snapshots   list complete snapshots of a layer (bronze or silver)

Flags:
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "imdb-pipeline: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" {
		fmt.Fprint(os.Stderr, usage)
		return errors.New("missing command")
	}
	command := args[0]

	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	dateFlag := fs.String("date", "", "Snapshot date in YYYY-MM-DD (default: today for ingest/run, latest otherwise)")
	keep := fs.Int("keep", 0, "Number of snapshots to retain (default: storage.keep)")
	force := fs.Bool("force", false, "Replace an existing snapshot for the same date")
	port := fs.String("port", "", "Listen port for serve (default: server.port)")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	// flag stops at the first positional argument; keep parsing after it
	var positional []string
	for fs.NArg() > 0 {
		positional = append(positional, fs.Arg(0))
		if err := fs.Parse(fs.Args()[1:]); err != nil {
			return err
		}
	}
	allowed := 0
	if command == "snapshots" {
		allowed = 1
	}
	if len(positional) > allowed {
		return fmt.Errorf("unexpected arguments %v", positional[allowed:])
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if *keep < 0 {
		return fmt.Errorf("-keep must be at least 1, got %d", *keep)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	opts := pipeline.Options{Keep: *keep, Force: *force}
	if *dateFlag != "" {
		date, err := snapshot.ParseDate(*dateFlag)
		if err != nil {
			return err
		}
		opts.Date = &date
	}

	logger := logging.NewComponentLogger(cfg.Service.Name, cfg.Service.Version)
	m := metrics.New(cfg.Metrics)
	p := pipeline.New(cfg, logger, m)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command {
	case "ingest":
		_, err = p.Ingest(ctx, opts, "")
	case "transform":
		_, err = p.Transform(ctx, opts, "")
	case "metrics":
		_, err = p.Analytics(ctx, opts, "")
	case "run":
		_, err = p.Run(ctx, opts)
	case "serve":
		addr := ":" + cfg.Server.Port
		if *port != "" {
			addr = ":" + *port
		}
		stores := map[string]*snapshot.Store{"bronze": p.Bronze(), "silver": p.Silver()}
		srv := server.New(cfg.Reports.OutputDir, stores, m, logger)
		if err := srv.ListenAndServe(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case "snapshots":
		var layer string
		if len(positional) > 0 {
			layer = positional[0]
		}
		return listSnapshots(stdout, p, layer)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", command)
	}

	pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if perr := m.Push(pushCtx); perr != nil {
		logger.Warn().Err(perr).Msg("Metrics push failed")
	}
	if err != nil {
		logger.Error().Err(err).Str("command", command).Msg("Command failed")
	}
	return err
}

func listSnapshots(w io.Writer, p *pipeline.Pipeline, layer string) error {
	var store *snapshot.Store
	switch layer {
	case "", "silver":
		layer, store = "silver", p.Silver()
	case "bronze":
		store = p.Bronze()
	default:
		return fmt.Errorf("unknown layer %q, want bronze or silver", layer)
	}

	snaps, err := store.List()
	if err != nil {
		return err
	}
	out := make([]server.SnapshotInfo, len(snaps))
	for i, s := range snaps {
		out[i] = server.SnapshotInfo{Date: s.DateString(), Path: s.Path}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{"layer": layer, "snapshots": out})
}
