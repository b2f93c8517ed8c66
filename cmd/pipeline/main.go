// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

// Package main implements the one-shot pipeline binary for external
// schedulers (cron, Kubernetes CronJobs, Airflow BashOperator):
//
//	pipeline run                      # one staging run with the configured retry policy
//	pipeline sweep [-retention-hours N]
//
// Configuration is read the same way as the server (defaults, optional
// YAML file, environment). The run report or sweep result is printed to
// stdout as JSON. The exit status is 1 on failure and 2 on usage errors.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/gadgetgrove/internal/artifacts"
	"github.com/tomtom215/gadgetgrove/internal/config"
	"github.com/tomtom215/gadgetgrove/internal/logging"
	"github.com/tomtom215/gadgetgrove/internal/staging"
	"github.com/tomtom215/gadgetgrove/internal/transform"
	"github.com/tomtom215/gadgetgrove/internal/warehouse"
)

// Exit codes.
const (
	exitOK    = 0
	exitFail  = 1
	exitUsage = 2
)

// Options holds the parsed command line.
type Options struct {
	Command        string
	RetentionHours int
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "configuration: %v\n", err)
		return exitFail
	}
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	switch opts.Command {
	case "run":
		var report *staging.RunReport
		report, err = runPipeline(ctx, cfg)
		if report != nil {
			printResult(stdout, report)
		}
	case "sweep":
		window := cfg.Retention.Window()
		if opts.RetentionHours >= 0 {
			window = time.Duration(opts.RetentionHours) * time.Hour
		}
		var res *staging.SweepResult
		res, err = staging.NewSweeper(cfg.Staging.ArchiveDir, artifacts.NewMarkdown(cfg.Staging.ReportsDir)).Sweep(ctx, window)
		if res != nil {
			printResult(stdout, res)
		}
	}
	if err != nil {
		logging.Error().Err(err).Str("command", opts.Command).Msg("Pipeline command failed")
		return exitFail
	}
	return exitOK
}

func printResult(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logging.Error().Err(err).Msg("Failed to write result")
	}
}

func parseFlags(args []string, output io.Writer) (Options, error) {
	opts := Options{RetentionHours: -1}
	if len(args) == 0 {
		return opts, errors.New("usage: pipeline run|sweep [-retention-hours N]")
	}
	opts.Command = args[0]
	switch opts.Command {
	case "run", "sweep":
	case "-h", "-help", "--help":
		return opts, flag.ErrHelp
	default:
		return opts, fmt.Errorf("unknown command %q, want run or sweep", opts.Command)
	}

	fs := flag.NewFlagSet("pipeline "+opts.Command, flag.ContinueOnError)
	fs.SetOutput(output)
	if opts.Command == "sweep" {
		fs.IntVar(&opts.RetentionHours, "retention-hours", -1, "Delete archived files older than N hours (default: RETENTION_HOURS)")
	}
	if err := fs.Parse(args[1:]); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	var badHours bool
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "retention-hours" && opts.RetentionHours < 0 {
			badHours = true
		}
	})
	if badHours {
		return opts, fmt.Errorf("-retention-hours must be >= 0, got %d", opts.RetentionHours)
	}
	return opts, nil
}

// runPipeline performs one staging run. The warehouse is opened only in
// loader mode; exec mode hands the batch to an external job.
func runPipeline(ctx context.Context, cfg *config.Config) (*staging.RunReport, error) {
	var store transform.RowStore
	if cfg.Transform.Mode != transform.ModeExec {
		db, err := warehouse.Open(ctx, warehouse.ConfigFrom(cfg.Warehouse))
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := db.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing warehouse")
			}
		}()
		store = db
	}

	p, err := staging.FromConfig(cfg, store, artifacts.NewMarkdown(cfg.Staging.ReportsDir))
	if err != nil {
		return nil, err
	}
	return p.RunWithRetry(ctx)
}
