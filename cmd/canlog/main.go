// Command canlog decodes Vector BLF CAN logs against DBC definitions and
// exports, plots or serves the decoded signals.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/canlog/internal/fsutil"
	"github.com/banshee-data/canlog/internal/httputil"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{
		ctx:    ctx,
		stdout: os.Stdout,
		stderr: os.Stderr,
		fs:     fsutil.OSFileSystem{},
		client: httputil.NewStandardClient(&http.Client{Timeout: 5 * time.Minute}),
	}
	if err := a.run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Printf("canlog: %v", err)
		os.Exit(1)
	}
}

// app carries the process environment so commands can run under test.
type app struct {
	ctx    context.Context
	stdout io.Writer
	stderr io.Writer
	fs     fsutil.FileSystem
	client httputil.HTTPClient
}

// errUsage marks a command line that could not be understood. Usage has
// already been printed.
var errUsage = errors.New("usage error")

func (a *app) run(args []string) error {
	if len(args) < 1 {
		a.printUsage()
		return errUsage
	}

	command, rest := args[0], args[1:]
	switch command {
	case "stats":
		return a.handleStats(rest)
	case "preview":
		return a.handlePreview(rest)
	case "signals":
		return a.handleSignals(rest)
	case "decimate":
		return a.handleDecimate(rest)
	case "summary":
		return a.handleSummary(rest)
	case "export-csv":
		return a.handleExportCSV(rest)
	case "export-sqlite":
		return a.handleExportSQLite(rest)
	case "plot":
		return a.handlePlot(rest)
	case "serve":
		return a.handleServe(rest)
	case "version":
		a.printVersion()
		return nil
	case "help", "-h", "--help":
		a.printUsage()
		return nil
	default:
		fmt.Fprintf(a.stderr, "Unknown command: %s\n\n", command)
		a.printUsage()
		return errUsage
	}
}

func (a *app) printUsage() {
	fmt.Fprintln(a.stdout, `canlog - CAN log decoder for Vector BLF files

Usage: canlog <command> [options]

Commands:
  stats          Frame count, time span and signal count of a log
  preview        First frames of a log (-smart decodes only a prefix of large files)
  signals        Qualified names of every decoded signal
  decimate       Signals downsampled to at most -max-points samples
  summary        Per-signal count, min, max, mean, std dev and median
  export-csv     One CSV row per frame, optionally with signal columns
  export-sqlite  Store frames and signal values in a SQLite database
  plot           Render decimated signals as PNG and/or HTML charts
  serve          Run the HTTP API
  version        Show canlog version
  help           Show this help message

Common Flags:
  -log <path|url>     BLF log file, or an http(s) URL to fetch it from
  -dbc <file>         DBC definition file, repeat once per channel
  -channel <n>        Channel for the matching -dbc, repeat in the same order
                      (defaults to 1..N when omitted)
  -config <file>      JSON configuration (see config/canlog.defaults.json)

Signals are named <channel tag>.<signal>, e.g. CAN1.EngineSpeed.

Examples:
  # Frame statistics for a two-bus log
  canlog stats -log drive.blf -dbc engine.dbc -channel 1 -dbc chassis.dbc -channel 2

  # Two signals, 500 points, without holding the decoded log in memory
  canlog decimate -log drive.blf -dbc engine.dbc -max-points 500 -stream \
      -signal CAN1.EngineSpeed -signal CAN1.Throttle

  # Full CSV export
  canlog export-csv -log drive.blf -dbc engine.dbc -o drive.csv

  # Serve the API with uploads limited by a config file
  canlog serve -config canlog.json -listen :8088`)
}
