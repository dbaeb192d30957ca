package main

import (
	"fmt"
	"io"
	"log"

	"github.com/banshee-data/canlog/internal/api"
	"github.com/banshee-data/canlog/internal/canerr"
	"github.com/banshee-data/canlog/internal/chart"
	"github.com/banshee-data/canlog/internal/decimate"
	"github.com/banshee-data/canlog/internal/export"
	"github.com/banshee-data/canlog/internal/fsutil"
	"github.com/banshee-data/canlog/internal/monitoring"
	"github.com/banshee-data/canlog/internal/progress"
	"github.com/banshee-data/canlog/internal/session"
	"github.com/banshee-data/canlog/internal/store"
	"github.com/banshee-data/canlog/internal/summary"
	"github.com/banshee-data/canlog/internal/version"
)

func (a *app) printVersion() {
	fmt.Fprintf(a.stdout, "canlog version %s (git %s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
}

// openSession loads the inputs and decodes the whole log.
func (a *app) openSession(f *inputFlags) (*session.Session, *inputs, error) {
	in, err := a.load(f)
	if err != nil {
		return nil, nil, err
	}
	sess, err := session.New(in.data, in.texts, in.channels)
	if err != nil {
		return nil, nil, err
	}
	log.Printf("decoded %s: %d frames, %d signals", in.source, sess.Stats().FrameCount, sess.Stats().SignalCount)
	return sess, in, nil
}

// checkMaxPoints rejects a negative -max-points; zero selects the default.
func checkMaxPoints(n int) error {
	if n < 0 {
		return canerr.Wrap(canerr.ErrInputShape, nil, "-max-points must not be negative, got %d", n)
	}
	return nil
}

func selection(names []string) decimate.Selection {
	if len(names) == 0 {
		return decimate.All()
	}
	return decimate.Only(names...)
}

func (a *app) handleStats(args []string) error {
	fs := a.newFlagSet("stats")
	var in inputFlags
	in.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	sess, _, err := a.openSession(&in)
	if err != nil {
		return err
	}
	return a.writeJSON(sess.Stats())
}

func (a *app) handlePreview(args []string) error {
	fs := a.newFlagSet("preview")
	var in inputFlags
	in.register(fs)
	n := fs.Int("n", -1, "number of frames (default preview_frames from config)")
	smart := fs.Bool("smart", false, "decode only a prefix of large logs")
	fileSize := fs.Int64("file-size", 0, "declared size of the full log when -log is a prefix (default: its size)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	loaded, err := a.load(&in)
	if err != nil {
		return err
	}
	if *n < 0 {
		*n = loaded.cfg.GetPreviewFrames()
	}

	if *smart {
		declared := loaded.size
		if *fileSize > 0 {
			declared = *fileSize
		}
		p := session.PolicyFromConfig(loaded.cfg)
		p.Frames = *n
		recs, err := session.LoadPreviewSmart(loaded.data, loaded.texts, loaded.channels, declared, p)
		if err != nil {
			return err
		}
		return a.writeJSON(recs)
	}

	sess, err := session.New(loaded.data, loaded.texts, loaded.channels)
	if err != nil {
		return err
	}
	return a.writeJSON(sess.Preview(*n))
}

func (a *app) handleSignals(args []string) error {
	fs := a.newFlagSet("signals")
	var in inputFlags
	in.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	sess, _, err := a.openSession(&in)
	if err != nil {
		return err
	}
	return a.writeJSON(sess.Signals())
}

func (a *app) handleDecimate(args []string) error {
	fs := a.newFlagSet("decimate")
	var in inputFlags
	in.register(fs)
	var signals stringList
	fs.Var(&signals, "signal", "signal to include, repeatable (default: all)")
	maxPoints := fs.Int("max-points", 0, "maximum samples (default default_max_points from config)")
	stream := fs.Bool("stream", false, "decimate in two passes without keeping decoded frames")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := checkMaxPoints(*maxPoints); err != nil {
		return err
	}

	loaded, err := a.load(&in)
	if err != nil {
		return err
	}
	if *maxPoints == 0 {
		*maxPoints = loaded.cfg.GetDefaultMaxPoints()
	}
	sel := selection(signals)

	var res decimate.Result
	if *stream {
		tables, err := loaded.tables()
		if err != nil {
			return err
		}
		sink := progress.Func(monitoring.ProgressLogger("decimate"))
		res, err = export.DecimatedStream(loaded.data, tables, *maxPoints, sel, sink, export.OptionsFromConfig(loaded.cfg))
		if err != nil {
			return err
		}
	} else {
		sess, err := session.New(loaded.data, loaded.texts, loaded.channels)
		if err != nil {
			return err
		}
		res = sess.Decimated(*maxPoints, sel)
	}
	return a.writeJSON(res)
}

func (a *app) handleSummary(args []string) error {
	fs := a.newFlagSet("summary")
	var in inputFlags
	in.register(fs)
	var signals stringList
	fs.Var(&signals, "signal", "signal to summarise, repeatable (default: all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	sess, _, err := a.openSession(&in)
	if err != nil {
		return err
	}
	return a.writeJSON(summary.Compute(sess.Frames(), signals...))
}

func (a *app) handleExportCSV(args []string) error {
	fs := a.newFlagSet("export-csv")
	var in inputFlags
	in.register(fs)
	var signals stringList
	fs.Var(&signals, "signal", "signal column to append, repeatable")
	out := fs.String("o", "-", "output file, - for stdout")
	stream := fs.Bool("stream", false, "write rows while decoding, fixed columns only")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *stream && len(signals) > 0 {
		return fmt.Errorf("-signal cannot be combined with -stream")
	}

	loaded, err := a.load(&in)
	if err != nil {
		return err
	}

	return a.withOutput(*out, func(w io.Writer) error {
		if *stream {
			tables, err := loaded.tables()
			if err != nil {
				return err
			}
			sink := progress.Func(monitoring.ProgressLogger("csv"))
			rows, err := export.WriteCSVStream(w, loaded.data, tables, sink, export.OptionsFromConfig(loaded.cfg))
			if err != nil {
				return err
			}
			log.Printf("wrote %d rows", rows)
			return nil
		}
		sess, err := session.New(loaded.data, loaded.texts, loaded.channels)
		if err != nil {
			return err
		}
		return sess.ExportCSV(w, signals)
	})
}

// withOutput runs fn against stdout for "-" or "", otherwise against the
// named file, created with its parent directories.
func (a *app) withOutput(name string, fn func(io.Writer) error) error {
	if name == "" || name == "-" {
		return fn(a.stdout)
	}
	f, err := fsutil.CreateAll(a.fs, name)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	log.Printf("wrote %s", name)
	return nil
}

func (a *app) handleExportSQLite(args []string) error {
	fs := a.newFlagSet("export-sqlite")
	var in inputFlags
	in.register(fs)
	dbPath := fs.String("db", "canlog.db", "SQLite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	loaded, err := a.load(&in)
	if err != nil {
		return err
	}
	tables, err := loaded.tables()
	if err != nil {
		return err
	}

	db, err := store.Open(*dbPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", *dbPath, err)
	}
	defer db.Close()

	sink := progress.Func(monitoring.ProgressLogger("import"))
	imp, err := db.ImportLog(a.ctx, loaded.source, loaded.data, tables, sink, loaded.cfg.GetCSVProgressInterval())
	if err != nil {
		return err
	}
	return a.writeJSON(imp)
}

func (a *app) handlePlot(args []string) error {
	fs := a.newFlagSet("plot")
	var in inputFlags
	in.register(fs)
	var signals stringList
	fs.Var(&signals, "signal", "signal to plot, repeatable (default: all)")
	pngPath := fs.String("png", "", "write a PNG chart to this file")
	htmlPath := fs.String("html", "", "write an interactive HTML chart to this file")
	maxPoints := fs.Int("max-points", 0, "maximum samples (default default_max_points from config)")
	title := fs.String("title", "", "chart title (default: log file name)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := checkMaxPoints(*maxPoints); err != nil {
		return err
	}
	if *pngPath == "" && *htmlPath == "" {
		return fmt.Errorf("at least one of -png or -html is required")
	}

	sess, loaded, err := a.openSession(&in)
	if err != nil {
		return err
	}
	if *maxPoints == 0 {
		*maxPoints = loaded.cfg.GetDefaultMaxPoints()
	}
	if *title == "" {
		*title = loaded.source
	}
	res := sess.Decimated(*maxPoints, selection(signals))

	if *pngPath != "" {
		if err := a.withOutput(*pngPath, func(w io.Writer) error { return chart.PNG(w, res, *title) }); err != nil {
			return err
		}
	}
	if *htmlPath != "" {
		if err := a.withOutput(*htmlPath, func(w io.Writer) error { return chart.HTML(w, res, *title) }); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) handleServe(args []string) error {
	fs := a.newFlagSet("serve")
	configPath := fs.String("config", "", "JSON configuration file")
	listen := fs.String("listen", "", "listen address (default listen from config)")
	dataDir := fs.String("data-dir", "", "directory of logs that uploads may name with the path field")
	dbPath := fs.String("db", "", "SQLite database enabling /api/imports")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *listen == "" {
		*listen = cfg.GetListen()
	}

	opts := api.Options{Config: cfg, DataDir: *dataDir, FS: a.fs}
	if *dbPath != "" {
		db, err := store.Open(*dbPath)
		if err != nil {
			return fmt.Errorf("open %s: %w", *dbPath, err)
		}
		defer db.Close()
		opts.Store = db
	}
	return api.NewServer(opts).Run(a.ctx, *listen)
}
