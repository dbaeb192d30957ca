package export

import (
	"bytes"
	"io"

	"github.com/banshee-data/canlog/internal/config"
	"github.com/banshee-data/canlog/internal/dbc"
	"github.com/banshee-data/canlog/internal/decimate"
	"github.com/banshee-data/canlog/internal/frames"
	"github.com/banshee-data/canlog/internal/monitoring"
	"github.com/banshee-data/canlog/internal/progress"
)

// Options sets the progress cadence of the streaming exports.
type Options struct {
	// CSVProgressInterval is the number of rows between CSV progress calls.
	CSVProgressInterval int
	// DecimateProgressInterval is the number of frames between decimation
	// progress calls.
	DecimateProgressInterval int
}

// DefaultOptions returns the cadence of config.DefaultConfig.
func DefaultOptions() Options {
	return OptionsFromConfig(config.DefaultConfig())
}

// OptionsFromConfig reads the progress cadence from cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		CSVProgressInterval:      cfg.GetCSVProgressInterval(),
		DecimateProgressInterval: cfg.GetDecimateProgressInterval(),
	}
}

// WriteCSVStream decodes every frame in data in a single pass and writes one
// fixed-column row per frame to w. The sink receives the cumulative row
// count every opts.CSVProgressInterval rows. It returns the number of rows
// written.
func WriteCSVStream(w io.Writer, data []byte, tables dbc.ChannelTables, sink progress.Sink, opts Options) (int, error) {
	cw, err := NewCSVWriter(w, nil)
	if err != nil {
		return 0, err
	}
	err = frames.Walk(data, tables, func(rec frames.Record, _ []string) error {
		if err := cw.Write(rec); err != nil {
			return err
		}
		if progress.Every(cw.Rows(), opts.CSVProgressInterval) {
			progress.Notify(sink, cw.Rows())
		}
		return nil
	})
	if err != nil {
		return cw.Rows(), err
	}
	if err := cw.Flush(); err != nil {
		return cw.Rows(), err
	}
	monitoring.Logf("csv stream: wrote %d rows from %d bytes", cw.Rows(), len(data))
	return cw.Rows(), nil
}

// CSVStream is WriteCSVStream into a new buffer.
func CSVStream(data []byte, tables dbc.ChannelTables, sink progress.Sink, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := WriteCSVStream(&buf, data, tables, sink, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecimatedStream decimates the whole of data without keeping its frames.
// A first pass counts data frames to fix the stride; a second pass decodes
// them again and samples with carry-forward. The sink receives the
// cumulative frame count of the second pass every
// opts.DecimateProgressInterval frames.
func DecimatedStream(data []byte, tables dbc.ChannelTables, maxPoints int, sel decimate.Selection, sink progress.Sink, opts Options) (decimate.Result, error) {
	total, err := frames.Count(data)
	if err != nil {
		return decimate.Result{}, err
	}

	s := decimate.NewSampler(total, maxPoints, sel)
	err = frames.Walk(data, tables, func(rec frames.Record, _ []string) error {
		s.Add(rec)
		if progress.Every(s.Count(), opts.DecimateProgressInterval) {
			progress.Notify(sink, s.Count())
		}
		return nil
	})
	if err != nil {
		return decimate.Result{}, err
	}
	monitoring.Logf("decimated stream: %d frames -> %d samples (stride %d)",
		total, s.Result().Len(), decimate.Stride(total, maxPoints))
	return s.Result(), nil
}
