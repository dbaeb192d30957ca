// Package export writes decoded frames as CSV and runs the streaming
// exports that cover a whole log without building a session.
package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/banshee-data/canlog/internal/canerr"
	"github.com/banshee-data/canlog/internal/frames"
)

// FixedColumns is the column layout every CSV export starts with.
var FixedColumns = []string{"Time [s]", "Channel", "ID", "Name", "Event Type", "Dir", "DLC", "Data"}

// Header returns the fixed columns followed by the selected signal names.
func Header(selected []string) []string {
	h := make([]string, 0, len(FixedColumns)+len(selected))
	h = append(h, FixedColumns...)
	return append(h, selected...)
}

// Row renders rec in Header(selected) order. A selected signal the frame
// does not carry is an empty cell.
func Row(rec frames.Record, selected []string) []string {
	row := make([]string, 0, len(FixedColumns)+len(selected))
	row = append(row,
		strconv.FormatFloat(rec.Timestamp, 'f', 6, 64),
		rec.Channel,
		rec.IDHex(),
		rec.Name,
		rec.EventType,
		rec.Dir,
		strconv.Itoa(int(rec.DLC)),
		rec.Data.Hex(),
	)
	for _, name := range selected {
		if v, ok := rec.Lookup(name); ok {
			row = append(row, strconv.FormatFloat(v, 'f', -1, 64))
		} else {
			row = append(row, "")
		}
	}
	return row
}

// CSVWriter writes frame records as CSV rows after a header.
type CSVWriter struct {
	w        *csv.Writer
	selected []string
	rows     int
}

// NewCSVWriter writes the header to w and returns a writer for the rows.
func NewCSVWriter(w io.Writer, selected []string) (*CSVWriter, error) {
	cw := &CSVWriter{w: csv.NewWriter(w), selected: selected}
	if err := cw.w.Write(Header(selected)); err != nil {
		return nil, canerr.Wrap(canerr.ErrExportWrite, err, "csv header")
	}
	return cw, nil
}

// Write appends one row for rec.
func (c *CSVWriter) Write(rec frames.Record) error {
	if err := c.w.Write(Row(rec, c.selected)); err != nil {
		return canerr.Wrap(canerr.ErrExportWrite, err, "csv row %d", c.rows+1)
	}
	c.rows++
	return nil
}

// Rows returns the number of data rows written.
func (c *CSVWriter) Rows() int { return c.rows }

// Flush writes any buffered rows to the underlying writer.
func (c *CSVWriter) Flush() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return canerr.Wrap(canerr.ErrExportWrite, err, "csv flush")
	}
	return nil
}
