// Package session holds a fully decoded log in memory and answers queries
// over it.
package session

import (
	"bytes"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/canlog/internal/dbc"
	"github.com/banshee-data/canlog/internal/decimate"
	"github.com/banshee-data/canlog/internal/export"
	"github.com/banshee-data/canlog/internal/frames"
)

// Stats summarises a session. Timestamps are zero for an empty session.
type Stats struct {
	FrameCount     int     `json:"frame_count"`
	FirstTimestamp float64 `json:"first_timestamp"`
	LastTimestamp  float64 `json:"last_timestamp"`
	SignalCount    int     `json:"signal_count"`
}

// Session is a decoded log: every CAN data frame in log order plus the
// sorted set of qualified signal names seen while decoding. Its contents
// never change after construction except through FreeMemory. It is safe for
// concurrent use.
type Session struct {
	ID string

	mu      sync.RWMutex
	frames  []frames.Record
	signals []string
}

// New decodes data using texts[i] as the definitions for channels[i].
// Construction is all or nothing: any definition or container error is
// returned without a session.
func New(data []byte, texts []string, channels []uint16) (*Session, error) {
	tables, err := dbc.BuildChannelTables(texts, channels)
	if err != nil {
		return nil, err
	}
	return FromTables(data, tables)
}

// FromTables decodes data against already parsed channel tables.
func FromTables(data []byte, tables dbc.ChannelTables) (*Session, error) {
	var (
		recs []frames.Record
		reg  frames.Registry
	)
	err := frames.Walk(data, tables, func(rec frames.Record, names []string) error {
		recs = append(recs, rec)
		reg.Add(names...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:      uuid.New().String(),
		frames:  recs,
		signals: reg.Sorted(),
	}, nil
}

// Stats returns frame and signal counts and the timestamp range.
func (s *Session) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{FrameCount: len(s.frames), SignalCount: len(s.signals)}
	if n := len(s.frames); n > 0 {
		st.FirstTimestamp = s.frames[0].Timestamp
		st.LastTimestamp = s.frames[n-1].Timestamp
	}
	return st
}

// Preview returns the first min(n, frame count) frames.
func (s *Session) Preview(n int) []frames.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n < 0 {
		n = 0
	}
	if n > len(s.frames) {
		n = len(s.frames)
	}
	out := make([]frames.Record, n)
	copy(out, s.frames[:n])
	return out
}

// Frames returns every frame in log order. Records must not be modified.
func (s *Session) Frames() []frames.Record {
	return s.Preview(int(^uint(0) >> 1))
}

// Signals returns the sorted, deduplicated qualified signal names.
func (s *Session) Signals() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, s.signals...)
}

// Decimated downsamples the session to maxPoints samples, carrying the last
// observed value of each selected signal forward.
func (s *Session) Decimated(maxPoints int, sel decimate.Selection) decimate.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return decimate.Decimate(s.frames, maxPoints, sel, s.signals)
}

// ExportCSV writes every frame as CSV to w. Each selected name adds a
// column after the fixed ones; frames without that signal leave it empty.
// The lock is held only to take the frame slice, so a slow writer does
// not block FreeMemory.
func (s *Session) ExportCSV(w io.Writer, selected []string) error {
	s.mu.RLock()
	recs := s.frames
	s.mu.RUnlock()

	cw, err := export.NewCSVWriter(w, selected)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	return cw.Flush()
}

// ExportCSVBytes is ExportCSV into a new buffer.
func (s *Session) ExportCSVBytes(selected []string) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.ExportCSV(&buf, selected); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FreeMemory drops every frame and signal name. The session then behaves
// as an empty one; this cannot be undone.
func (s *Session) FreeMemory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = nil
	s.signals = nil
}
