// Package progress carries cumulative-count notifications out of long
// decode and export passes.
package progress

import (
	"fmt"

	"github.com/banshee-data/canlog/internal/monitoring"
)

// Sink receives the cumulative number of rows or frames processed so far.
type Sink interface {
	Record(count int) error
}

// Func adapts an ordinary function to a Sink.
type Func func(count int) error

// Record calls f(count).
func (f Func) Record(count int) error { return f(count) }

type nopSink struct{}

func (nopSink) Record(int) error { return nil }

// Nop is a Sink that discards every notification.
var Nop Sink = nopSink{}

// OrNop returns s, or Nop when s is nil.
func OrNop(s Sink) Sink {
	if s == nil {
		return Nop
	}
	return s
}

// Notify delivers count to s synchronously. Errors and panics raised by the
// sink are logged and swallowed; progress is best effort and must never stop
// the pass that reports it.
func Notify(s Sink, count int) {
	if s == nil {
		return
	}
	if err := safeRecord(s, count); err != nil {
		monitoring.Logf("progress sink failed at count=%d: %v", count, err)
	}
}

func safeRecord(s Sink, count int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
	}()
	return s.Record(count)
}

// Every reports whether count lands on a notification boundary for the
// given interval. Non-positive intervals never notify.
func Every(count, interval int) bool {
	return interval > 0 && count > 0 && count%interval == 0
}
