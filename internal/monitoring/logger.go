package monitoring

import (
	"log"
	"time"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// ProgressLogger returns a progress callback that logs the cumulative count
// and the throughput since the callback was created. It never fails.
func ProgressLogger(label string) func(count int) error {
	start := time.Now()
	return func(count int) error {
		elapsed := time.Since(start)
		rate := 0.0
		if elapsed > 0 {
			rate = float64(count) / elapsed.Seconds()
		}
		Logf("%s progress: %d processed in %v (%.0f/s)", label, count, elapsed.Round(time.Millisecond), rate)
		return nil
	}
}
