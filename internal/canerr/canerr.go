// Package canerr defines the error kinds surfaced by log decoding and export.
//
// Every failure returned by the decoding pipeline wraps exactly one of the
// sentinels below, so callers can classify it with errors.Is while still
// getting a descriptive message from Error().
package canerr

import (
	"errors"
	"fmt"
)

var (
	// ErrInputShape reports mismatched or malformed caller input, such as
	// definition and channel lists of different lengths.
	ErrInputShape = errors.New("invalid input shape")

	// ErrDefinitionParse reports a DBC text that could not be parsed.
	ErrDefinitionParse = errors.New("definition parse failed")

	// ErrContainerParse reports a malformed BLF container.
	ErrContainerParse = errors.New("log container parse failed")

	// ErrSerialization reports a failure producing a structured result.
	ErrSerialization = errors.New("serialization failed")

	// ErrExportWrite reports a failure while emitting exported text.
	ErrExportWrite = errors.New("export write failed")
)

// Wrap annotates err with kind and a formatted message. The result matches
// both kind and err under errors.Is.
func Wrap(kind, err error, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	if err == nil {
		return fmt.Errorf("%w: %s", kind, msg)
	}
	return fmt.Errorf("%w: %s: %w", kind, msg, err)
}

// Kind returns the sentinel wrapped by err, or nil if err carries none.
func Kind(err error) error {
	for _, k := range []error{ErrInputShape, ErrDefinitionParse, ErrContainerParse, ErrSerialization, ErrExportWrite} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
