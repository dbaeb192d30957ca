package session

import (
	"github.com/banshee-data/canlog/internal/config"
	"github.com/banshee-data/canlog/internal/frames"
	"github.com/banshee-data/canlog/internal/monitoring"
)

// PreviewPolicy bounds how much of a log a quick-look preview decodes.
type PreviewPolicy struct {
	// FullDecodeMaxBytes is the declared size up to which the whole buffer
	// is decoded.
	FullDecodeMaxBytes int64
	// SliceFraction of the declared size is decoded for larger files,
	// capped at SliceMaxBytes.
	SliceFraction float64
	SliceMaxBytes int64
	// Frames is the most frames a preview returns.
	Frames int
}

// DefaultPreviewPolicy returns the policy of config.DefaultConfig.
func DefaultPreviewPolicy() PreviewPolicy {
	return PolicyFromConfig(config.DefaultConfig())
}

// PolicyFromConfig reads the preview limits from cfg.
func PolicyFromConfig(cfg *config.Config) PreviewPolicy {
	return PreviewPolicy{
		FullDecodeMaxBytes: cfg.GetFullDecodeMaxBytes(),
		SliceFraction:      cfg.GetSliceFraction(),
		SliceMaxBytes:      cfg.GetSliceMaxBytes(),
		Frames:             cfg.GetPreviewFrames(),
	}
}

// SliceLen returns how many leading bytes of an available-byte buffer to
// decode for a file whose declared total size is declared.
func (p PreviewPolicy) SliceLen(declared int64, available int) int {
	if declared <= p.FullDecodeMaxBytes {
		return available
	}
	n := int64(float64(declared) * p.SliceFraction)
	if n > p.SliceMaxBytes {
		n = p.SliceMaxBytes
	}
	if n > int64(available) {
		return available
	}
	return int(n)
}

// LoadPreviewSmart decodes a policy-sized prefix of data and returns at most
// p.Frames of its first frames. declared may exceed len(data) when only
// part of the file has been received.
func LoadPreviewSmart(data []byte, texts []string, channels []uint16, declared int64, p PreviewPolicy) ([]frames.Record, error) {
	n := p.SliceLen(declared, len(data))
	if n < len(data) {
		monitoring.Logf("smart preview: decoding %d of %d bytes (declared size %d)", n, len(data), declared)
	}
	s, err := New(data[:n], texts, channels)
	if err != nil {
		return nil, err
	}
	return s.Preview(p.Frames), nil
}
