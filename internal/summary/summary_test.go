package summary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/canlog/internal/frames"
)

func rec(ts float64, sigs ...frames.DecodedSignal) frames.Record {
	return frames.Record{Timestamp: ts, Signals: sigs}
}

func TestCompute(t *testing.T) {
	recs := []frames.Record{
		rec(0.0, frames.DecodedSignal{Signal: "CAN1.Speed", Value: 2, Unit: "km/h"}),
		rec(0.1),
		rec(0.2, frames.DecodedSignal{Signal: "CAN1.Speed", Value: 4, Unit: "km/h"},
			frames.DecodedSignal{Signal: "CAN2.Mode", Value: 7}),
		rec(0.3, frames.DecodedSignal{Signal: "CAN1.Speed", Value: 9, Unit: "km/h"}),
	}

	got := Compute(recs)
	require.Len(t, got, 2)

	speed := got[0]
	assert.Equal(t, "CAN1.Speed", speed.Name)
	assert.Equal(t, "km/h", speed.Unit)
	assert.Equal(t, 3, speed.Count)
	assert.Equal(t, 2.0, speed.Min)
	assert.Equal(t, 9.0, speed.Max)
	assert.InDelta(t, 5.0, speed.Mean, 1e-12)
	assert.InDelta(t, 3.605551, speed.StdDev, 1e-6)
	assert.Equal(t, 4.0, speed.Median)
	assert.Equal(t, 0.0, speed.FirstSeen)
	assert.Equal(t, 0.3, speed.LastSeen)

	mode := got[1]
	assert.Equal(t, "CAN2.Mode", mode.Name)
	assert.Equal(t, 1, mode.Count)
	assert.Equal(t, 7.0, mode.Mean)
	assert.Equal(t, 0.0, mode.StdDev)
	assert.Equal(t, 7.0, mode.Median)
}

func TestComputeFilter(t *testing.T) {
	recs := []frames.Record{
		rec(0, frames.DecodedSignal{Signal: "A", Value: 1}, frames.DecodedSignal{Signal: "B", Value: 2}),
	}
	got := Compute(recs, "B", "C")
	require.Len(t, got, 1)
	assert.Equal(t, "B", got[0].Name)
}

func TestComputeEmpty(t *testing.T) {
	assert.Empty(t, Compute(nil))
	assert.NotNil(t, Compute(nil))
}
