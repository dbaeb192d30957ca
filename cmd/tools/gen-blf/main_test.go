package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/canlog/internal/monitoring"
	"github.com/banshee-data/canlog/internal/session"
	"github.com/banshee-data/canlog/internal/summary"
)

func TestGenerateDecodes(t *testing.T) {
	monitoring.SetLogger(nil)

	var buf bytes.Buffer
	require.NoError(t, generate(&buf, 2000, 50*time.Millisecond, 512))

	s, err := session.New(buf.Bytes(), []string{engineDBC, chassisDBC}, []uint16{1, 2})
	require.NoError(t, err)
	assert.Equal(t, 2000, s.Stats().FrameCount)
	assert.Equal(t, []string{
		"CAN1.CoolantTemp", "CAN1.EngineSpeed", "CAN1.Throttle",
		"CAN2.Accel", "CAN2.Speed",
	}, s.Signals())

	for _, sig := range summary.Compute(s.Frames()) {
		switch sig.Name {
		case "CAN2.Speed":
			assert.InDelta(t, 0, sig.Min, 0.1)
			assert.InDelta(t, 100, sig.Max, 0.01)
		case "CAN1.CoolantTemp":
			assert.GreaterOrEqual(t, sig.Min, 20.0)
			assert.LessOrEqual(t, sig.Max, 85.0)
		}
	}
}
