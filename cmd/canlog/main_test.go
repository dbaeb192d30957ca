package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/canlog/internal/canerr"
	"github.com/banshee-data/canlog/internal/decimate"
	"github.com/banshee-data/canlog/internal/fsutil"
	"github.com/banshee-data/canlog/internal/httputil"
	"github.com/banshee-data/canlog/internal/monitoring"
	"github.com/banshee-data/canlog/internal/session"
	"github.com/banshee-data/canlog/internal/store"
	"github.com/banshee-data/canlog/internal/summary"
	"github.com/banshee-data/canlog/internal/testutil"
)

func TestMain(m *testing.M) {
	log.SetOutput(io.Discard)
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

type testApp struct {
	*app
	out    *bytes.Buffer
	errOut *bytes.Buffer
	mem    *fsutil.MemoryFileSystem
	mock   *httputil.MockHTTPClient
}

// newTestApp returns an app whose filesystem holds drive.blf (n sample
// frames) plus engine.dbc and vehicle.dbc.
func newTestApp(t *testing.T, n int) *testApp {
	t.Helper()
	mem := fsutil.NewMemoryFileSystem()
	require.NoError(t, mem.WriteFile("logs/drive.blf", testutil.SampleLog(t, n), 0644))
	require.NoError(t, mem.WriteFile("engine.dbc", []byte(testutil.EngineDBC), 0644))
	require.NoError(t, mem.WriteFile("vehicle.dbc", []byte(testutil.VehicleDBC), 0644))

	ta := &testApp{out: &bytes.Buffer{}, errOut: &bytes.Buffer{}, mem: mem, mock: httputil.NewMockHTTPClient()}
	ta.app = &app{ctx: context.Background(), stdout: ta.out, stderr: ta.errOut, fs: mem, client: ta.mock}
	return ta
}

var inputArgs = []string{"-log", "logs/drive.blf", "-dbc", "engine.dbc", "-channel", "1", "-dbc", "vehicle.dbc", "-channel", "2"}

func withInputs(command string, extra ...string) []string {
	return append(append([]string{command}, inputArgs...), extra...)
}

func TestStatsCommand(t *testing.T) {
	ta := newTestApp(t, 40)
	require.NoError(t, ta.run(withInputs("stats")))

	var stats session.Stats
	require.NoError(t, json.Unmarshal(ta.out.Bytes(), &stats))
	assert.Equal(t, session.Stats{FrameCount: 40, FirstTimestamp: 0, LastTimestamp: 0.39, SignalCount: 6}, stats)
}

func TestDefaultChannels(t *testing.T) {
	ta := newTestApp(t, 40)
	require.NoError(t, ta.run([]string{"signals", "-log", "logs/drive.blf", "-dbc", "engine.dbc", "-dbc", "vehicle.dbc"}))

	var names []string
	require.NoError(t, json.Unmarshal(ta.out.Bytes(), &names))
	assert.Equal(t, []string{
		"CAN1.CoolantTemp", "CAN1.EngineSpeed", "CAN1.Mode", "CAN1.Throttle",
		"CAN2.Accel", "CAN2.Speed",
	}, names)
}

func TestPreviewCommand(t *testing.T) {
	ta := newTestApp(t, 200)
	require.NoError(t, ta.run(withInputs("preview", "-n", "3")))

	var recs []map[string]interface{}
	require.NoError(t, json.Unmarshal(ta.out.Bytes(), &recs))
	require.Len(t, recs, 3)
	assert.Equal(t, "EngineData", recs[0]["name"])
	assert.Equal(t, "VehicleDynamics", recs[1]["name"])

	ta.out.Reset()
	require.NoError(t, ta.run(withInputs("preview", "-smart", "-file-size", "5368709120")))
	require.NoError(t, json.Unmarshal(ta.out.Bytes(), &recs))
	assert.Len(t, recs, 50)
}

func TestDecimateCommand(t *testing.T) {
	ta := newTestApp(t, 100)
	require.NoError(t, ta.run(withInputs("decimate", "-max-points", "20", "-signal", "CAN1.EngineSpeed")))
	var inMemory decimate.Result
	require.NoError(t, json.Unmarshal(ta.out.Bytes(), &inMemory))
	assert.Equal(t, 20, inMemory.Len())
	require.Contains(t, inMemory.Signals, "CAN1.EngineSpeed")

	ta.out.Reset()
	require.NoError(t, ta.run(withInputs("decimate", "-max-points", "20", "-signal", "CAN1.EngineSpeed", "-stream")))
	var streamed decimate.Result
	require.NoError(t, json.Unmarshal(ta.out.Bytes(), &streamed))
	assert.Equal(t, inMemory, streamed)
}

func TestDecimateMaxPoints(t *testing.T) {
	ta := newTestApp(t, 100)
	require.NoError(t, ta.run(withInputs("decimate", "-max-points", "0", "-signal", "CAN2.Speed")))
	var res decimate.Result
	require.NoError(t, json.Unmarshal(ta.out.Bytes(), &res))
	assert.Equal(t, 100, res.Len(), "zero selects default_max_points")

	for _, args := range [][]string{
		withInputs("decimate", "-max-points", "-5"),
		withInputs("plot", "-max-points", "-5", "-png", "out.png"),
	} {
		err := ta.run(args)
		require.Error(t, err)
		assert.True(t, errors.Is(err, canerr.ErrInputShape), "%s: %v", args[0], err)
	}
}

func TestSummaryCommand(t *testing.T) {
	ta := newTestApp(t, 40)
	require.NoError(t, ta.run(withInputs("summary", "-signal", "CAN2.Accel")))

	var sums []summary.Signal
	require.NoError(t, json.Unmarshal(ta.out.Bytes(), &sums))
	require.Len(t, sums, 1)
	assert.Equal(t, "CAN2.Accel", sums[0].Name)
	assert.InDelta(t, -1.5, sums[0].Mean, 1e-9)
	assert.Equal(t, "m/s2", sums[0].Unit)
}

func TestExportCSVCommand(t *testing.T) {
	ta := newTestApp(t, 40)
	require.NoError(t, ta.run(withInputs("export-csv", "-o", "out/drive.csv", "-signal", "CAN1.EngineSpeed")))
	assert.Empty(t, ta.out.String())

	data, err := ta.mem.ReadFile("out/drive.csv")
	require.NoError(t, err)
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 41)
	assert.Equal(t, "CAN1.EngineSpeed", rows[0][8])
	assert.Equal(t, "1000", rows[1][8])
}

func TestExportCSVStreamCommand(t *testing.T) {
	ta := newTestApp(t, 40)
	require.NoError(t, ta.run(withInputs("export-csv", "-stream")))
	rows, err := csv.NewReader(ta.out).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 41)
	assert.Len(t, rows[0], 8, "streamed export has the fixed columns only")

	err = ta.run(withInputs("export-csv", "-stream", "-signal", "CAN1.Mode"))
	assert.Error(t, err)
}

func TestExportSQLiteCommand(t *testing.T) {
	ta := newTestApp(t, 40)
	dbPath := filepath.Join(t.TempDir(), "canlog.db")
	require.NoError(t, ta.run(withInputs("export-sqlite", "-db", dbPath)))

	var imp store.Import
	require.NoError(t, json.Unmarshal(ta.out.Bytes(), &imp))
	assert.Equal(t, "drive.blf", imp.Source)
	assert.Equal(t, 40, imp.FrameCount)

	db, err := store.Open(dbPath)
	require.NoError(t, err)
	defer db.Close()
	pts, err := db.SignalSeries(imp.ID, "CAN1.Throttle")
	require.NoError(t, err)
	assert.Len(t, pts, 10)
}

func TestPlotCommand(t *testing.T) {
	ta := newTestApp(t, 40)
	require.NoError(t, ta.run(withInputs("plot", "-png", "charts/drive.png", "-html", "charts/drive.html", "-max-points", "10")))

	png, err := ta.mem.ReadFile("charts/drive.png")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	html, err := ta.mem.ReadFile("charts/drive.html")
	require.NoError(t, err)
	assert.Contains(t, string(html), "drive.blf")

	assert.Error(t, ta.run(withInputs("plot")), "an output is required")
}

func TestLogFromURL(t *testing.T) {
	ta := newTestApp(t, 0)
	ta.mock.AddResponse(http.StatusOK, testutil.SampleLog(t, 12))

	args := []string{"stats", "-log", "https://logs.example/run/bench.blf?token=x", "-dbc", "engine.dbc", "-dbc", "vehicle.dbc"}
	require.NoError(t, ta.run(args))
	var stats session.Stats
	require.NoError(t, json.Unmarshal(ta.out.Bytes(), &stats))
	assert.Equal(t, 12, stats.FrameCount)
	require.Equal(t, 1, ta.mock.RequestCount())
	assert.Equal(t, "/run/bench.blf", ta.mock.Requests[0].URL.Path)
}

func TestConfigFlag(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "canlog.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"preview_frames": 2}`), 0644))

	ta := newTestApp(t, 40)
	require.NoError(t, ta.run(withInputs("preview", "-config", cfgPath)))
	var recs []json.RawMessage
	require.NoError(t, json.Unmarshal(ta.out.Bytes(), &recs))
	assert.Len(t, recs, 2)

	assert.Error(t, ta.run(withInputs("preview", "-config", filepath.Join(t.TempDir(), "missing.json"))))
}

func TestCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		kind error
	}{
		{"missing log", []string{"stats", "-dbc", "engine.dbc"}, nil},
		{"missing log file", []string{"stats", "-log", "nope.blf"}, nil},
		{"channel mismatch", []string{"stats", "-log", "logs/drive.blf", "-dbc", "engine.dbc", "-channel", "1", "-channel", "2"}, canerr.ErrInputShape},
		{"bad channel", []string{"stats", "-log", "logs/drive.blf", "-channel", "CAN1"}, nil},
		{"log is not blf", []string{"stats", "-log", "engine.dbc", "-dbc", "engine.dbc"}, canerr.ErrContainerParse},
		{"unknown flag", []string{"signals", "-bogus"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ta := newTestApp(t, 8)
			err := ta.run(tt.args)
			require.Error(t, err)
			if tt.kind != nil {
				assert.True(t, errors.Is(err, tt.kind), "got %v", err)
			}
		})
	}
}

func TestUsageAndVersion(t *testing.T) {
	ta := newTestApp(t, 0)

	assert.ErrorIs(t, ta.run(nil), errUsage)
	assert.ErrorIs(t, ta.run([]string{"frobnicate"}), errUsage)
	assert.Contains(t, ta.errOut.String(), "Unknown command: frobnicate")

	ta.out.Reset()
	require.NoError(t, ta.run([]string{"help"}))
	assert.Contains(t, ta.out.String(), "export-sqlite")

	ta.out.Reset()
	require.NoError(t, ta.run([]string{"version"}))
	assert.True(t, strings.HasPrefix(ta.out.String(), "canlog version dev"))

	assert.ErrorIs(t, ta.run([]string{"stats", "-h"}), flag.ErrHelp)
}
