package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/canlog/internal/canerr"
	"github.com/banshee-data/canlog/internal/dbc"
	"github.com/banshee-data/canlog/internal/monitoring"
	"github.com/banshee-data/canlog/internal/progress"
	"github.com/banshee-data/canlog/internal/testutil"
)

func init() {
	monitoring.SetLogger(nil)
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "canlog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func fixtureTables(t *testing.T) dbc.ChannelTables {
	t.Helper()
	tables, err := dbc.BuildChannelTables(testutil.Texts, testutil.Channels)
	require.NoError(t, err)
	return tables
}

func TestMigrations(t *testing.T) {
	db := openTestDB(t)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.EqualValues(t, 1, version)
	assert.False(t, dirty)

	require.NoError(t, db.MigrateUp(), "re-running up is a no-op")

	require.NoError(t, db.MigrateDown())
	version, _, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.EqualValues(t, 0, version)

	_, err = db.Imports()
	assert.Error(t, err, "tables are gone after down")
}

func TestImportLog(t *testing.T) {
	db := openTestDB(t)
	data := testutil.SampleLog(t, 20)

	var counts []int
	sink := progress.Func(func(n int) error {
		counts = append(counts, n)
		return nil
	})
	imp, err := db.ImportLog(context.Background(), "sample.blf", data, fixtureTables(t), sink, 8)
	require.NoError(t, err)

	assert.NotEmpty(t, imp.ID)
	assert.Equal(t, 20, imp.FrameCount)
	assert.Equal(t, 6, imp.SignalCount)
	assert.Equal(t, 0.0, imp.FirstTimestamp)
	assert.InDelta(t, 0.19, imp.LastTimestamp, 1e-9)
	assert.Equal(t, []int{8, 16}, counts)

	imports, err := db.Imports()
	require.NoError(t, err)
	require.Len(t, imports, 1)
	assert.Equal(t, imp.ID, imports[0].ID)
	assert.Equal(t, "sample.blf", imports[0].Source)
	assert.Equal(t, 20, imports[0].FrameCount)
	assert.Equal(t, imp.CreatedAt.UnixNano(), imports[0].CreatedAt.UnixNano())

	names, err := db.Signals(imp.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"CAN1.CoolantTemp", "CAN1.EngineSpeed", "CAN1.Mode", "CAN1.Throttle",
		"CAN2.Accel", "CAN2.Speed",
	}, names)

	series, err := db.SignalSeries(imp.ID, "CAN1.EngineSpeed")
	require.NoError(t, err)
	require.Len(t, series, 5)
	for i, p := range series {
		assert.InDelta(t, float64(i*4)*0.01, p.Timestamp, 1e-9)
		assert.Equal(t, float64(1000+i*4), p.Value)
	}

	var raw []byte
	require.NoError(t, db.QueryRow(`SELECT data FROM frames WHERE import_id = ? AND seq = 3`, imp.ID).Scan(&raw))
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF, 0, 0, 0, 0}, raw)
}

func TestImportLogIsAtomic(t *testing.T) {
	db := openTestDB(t)

	_, err := db.ImportLog(context.Background(), "bad.blf", []byte("junk"), nil, nil, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, canerr.ErrContainerParse))

	imports, err := db.Imports()
	require.NoError(t, err)
	assert.Empty(t, imports)
}

func TestImportLogCancelled(t *testing.T) {
	db := openTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := db.ImportLog(ctx, "sample.blf", testutil.SampleLog(t, 5), nil, nil, 0)
	require.Error(t, err)

	imports, err := db.Imports()
	require.NoError(t, err)
	assert.Empty(t, imports)
}

func TestDeleteImport(t *testing.T) {
	db := openTestDB(t)
	imp, err := db.ImportLog(context.Background(), "a.blf", testutil.SampleLog(t, 8), fixtureTables(t), nil, 0)
	require.NoError(t, err)

	require.NoError(t, db.DeleteImport(imp.ID))

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM signal_values`).Scan(&n))
	assert.Zero(t, n, "values cascade with their import")

	err = db.DeleteImport(imp.ID)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}
