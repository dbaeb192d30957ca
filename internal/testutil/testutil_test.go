package testutil

import (
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/canlog/internal/blf"
	"github.com/banshee-data/canlog/internal/dbc"
)

func TestAssertStatusCode(t *testing.T) {
	t.Parallel()
	AssertStatusCode(t, http.StatusOK, http.StatusOK)
}

func TestFixtureDefinitionsParse(t *testing.T) {
	tables, err := dbc.BuildChannelTables(Texts, Channels)
	require.NoError(t, err)

	for _, id := range []uint32{EngineDataID, StatusID} {
		_, ok := tables.Lookup(1, id)
		assert.True(t, ok, "channel 1 id 0x%X", id)
	}
	for _, id := range []uint32{VehicleDynamicsID, StatusID} {
		_, ok := tables.Lookup(2, id)
		assert.True(t, ok, "channel 2 id 0x%X", id)
	}
	_, ok := tables.Lookup(1, UnknownID)
	assert.False(t, ok)
}

func TestSampleLog(t *testing.T) {
	data := SampleLog(t, 10, WithContainerSize(64))

	r, err := blf.NewReader(data)
	require.NoError(t, err)
	assert.Equal(t, Start, r.Header().MeasurementStart)

	var got []*blf.CANMessage
	for {
		obj, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, obj.(*blf.CANMessage))
	}
	require.Len(t, got, 10)
	assert.EqualValues(t, EngineDataID, got[0].ID)
	assert.EqualValues(t, 2, got[1].Channel)
	assert.EqualValues(t, 30_000_000, got[3].TimestampNS)
	assert.EqualValues(t, 4, got[3].DLC)
}

func TestBuildBLFWritesOtherObjects(t *testing.T) {
	data := BuildBLF(t, []Frame{
		{Kind: blf.TypeCANStatistic, TimeNS: 5, Data: []byte{1, 2, 3, 4}},
		{Kind: blf.TypeCANMessage, Channel: 1, ID: 1, TimeNS: 6, Data: []byte{9}},
	})

	r, err := blf.NewReader(data)
	require.NoError(t, err)
	first, err := r.Next()
	require.NoError(t, err)
	assert.False(t, blf.IsDataFrame(first))
	second, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, blf.TypeCANMessage, second.Header().ObjectType)
}
