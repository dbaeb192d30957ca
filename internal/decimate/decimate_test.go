package decimate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/canlog/internal/frames"
)

func rec(ts float64, sigs ...frames.DecodedSignal) frames.Record {
	return frames.Record{Timestamp: ts, Signals: sigs}
}

func sig(name string, v float64) frames.DecodedSignal {
	return frames.DecodedSignal{Signal: name, Value: v}
}

func values(t *testing.T, arr []*float64) []interface{} {
	t.Helper()
	out := make([]interface{}, len(arr))
	for i, p := range arr {
		if p == nil {
			out[i] = nil
			continue
		}
		out[i] = *p
	}
	return out
}

func TestStrideAndSamples(t *testing.T) {
	tests := []struct {
		total, maxPoints int
		stride, samples  int
	}{
		{0, 10, 1, 0},
		{5, 10, 1, 5},
		{10, 10, 1, 10},
		{19, 10, 1, 19},
		{20, 10, 2, 10},
		{25, 10, 2, 13},
		{1001, 100, 10, 101},
		{7, 0, 7, 1},
		{7, -3, 7, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.stride, Stride(tt.total, tt.maxPoints), "stride(%d, %d)", tt.total, tt.maxPoints)
		assert.Equal(t, tt.samples, Samples(tt.total, tt.maxPoints), "samples(%d, %d)", tt.total, tt.maxPoints)
	}
}

func TestDecimateLength(t *testing.T) {
	for _, n := range []int{1, 2, 9, 10, 11, 99, 100, 101, 257} {
		for _, m := range []int{1, 3, 10, 50} {
			recs := make([]frames.Record, n)
			for i := range recs {
				recs[i] = rec(float64(i), sig("CAN1.A", float64(i)))
			}
			res := Decimate(recs, m, All(), []string{"CAN1.A"})

			stride := Stride(n, m)
			want := (n + stride - 1) / stride
			require.Len(t, res.Time, want, "n=%d m=%d", n, m)
			require.Len(t, res.Signals["CAN1.A"], want)
			for i, ts := range res.Time {
				assert.Equal(t, float64(i*stride), ts)
			}
		}
	}
}

func TestDecimateCarryForward(t *testing.T) {
	const k = 6
	recs := make([]frames.Record, 20)
	for i := range recs {
		recs[i] = rec(float64(i) / 10)
	}
	recs[k] = rec(float64(k)/10, sig("CAN1.Once", 42))

	res := Decimate(recs, 10, All(), []string{"CAN1.Once"})
	require.Equal(t, 10, res.Len())

	got := values(t, res.Signals["CAN1.Once"])
	assert.Equal(t, []interface{}{nil, nil, nil, 42.0, 42.0, 42.0, 42.0, 42.0, 42.0, 42.0}, got)
}

func TestDecimateUpdatesBeforeSampling(t *testing.T) {
	recs := []frames.Record{
		rec(0, sig("A", 1)),
		rec(1, sig("A", 2)),
		rec(2, sig("A", 3)),
		rec(3, sig("A", 4)),
	}
	res := Decimate(recs, 2, Only("A"), nil)
	assert.Equal(t, []float64{0, 2}, res.Time)
	assert.Equal(t, []interface{}{1.0, 3.0}, values(t, res.Signals["A"]))
}

func TestDecimateSelection(t *testing.T) {
	recs := []frames.Record{
		rec(0, sig("CAN1.A", 1), sig("CAN1.B", 10)),
		rec(1, sig("CAN1.A", 2)),
	}

	res := Decimate(recs, 10, Only("CAN1.B", "CAN9.Missing"), []string{"CAN1.A", "CAN1.B"})
	assert.Len(t, res.Signals, 2)
	assert.NotContains(t, res.Signals, "CAN1.A")
	assert.Equal(t, []interface{}{10.0, 10.0}, values(t, res.Signals["CAN1.B"]))
	assert.Equal(t, []interface{}{nil, nil}, values(t, res.Signals["CAN9.Missing"]))
}

func TestDecimateEmpty(t *testing.T) {
	res := Decimate(nil, 100, All(), nil)
	assert.Empty(t, res.Time)
	assert.NotNil(t, res.Signals)
	assert.Empty(t, res.Signals)

	res = Decimate(nil, 100, All(), []string{"CAN1.A"})
	require.Contains(t, res.Signals, "CAN1.A")
	assert.Empty(t, res.Signals["CAN1.A"])

	b, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"time": [], "signals": {"CAN1.A": []}}`, string(b))
}

func TestSamplerLazyKeys(t *testing.T) {
	s := NewSampler(6, 3, All())
	s.Add(rec(0, sig("A", 1)))
	s.Add(rec(1))
	s.Add(rec(2, sig("B", 5)))
	s.Add(rec(3))
	s.Add(rec(4, sig("A", 7)))
	s.Add(rec(5))

	res := s.Result()
	assert.Equal(t, 6, s.Count())
	assert.Equal(t, []float64{0, 2, 4}, res.Time)
	assert.Equal(t, []interface{}{1.0, 1.0, 7.0}, values(t, res.Signals["A"]))
	assert.Equal(t, []interface{}{nil, 5.0, 5.0}, values(t, res.Signals["B"]))

	b, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"time":[0,2,4],"signals":{"A":[1,1,7],"B":[null,5,5]}}`, string(b))
}

func TestSelectionResolve(t *testing.T) {
	reg := []string{"CAN1.A", "CAN2.A"}
	assert.Equal(t, reg, All().Resolve(reg))
	assert.True(t, All().IsAll())
	assert.Equal(t, []string{"X"}, Only("X").Resolve(reg))
	assert.False(t, Only().IsAll())
	assert.Empty(t, Only().Resolve(reg))
}
