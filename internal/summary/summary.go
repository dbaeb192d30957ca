// Package summary computes per-signal descriptive statistics over decoded
// frames.
package summary

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/canlog/internal/frames"
)

// Signal holds the statistics of one qualified signal.
type Signal struct {
	Name   string  `json:"signal"`
	Unit   string  `json:"unit"`
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Median float64 `json:"median"`
	// FirstSeen and LastSeen are timestamps in seconds.
	FirstSeen float64 `json:"first_seen"`
	LastSeen  float64 `json:"last_seen"`
}

type series struct {
	unit        string
	values      []float64
	first, last float64
}

// Compute returns statistics for every signal in recs, sorted by name.
// Signals named in only are kept when only is non-empty.
func Compute(recs []frames.Record, only ...string) []Signal {
	keep := make(map[string]bool, len(only))
	for _, n := range only {
		keep[n] = true
	}

	bySignal := make(map[string]*series)
	for _, rec := range recs {
		for _, s := range rec.Signals {
			if len(keep) > 0 && !keep[s.Signal] {
				continue
			}
			ser, ok := bySignal[s.Signal]
			if !ok {
				ser = &series{unit: s.Unit, first: rec.Timestamp}
				bySignal[s.Signal] = ser
			}
			ser.values = append(ser.values, s.Value)
			ser.last = rec.Timestamp
		}
	}

	out := make([]Signal, 0, len(bySignal))
	for name, ser := range bySignal {
		out = append(out, describe(name, ser))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func describe(name string, ser *series) Signal {
	sig := Signal{
		Name:      name,
		Unit:      ser.unit,
		Count:     len(ser.values),
		Min:       floats.Min(ser.values),
		Max:       floats.Max(ser.values),
		FirstSeen: ser.first,
		LastSeen:  ser.last,
	}
	if sig.Count > 1 {
		sig.Mean, sig.StdDev = stat.MeanStdDev(ser.values, nil)
	} else {
		sig.Mean = ser.values[0]
	}

	sorted := append([]float64(nil), ser.values...)
	sort.Float64s(sorted)
	sig.Median = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	return sig
}
