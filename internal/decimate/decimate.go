// Package decimate downsamples decoded frames to a fixed point budget using
// last-observed-value carry-forward sampled at a fixed stride.
package decimate

import (
	"github.com/banshee-data/canlog/internal/frames"
)

// Selection chooses which signals a decimation retains.
type Selection struct {
	all   bool
	names []string
}

// All retains every known signal.
func All() Selection { return Selection{all: true} }

// Only retains exactly the named signals, in the given order. Names that
// never occur produce all-missing arrays.
func Only(names ...string) Selection {
	return Selection{names: append([]string(nil), names...)}
}

// IsAll reports whether s retains every signal.
func (s Selection) IsAll() bool { return s.all }

// Names returns the explicit names of an Only selection.
func (s Selection) Names() []string { return s.names }

// Resolve returns the names s retains given the known registry.
func (s Selection) Resolve(registry []string) []string {
	if s.all {
		return registry
	}
	return s.names
}

// Result is a decimated time series. Every Signals array has the same length
// as Time; nil entries are samples taken before the signal was first seen.
type Result struct {
	Time    []float64             `json:"time"`
	Signals map[string][]*float64 `json:"signals"`
}

// Len returns the number of samples.
func (r Result) Len() int { return len(r.Time) }

// Stride returns the sampling stride for total frames and a point budget.
// Budgets below one are treated as one.
func Stride(total, maxPoints int) int {
	if maxPoints < 1 {
		maxPoints = 1
	}
	if s := total / maxPoints; s > 1 {
		return s
	}
	return 1
}

// Samples returns how many samples a decimation of total frames emits.
func Samples(total, maxPoints int) int {
	if total <= 0 {
		return 0
	}
	s := Stride(total, maxPoints)
	return (total + s - 1) / s
}

// Sampler applies carry-forward sampling to a stream of records whose total
// count is known up front.
//
// With an Only selection the retained keys are fixed. With All the keys are
// discovered from the records as they arrive; a signal first seen after some
// samples were taken is back-filled with missing values so every array stays
// aligned with the time axis.
type Sampler struct {
	stride int
	index  int
	lazy   bool

	keys []string
	last map[string]*float64
	res  Result
}

// NewSampler returns a Sampler for total records and the point budget.
func NewSampler(total, maxPoints int, sel Selection) *Sampler {
	s := &Sampler{
		stride: Stride(total, maxPoints),
		lazy:   sel.IsAll(),
		last:   make(map[string]*float64),
		res: Result{
			Time:    make([]float64, 0, Samples(total, maxPoints)),
			Signals: make(map[string][]*float64),
		},
	}
	for _, name := range sel.Names() {
		s.addKey(name)
	}
	return s
}

func (s *Sampler) addKey(name string) {
	if _, ok := s.res.Signals[name]; ok {
		return
	}
	s.keys = append(s.keys, name)
	s.res.Signals[name] = make([]*float64, len(s.res.Time), cap(s.res.Time))
}

// Add folds the next record into the sampler. The record's own signals
// update the carried values before the sampling decision is made.
func (s *Sampler) Add(rec frames.Record) {
	for _, sig := range rec.Signals {
		if s.lazy {
			s.addKey(sig.Signal)
		}
		v := sig.Value
		s.last[sig.Signal] = &v
	}
	if s.index%s.stride == 0 {
		s.res.Time = append(s.res.Time, rec.Timestamp)
		for _, k := range s.keys {
			s.res.Signals[k] = append(s.res.Signals[k], s.last[k])
		}
	}
	s.index++
}

// Count returns the number of records added so far.
func (s *Sampler) Count() int { return s.index }

// Result returns the decimated series accumulated so far.
func (s *Sampler) Result() Result { return s.res }

// Decimate samples recs, resolving an All selection against registry.
func Decimate(recs []frames.Record, maxPoints int, sel Selection, registry []string) Result {
	s := NewSampler(len(recs), maxPoints, Only(sel.Resolve(registry)...))
	for _, rec := range recs {
		s.Add(rec)
	}
	return s.Result()
}
