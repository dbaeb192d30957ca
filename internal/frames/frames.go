// Package frames turns BLF CAN data frames into decoded frame records.
package frames

import (
	"encoding/json"
	"errors"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/banshee-data/canlog/internal/blf"
	"github.com/banshee-data/canlog/internal/dbc"
	"github.com/banshee-data/canlog/internal/decode"
)

// Fixed record labels. Direction is not derived from the log.
const (
	EventType = "CAN Frame"
	Direction = "Rx"
)

// ChannelTag returns the display tag for a bus channel, e.g. "CAN1".
func ChannelTag(channel uint16) string {
	return "CAN" + strconv.Itoa(int(channel))
}

// QualifiedName prefixes a signal name with its channel tag so identically
// named signals on different buses stay distinct.
func QualifiedName(channel uint16, signal string) string {
	return ChannelTag(channel) + "." + signal
}

// DecodedSignal is one physical value extracted from a frame.
type DecodedSignal struct {
	Signal string  `json:"signal"`
	Value  float64 `json:"value"`
	Unit   string  `json:"unit"`
}

// Payload is the raw frame data. It encodes to JSON as an array of numbers
// rather than base64.
type Payload []byte

func (p Payload) MarshalJSON() ([]byte, error) {
	ints := make([]int, len(p))
	for i, b := range p {
		ints[i] = int(b)
	}
	return json.Marshal(ints)
}

func (p *Payload) UnmarshalJSON(b []byte) error {
	var ints []int
	if err := json.Unmarshal(b, &ints); err != nil {
		return err
	}
	out := make(Payload, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return errors.New("payload byte out of range: " + strconv.Itoa(v))
		}
		out[i] = byte(v)
	}
	*p = out
	return nil
}

// Hex renders the payload as space separated two digit uppercase hex.
func (p Payload) Hex() string {
	const digits = "0123456789ABCDEF"
	var sb strings.Builder
	sb.Grow(len(p) * 3)
	for i, b := range p {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteByte(digits[b>>4])
		sb.WriteByte(digits[b&0x0F])
	}
	return sb.String()
}

// Record is a decoded CAN frame.
type Record struct {
	Timestamp float64         `json:"timestamp"`
	Channel   string          `json:"channel"`
	ID        uint32          `json:"id"`
	Name      string          `json:"name"`
	EventType string          `json:"event_type"`
	Dir       string          `json:"dir"`
	DLC       uint8           `json:"dlc"`
	Data      Payload         `json:"data"`
	Signals   []DecodedSignal `json:"signals"`
}

// IDHex formats the message id as 0x-prefixed uppercase hex.
func (r Record) IDHex() string {
	return "0x" + strings.ToUpper(strconv.FormatUint(uint64(r.ID), 16))
}

// Lookup returns the value of the named signal if the frame carries it.
func (r Record) Lookup(signal string) (float64, bool) {
	for _, s := range r.Signals {
		if s.Signal == signal {
			return s.Value, true
		}
	}
	return 0, false
}

// Build decodes msg against the table for its channel. It returns the record
// and the qualified names of the signals decoded from this frame, in
// definition order. Unknown ids produce an unnamed record with no signals.
func Build(msg *blf.CANMessage, tables dbc.ChannelTables) (Record, []string) {
	rec := Record{
		Timestamp: float64(msg.TimestampNS) / 1e9,
		Channel:   ChannelTag(msg.Channel),
		ID:        msg.ID,
		EventType: EventType,
		Dir:       Direction,
		DLC:       msg.DLC,
		Data:      append(Payload(nil), msg.Data[:]...),
		Signals:   []DecodedSignal{},
	}

	def, ok := tables.Lookup(msg.Channel, msg.ID)
	if !ok {
		return rec, nil
	}
	rec.Name = def.Name

	var names []string
	for _, sig := range def.Signals {
		v, ok := decode.Value(sig, msg.Data[:])
		if !ok {
			continue
		}
		name := QualifiedName(msg.Channel, sig.Name)
		rec.Signals = append(rec.Signals, DecodedSignal{Signal: name, Value: v, Unit: sig.Unit})
		names = append(names, name)
	}
	return rec, names
}

// Walk decodes every CAN data frame in the BLF buffer in log order and calls
// fn with each record and its discovered names. Other object kinds are
// skipped. Iteration stops at the first error from the reader or fn.
func Walk(data []byte, tables dbc.ChannelTables, fn func(Record, []string) error) error {
	return eachMessage(data, func(msg *blf.CANMessage) error {
		rec, names := Build(msg, tables)
		return fn(rec, names)
	})
}

// Count returns the number of CAN data frames in the BLF buffer without
// decoding any signals.
func Count(data []byte) (int, error) {
	n := 0
	err := eachMessage(data, func(*blf.CANMessage) error {
		n++
		return nil
	})
	return n, err
}

func eachMessage(data []byte, fn func(*blf.CANMessage) error) error {
	r, err := blf.NewReader(data)
	if err != nil {
		return err
	}
	for {
		obj, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		msg, ok := obj.(*blf.CANMessage)
		if !ok {
			continue
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
}

// Registry accumulates qualified signal names.
type Registry struct {
	seen map[string]struct{}
}

// Add merges names into the registry.
func (g *Registry) Add(names ...string) {
	if g.seen == nil {
		g.seen = make(map[string]struct{}, len(names))
	}
	for _, n := range names {
		g.seen[n] = struct{}{}
	}
}

// Has reports whether name has been added.
func (g *Registry) Has(name string) bool {
	_, ok := g.seen[name]
	return ok
}

// Len returns the number of distinct names.
func (g *Registry) Len() int { return len(g.seen) }

// Sorted returns the distinct names in ascending order.
func (g *Registry) Sorted() []string {
	out := make([]string, 0, len(g.seen))
	for n := range g.seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
