// Package dbc holds per-channel message and signal definitions and builds
// them from DBC text.
package dbc

// ByteOrder is the bit numbering convention of a signal within its payload.
type ByteOrder int

const (
	// LittleEndian is the Intel convention: StartBit names the least
	// significant bit and the signal grows towards higher bit numbers.
	LittleEndian ByteOrder = iota
	// BigEndian is the Motorola convention: StartBit names the most
	// significant bit in DBC sawtooth numbering.
	BigEndian
)

func (o ByteOrder) String() string {
	if o == BigEndian {
		return "big_endian"
	}
	return "little_endian"
}

// SignalDefinition describes one signal packed into a message payload.
type SignalDefinition struct {
	Name     string
	StartBit uint
	Length   uint
	Order    ByteOrder
	Signed   bool
	Factor   float64
	Offset   float64
	Unit     string
}

// InWindow reports whether the signal's bit span fits the 64-bit payload
// window. Signals outside the window are skipped during decoding.
func (s SignalDefinition) InWindow() bool {
	return s.Length >= 1 && s.Length <= 64 && s.StartBit+s.Length <= 64
}

// MessageDefinition is a message id with its ordered signals.
type MessageDefinition struct {
	ID      uint32
	Name    string
	Signals []SignalDefinition
}

// Table is the set of message definitions for one channel.
type Table struct {
	messages map[uint32]*MessageDefinition
	order    []uint32
}

// NewTable builds a table from msgs. When two messages share an id the first
// one wins, so lookups behave like a linear search in definition order.
func NewTable(msgs []MessageDefinition) *Table {
	t := &Table{messages: make(map[uint32]*MessageDefinition, len(msgs))}
	for i := range msgs {
		m := msgs[i]
		if _, dup := t.messages[m.ID]; dup {
			continue
		}
		t.messages[m.ID] = &m
		t.order = append(t.order, m.ID)
	}
	return t
}

// Lookup returns the message with exactly the given id.
func (t *Table) Lookup(id uint32) (*MessageDefinition, bool) {
	if t == nil {
		return nil, false
	}
	m, ok := t.messages[id]
	return m, ok
}

// Messages returns the table's messages in definition order.
func (t *Table) Messages() []*MessageDefinition {
	if t == nil {
		return nil
	}
	out := make([]*MessageDefinition, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.messages[id])
	}
	return out
}

// Len returns the number of distinct message ids.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.order)
}

// ChannelTables maps a bus channel number to its definition table.
type ChannelTables map[uint16]*Table

// Lookup finds the message for id on channel.
func (c ChannelTables) Lookup(channel uint16, id uint32) (*MessageDefinition, bool) {
	return c[channel].Lookup(id)
}
