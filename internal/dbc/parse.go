package dbc

import (
	"fmt"

	"go.einride.tech/can/pkg/dbc"

	"github.com/banshee-data/canlog/internal/canerr"
)

// Parse parses DBC text into a Table. name is only used in error positions.
func Parse(name, text string) (*Table, error) {
	p := dbc.NewParser(name, []byte(text))
	if err := p.Parse(); err != nil {
		return nil, canerr.Wrap(canerr.ErrDefinitionParse, err, "failed to parse %s", name)
	}

	var msgs []MessageDefinition
	for _, def := range p.Defs() {
		md, ok := def.(*dbc.MessageDef)
		if !ok {
			continue
		}
		msgs = append(msgs, convertMessage(md))
	}
	return NewTable(msgs), nil
}

func convertMessage(md *dbc.MessageDef) MessageDefinition {
	m := MessageDefinition{
		ID:      uint32(md.MessageID),
		Name:    string(md.Name),
		Signals: make([]SignalDefinition, 0, len(md.Signals)),
	}
	for _, sd := range md.Signals {
		order := LittleEndian
		if sd.IsBigEndian {
			order = BigEndian
		}
		m.Signals = append(m.Signals, SignalDefinition{
			Name:     string(sd.Name),
			StartBit: uint(sd.StartBit),
			Length:   uint(sd.Size),
			Order:    order,
			Signed:   sd.IsSigned,
			Factor:   sd.Factor,
			Offset:   sd.Offset,
			Unit:     sd.Unit,
		})
	}
	return m
}

// BuildChannelTables parses texts[i] as the definitions for channels[i].
// Both lists must have the same length. A channel listed twice keeps the
// definitions of its last entry.
func BuildChannelTables(texts []string, channels []uint16) (ChannelTables, error) {
	if len(texts) != len(channels) {
		return nil, canerr.Wrap(canerr.ErrInputShape, nil,
			"dbc_texts and channel_map must have same length (%d != %d)", len(texts), len(channels))
	}
	tables := make(ChannelTables, len(channels))
	for i, text := range texts {
		ch := channels[i]
		t, err := Parse(fmt.Sprintf("channel%d.dbc", ch), text)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DBC for channel %d: %w", ch, err)
		}
		tables[ch] = t
	}
	return tables, nil
}
