// Package decode extracts physical signal values from CAN payloads.
package decode

import (
	"encoding/binary"

	"github.com/banshee-data/canlog/internal/dbc"
)

// PayloadSize is the number of payload bytes considered when decoding.
// Shorter payloads are zero padded, longer ones are truncated.
const PayloadSize = 8

// Raw assembles the first eight payload bytes into a little-endian word.
func Raw(payload []byte) uint64 {
	var buf [PayloadSize]byte
	copy(buf[:], payload)
	return binary.LittleEndian.Uint64(buf[:])
}

// Value decodes def from payload and applies its scaling. ok is false when
// the signal's bit span does not fit the 64-bit payload window.
func Value(def dbc.SignalDefinition, payload []byte) (value float64, ok bool) {
	if !def.InWindow() {
		return 0, false
	}
	raw := Raw(payload)

	var bits uint64
	if def.Order == dbc.BigEndian {
		bits, ok = motorola(raw, def.StartBit, def.Length)
		if !ok {
			return 0, false
		}
	} else {
		bits = (raw >> def.StartBit) & mask(def.Length)
	}

	var n float64
	if def.Signed {
		shift := 64 - def.Length
		n = float64(int64(bits<<shift) >> shift)
	} else {
		n = float64(bits)
	}
	return n*def.Factor + def.Offset, true
}

func mask(length uint) uint64 {
	if length >= 64 {
		return ^uint64(0)
	}
	return 1<<length - 1
}

// motorola gathers length bits MSB first starting at start, following the
// DBC sawtooth numbering: within a byte the walk moves towards bit 0, then
// continues at bit 7 of the next byte.
func motorola(raw uint64, start, length uint) (uint64, bool) {
	var v uint64
	pos := int(start)
	for i := uint(0); i < length; i++ {
		if pos < 0 || pos > 63 {
			return 0, false
		}
		v = v<<1 | (raw>>uint(pos))&1
		if pos%8 == 0 {
			pos += 15
		} else {
			pos--
		}
	}
	return v, true
}
