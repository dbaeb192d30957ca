// Package blf reads and writes Vector Binary Logging Format containers.
//
// A BLF file is a LOGG file header followed by LOBJ objects. Most writers
// wrap the object stream in LOG_CONTAINER objects whose payload is zlib
// compressed; inner objects may straddle container boundaries. Every object
// is followed by objectSize%4 bytes of padding.
package blf

import (
	"encoding/binary"
	"time"
)

// ObjectType is the BLF object type code.
type ObjectType uint32

const (
	TypeCANMessage   ObjectType = 1
	TypeCANError     ObjectType = 2
	TypeCANOverload  ObjectType = 3
	TypeCANStatistic ObjectType = 4
	TypeLogContainer ObjectType = 10
	TypeCANErrorExt  ObjectType = 73
	TypeCANMessage2  ObjectType = 86
	TypeCANFDMessage ObjectType = 100
)

func (t ObjectType) String() string {
	switch t {
	case TypeCANMessage:
		return "CAN_MESSAGE"
	case TypeCANError:
		return "CAN_ERROR"
	case TypeCANOverload:
		return "CAN_OVERLOAD"
	case TypeCANStatistic:
		return "CAN_STATISTIC"
	case TypeLogContainer:
		return "LOG_CONTAINER"
	case TypeCANErrorExt:
		return "CAN_ERROR_EXT"
	case TypeCANMessage2:
		return "CAN_MESSAGE2"
	case TypeCANFDMessage:
		return "CAN_FD_MESSAGE"
	}
	return "UNKNOWN"
}

// Object header timestamp flags.
const (
	FlagTimeTenMicros uint32 = 0x1
	FlagTimeOneNanos  uint32 = 0x2
)

// Wire sizes.
const (
	fileSignature    = "LOGG"
	objectSignature  = "LOBJ"
	FileHeaderSize   = 144
	baseHeaderSize   = 16
	headerV1Size     = 32
	headerV2Size     = 40
	containerInfoLen = 16
	canBodySize      = 16
	can2BodySize     = 24
)

// Container compression methods.
const (
	compressionNone uint16 = 0
	compressionZlib uint16 = 2
)

// FileHeader is the decoded LOGG header.
type FileHeader struct {
	HeaderSize       uint32
	APINumber        uint32
	ApplicationID    uint8
	CompressionLevel uint8
	FileSize         uint64
	UncompressedSize uint64
	ObjectCount      uint32
	MeasurementStart time.Time
	LastObjectTime   time.Time
}

// ObjectHeader carries the fields shared by every LOBJ object.
type ObjectHeader struct {
	ObjectType    ObjectType
	HeaderVersion uint16
	Size          uint32
	Flags         uint32
	ObjectVersion uint16
	// TimestampNS is the object timestamp normalized to nanoseconds
	// regardless of the resolution flag it was recorded with.
	TimestampNS uint64
}

// Header returns h. Embedding ObjectHeader makes a type an Object.
func (h ObjectHeader) Header() ObjectHeader { return h }

// Object is one decoded BLF object.
type Object interface {
	Header() ObjectHeader
}

// CANMessage is a classic CAN data frame (CAN_MESSAGE or CAN_MESSAGE2).
type CANMessage struct {
	ObjectHeader
	Channel     uint16
	Flags       uint8
	DLC         uint8
	ID          uint32
	Data        [8]byte
	FrameLength uint32
	BitCount    uint8
}

// Unknown is any object kind this package does not decode.
type Unknown struct {
	ObjectHeader
	Body []byte
}

// IsDataFrame reports whether obj is a CAN data frame.
func IsDataFrame(obj Object) bool {
	_, ok := obj.(*CANMessage)
	return ok
}

func normalizeTimestamp(raw uint64, flags uint32) uint64 {
	if flags&FlagTimeTenMicros != 0 {
		return raw * 10000
	}
	return raw
}

// systemTime decodes a Windows SYSTEMTIME (8 little-endian uint16 fields).
func systemTime(b []byte) time.Time {
	if len(b) < 16 {
		return time.Time{}
	}
	u := func(i int) int { return int(binary.LittleEndian.Uint16(b[i*2:])) }
	year := u(0)
	if year == 0 {
		return time.Time{}
	}
	return time.Date(year, time.Month(u(1)), u(3), u(4), u(5), u(6), u(7)*int(time.Millisecond), time.UTC)
}

func putSystemTime(b []byte, t time.Time) {
	if t.IsZero() {
		return
	}
	t = t.UTC()
	vals := []int{t.Year(), int(t.Month()), int(t.Weekday()), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond() / int(time.Millisecond)}
	for i, v := range vals {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(v))
	}
}
