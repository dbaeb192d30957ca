package blf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zlib"
)

// DefaultContainerSize is the uncompressed payload size at which the Writer
// closes a LOG_CONTAINER.
const DefaultContainerSize = 128 << 10

// Writer produces a BLF file. Objects are buffered into zlib compressed
// containers and the file is emitted on Close, once the header totals are
// known.
type Writer struct {
	// ContainerSize is the uncompressed container payload size. Objects are
	// split across containers when they do not fit.
	ContainerSize int
	// Level is the zlib level; zlib.NoCompression stores containers raw.
	Level int

	w     io.Writer
	start time.Time

	body  bytes.Buffer
	inner bytes.Buffer

	objects      uint32
	uncompressed uint64
	lastNS       uint64
	closed       bool
}

// NewWriter returns a Writer that emits to w on Close. start is recorded as
// the measurement start time.
func NewWriter(w io.Writer, start time.Time) *Writer {
	return &Writer{
		ContainerSize: DefaultContainerSize,
		Level:         zlib.DefaultCompression,
		w:             w,
		start:         start,
	}
}

// WriteCANMessage appends a CAN data frame. A zero ObjectType is written as
// CAN_MESSAGE2.
func (wr *Writer) WriteCANMessage(m *CANMessage) error {
	typ := m.ObjectType
	if typ == 0 {
		typ = TypeCANMessage2
	}
	size := canBodySize
	if typ == TypeCANMessage2 {
		size = can2BodySize
	}
	body := make([]byte, size)
	binary.LittleEndian.PutUint16(body[0:], m.Channel)
	body[2] = m.Flags
	body[3] = m.DLC
	binary.LittleEndian.PutUint32(body[4:], m.ID)
	copy(body[8:16], m.Data[:])
	if typ == TypeCANMessage2 {
		binary.LittleEndian.PutUint32(body[16:], m.FrameLength)
		body[20] = m.BitCount
	}
	return wr.WriteObject(typ, m.TimestampNS, body)
}

// WriteObject appends an arbitrary object with a v1 header and nanosecond
// timestamp.
func (wr *Writer) WriteObject(typ ObjectType, timestampNS uint64, body []byte) error {
	if wr.closed {
		return errors.New("blf writer is closed")
	}
	if typ == TypeLogContainer {
		return errors.New("containers are managed by the writer")
	}
	objectSize := headerV1Size + len(body)
	hdr := make([]byte, headerV1Size)
	copy(hdr[0:4], objectSignature)
	binary.LittleEndian.PutUint16(hdr[4:], headerV1Size)
	binary.LittleEndian.PutUint16(hdr[6:], 1)
	binary.LittleEndian.PutUint32(hdr[8:], uint32(objectSize))
	binary.LittleEndian.PutUint32(hdr[12:], uint32(typ))
	binary.LittleEndian.PutUint32(hdr[16:], FlagTimeOneNanos)
	binary.LittleEndian.PutUint64(hdr[24:], timestampNS)

	wr.inner.Write(hdr)
	wr.inner.Write(body)
	wr.inner.Write(make([]byte, objectSize%4))
	wr.objects++
	if timestampNS > wr.lastNS {
		wr.lastNS = timestampNS
	}

	size := wr.ContainerSize
	if size <= 0 {
		size = DefaultContainerSize
	}
	for wr.inner.Len() >= size {
		if err := wr.emitContainer(wr.inner.Next(size)); err != nil {
			return err
		}
	}
	return nil
}

func (wr *Writer) emitContainer(chunk []byte) error {
	method := compressionZlib
	payload := chunk
	if wr.Level == zlib.NoCompression {
		method = compressionNone
	} else {
		var zbuf bytes.Buffer
		zw, err := zlib.NewWriterLevel(&zbuf, wr.Level)
		if err != nil {
			return fmt.Errorf("zlib writer: %w", err)
		}
		if _, err := zw.Write(chunk); err != nil {
			return fmt.Errorf("compress container: %w", err)
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("compress container: %w", err)
		}
		payload = zbuf.Bytes()
	}

	objectSize := baseHeaderSize + containerInfoLen + len(payload)
	hdr := make([]byte, baseHeaderSize+containerInfoLen)
	copy(hdr[0:4], objectSignature)
	binary.LittleEndian.PutUint16(hdr[4:], baseHeaderSize)
	binary.LittleEndian.PutUint16(hdr[6:], 1)
	binary.LittleEndian.PutUint32(hdr[8:], uint32(objectSize))
	binary.LittleEndian.PutUint32(hdr[12:], uint32(TypeLogContainer))
	binary.LittleEndian.PutUint16(hdr[16:], method)
	binary.LittleEndian.PutUint32(hdr[24:], uint32(len(chunk)))

	wr.body.Write(hdr)
	wr.body.Write(payload)
	wr.body.Write(make([]byte, objectSize%4))
	wr.uncompressed += uint64(len(chunk))
	return nil
}

// Close flushes the last container and writes the complete file.
func (wr *Writer) Close() error {
	if wr.closed {
		return nil
	}
	wr.closed = true
	if wr.inner.Len() > 0 {
		if err := wr.emitContainer(wr.inner.Next(wr.inner.Len())); err != nil {
			return err
		}
	}

	hdr := make([]byte, FileHeaderSize)
	copy(hdr[0:4], fileSignature)
	binary.LittleEndian.PutUint32(hdr[4:], FileHeaderSize)
	if wr.Level != zlib.NoCompression {
		hdr[13] = 6
	}
	binary.LittleEndian.PutUint64(hdr[16:], uint64(FileHeaderSize+wr.body.Len()))
	binary.LittleEndian.PutUint64(hdr[24:], uint64(FileHeaderSize)+wr.uncompressed)
	binary.LittleEndian.PutUint32(hdr[32:], wr.objects)
	putSystemTime(hdr[40:56], wr.start)
	if !wr.start.IsZero() {
		putSystemTime(hdr[56:72], wr.start.Add(time.Duration(wr.lastNS)))
	}

	if _, err := wr.w.Write(hdr); err != nil {
		return err
	}
	_, err := wr.body.WriteTo(wr.w)
	return err
}
