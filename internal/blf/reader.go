package blf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/banshee-data/canlog/internal/canerr"
	"github.com/banshee-data/canlog/internal/monitoring"
)

// maxInflateHint caps the buffer preallocated from a container's declared
// uncompressed size.
const maxInflateHint = 16 << 20

var errIncomplete = errors.New("incomplete object")

// container is a LOG_CONTAINER object. It is consumed by the Reader and
// never returned to callers.
type container struct {
	ObjectHeader
	method           uint16
	uncompressedSize uint32
	payload          []byte
}

// Reader iterates the objects of an in-memory BLF file. Compressed
// containers are inflated one at a time, so memory use is bounded by the
// largest container rather than the whole log.
type Reader struct {
	data   []byte
	off    int
	header FileHeader

	pending   []byte
	truncated bool
}

// NewReader validates the file header of data and positions the reader at
// the first object.
func NewReader(data []byte) (*Reader, error) {
	h, err := parseFileHeader(data)
	if err != nil {
		return nil, err
	}
	return &Reader{data: data, off: int(h.HeaderSize), header: h}, nil
}

// Header returns the decoded file header.
func (r *Reader) Header() FileHeader { return r.header }

// Truncated reports whether iteration stopped at an object cut off by the
// end of the buffer. This is expected when reading a prefix of a file.
func (r *Reader) Truncated() bool { return r.truncated }

// Next returns the next object, or io.EOF when the log is exhausted.
func (r *Reader) Next() (Object, error) {
	for {
		if len(r.pending) > 0 {
			final := r.off >= len(r.data)
			obj, n, err := parseObject(r.pending, final)
			switch {
			case err == nil:
				if _, nested := obj.(*container); nested {
					return nil, canerr.Wrap(canerr.ErrContainerParse, nil, "nested LOG_CONTAINER")
				}
				r.pending = r.pending[n:]
				return obj, nil
			case !errors.Is(err, errIncomplete):
				return nil, err
			case final:
				r.finish()
				return nil, io.EOF
			}
		}

		if r.off >= len(r.data) {
			return nil, io.EOF
		}

		rest := r.data[r.off:]
		if allZero(rest) {
			r.off = len(r.data)
			continue
		}
		obj, n, err := parseObject(rest, true)
		if errors.Is(err, errIncomplete) {
			monitoring.Logf("blf: object at offset %d cut off by end of buffer (%d bytes left)", r.off, len(rest))
			r.off = len(r.data)
			r.truncated = true
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("object at offset %d: %w", r.off, err)
		}
		r.off += n

		c, ok := obj.(*container)
		if !ok {
			return obj, nil
		}
		inflated, err := c.inflate()
		if err != nil {
			return nil, fmt.Errorf("container at offset %d: %w", r.off-n, err)
		}
		r.appendPending(inflated)
	}
}

func (r *Reader) appendPending(b []byte) {
	if len(r.pending) == 0 {
		r.pending = b
		return
	}
	joined := make([]byte, 0, len(r.pending)+len(b))
	joined = append(joined, r.pending...)
	r.pending = append(joined, b...)
}

func (r *Reader) finish() {
	if !allZero(r.pending) {
		r.truncated = true
		monitoring.Logf("blf: discarding %d bytes of incomplete object data at end of log", len(r.pending))
	}
	r.pending = nil
}

func (c *container) inflate() ([]byte, error) {
	switch c.method {
	case compressionNone:
		return c.payload, nil
	case compressionZlib:
		zr, err := zlib.NewReader(bytes.NewReader(c.payload))
		if err != nil {
			return nil, canerr.Wrap(canerr.ErrContainerParse, err, "zlib header")
		}
		defer zr.Close()
		var buf bytes.Buffer
		hint := int(c.uncompressedSize)
		if hint > maxInflateHint {
			hint = maxInflateHint
		}
		buf.Grow(hint)
		if _, err := io.Copy(&buf, zr); err != nil {
			return nil, canerr.Wrap(canerr.ErrContainerParse, err, "inflate")
		}
		return buf.Bytes(), nil
	}
	return nil, canerr.Wrap(canerr.ErrContainerParse, nil, "unsupported compression method %d", c.method)
}

func parseFileHeader(data []byte) (FileHeader, error) {
	var h FileHeader
	if len(data) < 8 {
		return h, canerr.Wrap(canerr.ErrContainerParse, nil, "file too short for header (%d bytes)", len(data))
	}
	if string(data[0:4]) != fileSignature {
		return h, canerr.Wrap(canerr.ErrContainerParse, nil, "bad file signature %q", data[0:4])
	}
	h.HeaderSize = binary.LittleEndian.Uint32(data[4:])
	if h.HeaderSize < 8 || int(h.HeaderSize) > len(data) {
		return h, canerr.Wrap(canerr.ErrContainerParse, nil, "invalid header size %d for %d byte buffer", h.HeaderSize, len(data))
	}
	hdr := data[:h.HeaderSize]
	if len(hdr) >= 72 {
		h.APINumber = binary.LittleEndian.Uint32(hdr[8:])
		h.ApplicationID = hdr[12]
		h.CompressionLevel = hdr[13]
		h.FileSize = binary.LittleEndian.Uint64(hdr[16:])
		h.UncompressedSize = binary.LittleEndian.Uint64(hdr[24:])
		h.ObjectCount = binary.LittleEndian.Uint32(hdr[32:])
		h.MeasurementStart = systemTime(hdr[40:56])
		h.LastObjectTime = systemTime(hdr[56:72])
	}
	return h, nil
}

// parseObject decodes the object at the start of b and returns it with the
// number of bytes it occupies including padding. When final is false the
// trailing padding must also be present, since it may live in the next
// container.
func parseObject(b []byte, final bool) (Object, int, error) {
	if len(b) < baseHeaderSize {
		return nil, 0, errIncomplete
	}
	if string(b[0:4]) != objectSignature {
		return nil, 0, canerr.Wrap(canerr.ErrContainerParse, nil, "bad object signature %q", b[0:4])
	}
	headerSize := int(binary.LittleEndian.Uint16(b[4:]))
	headerVersion := binary.LittleEndian.Uint16(b[6:])
	objectSize := int(binary.LittleEndian.Uint32(b[8:]))
	objectType := ObjectType(binary.LittleEndian.Uint32(b[12:]))

	if headerSize < baseHeaderSize || objectSize < headerSize {
		return nil, 0, canerr.Wrap(canerr.ErrContainerParse, nil,
			"invalid sizes header=%d object=%d for %s", headerSize, objectSize, objectType)
	}
	consumed := objectSize + objectSize%4
	if len(b) < objectSize || (!final && len(b) < consumed) {
		return nil, 0, errIncomplete
	}
	if consumed > len(b) {
		consumed = len(b)
	}
	obj := b[:objectSize]

	oh := ObjectHeader{ObjectType: objectType, HeaderVersion: headerVersion, Size: uint32(objectSize)}

	if objectType == TypeLogContainer {
		if objectSize < headerSize+containerInfoLen {
			return nil, 0, canerr.Wrap(canerr.ErrContainerParse, nil, "container too small (%d bytes)", objectSize)
		}
		info := obj[headerSize:]
		return &container{
			ObjectHeader:     oh,
			method:           binary.LittleEndian.Uint16(info[0:]),
			uncompressedSize: binary.LittleEndian.Uint32(info[8:]),
			payload:          obj[headerSize+containerInfoLen:],
		}, consumed, nil
	}

	switch headerVersion {
	case 1:
		if headerSize < headerV1Size {
			return nil, 0, canerr.Wrap(canerr.ErrContainerParse, nil, "v1 header too small (%d)", headerSize)
		}
		oh.Flags = binary.LittleEndian.Uint32(obj[16:])
		oh.ObjectVersion = binary.LittleEndian.Uint16(obj[22:])
		oh.TimestampNS = normalizeTimestamp(binary.LittleEndian.Uint64(obj[24:]), oh.Flags)
	case 2:
		if headerSize < headerV2Size {
			return nil, 0, canerr.Wrap(canerr.ErrContainerParse, nil, "v2 header too small (%d)", headerSize)
		}
		oh.Flags = binary.LittleEndian.Uint32(obj[16:])
		oh.ObjectVersion = binary.LittleEndian.Uint16(obj[22:])
		oh.TimestampNS = normalizeTimestamp(binary.LittleEndian.Uint64(obj[24:]), oh.Flags)
	default:
		return nil, 0, canerr.Wrap(canerr.ErrContainerParse, nil, "unsupported object header version %d", headerVersion)
	}

	body := obj[headerSize:]
	switch objectType {
	case TypeCANMessage, TypeCANMessage2:
		if len(body) < canBodySize {
			return nil, 0, canerr.Wrap(canerr.ErrContainerParse, nil, "%s body too small (%d bytes)", objectType, len(body))
		}
		m := &CANMessage{
			ObjectHeader: oh,
			Channel:      binary.LittleEndian.Uint16(body[0:]),
			Flags:        body[2],
			DLC:          body[3],
			ID:           binary.LittleEndian.Uint32(body[4:]),
		}
		copy(m.Data[:], body[8:16])
		if objectType == TypeCANMessage2 && len(body) >= can2BodySize {
			m.FrameLength = binary.LittleEndian.Uint32(body[16:])
			m.BitCount = body[20]
		}
		return m, consumed, nil
	}
	return &Unknown{ObjectHeader: oh, Body: body}, consumed, nil
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
