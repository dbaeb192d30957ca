// Package testutil provides shared test utilities and fixtures.
//
// The fixtures describe a small two-bus vehicle: channel 1 carries engine
// messages (EngineDBC) and channel 2 carries vehicle dynamics
// (VehicleDBC). Both buses define a Status message with a Mode signal so
// tests can check that qualified names keep them apart.
package testutil

import (
	"bytes"
	"encoding/binary"
	"math"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/canlog/internal/blf"
)

// EngineDBC defines the channel 1 messages.
const EngineDBC = `VERSION ""

BU_: ECU DASH

BO_ 256 EngineData: 8 ECU
 SG_ EngineSpeed : 0|16@1+ (0.25,0) [0|16383.75] "rpm" DASH
 SG_ CoolantTemp : 16|8@1- (1,-40) [-40|215] "degC" DASH
 SG_ Throttle : 31|8@0+ (0.5,0) [0|127.5] "%" DASH

BO_ 512 Status: 2 ECU
 SG_ Mode : 0|4@1+ (1,0) [0|15] "" DASH
`

// VehicleDBC defines the channel 2 messages.
const VehicleDBC = `VERSION ""

BU_: ABS DASH

BO_ 768 VehicleDynamics: 8 ABS
 SG_ Speed : 0|16@1+ (0.01,0) [0|655.35] "km/h" DASH
 SG_ Accel : 16|16@1- (0.001,0) [-32.768|32.767] "m/s2" DASH

BO_ 512 Status: 2 ABS
 SG_ Mode : 0|4@1+ (1,0) [0|15] "" DASH
`

// Message ids used by the fixtures.
const (
	EngineDataID      = 0x100
	StatusID          = 0x200
	VehicleDynamicsID = 0x300
	UnknownID         = 0x7FF
)

// Texts and Channels are the definition inputs matching the fixtures.
var (
	Texts    = []string{EngineDBC, VehicleDBC}
	Channels = []uint16{1, 2}
)

// Start is the measurement start written into fixture logs.
var Start = time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)

// Frame is one object to write into a fixture log. A zero Kind writes a
// CAN_MESSAGE2; any other non-CAN kind writes Data as an opaque body.
type Frame struct {
	Kind    blf.ObjectType
	Channel uint16
	ID      uint32
	TimeNS  uint64
	Data    []byte
}

// Option adjusts the fixture writer.
type Option func(*blf.Writer)

// WithContainerSize forces small containers so objects straddle them.
func WithContainerSize(n int) Option {
	return func(w *blf.Writer) { w.ContainerSize = n }
}

// BuildBLF writes frames into an in-memory BLF file.
func BuildBLF(t testing.TB, frames []Frame, opts ...Option) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := blf.NewWriter(&buf, Start)
	for _, o := range opts {
		o(w)
	}
	for _, f := range frames {
		var err error
		switch f.Kind {
		case 0, blf.TypeCANMessage, blf.TypeCANMessage2:
			m := &blf.CANMessage{Channel: f.Channel, ID: f.ID, DLC: uint8(len(f.Data))}
			m.ObjectType = f.Kind
			m.TimestampNS = f.TimeNS
			copy(m.Data[:], f.Data)
			err = w.WriteCANMessage(m)
		default:
			err = w.WriteObject(f.Kind, f.TimeNS, f.Data)
		}
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// EngineFrame encodes an EngineData frame on channel 1.
func EngineFrame(timeNS uint64, rpm float64, coolant int, throttle float64) Frame {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint16(data[0:], uint16(rpm/0.25))
	data[2] = byte(int8(coolant + 40))
	data[3] = byte(throttle / 0.5)
	return Frame{Channel: 1, ID: EngineDataID, TimeNS: timeNS, Data: data}
}

// VehicleFrame encodes a VehicleDynamics frame on channel 2.
func VehicleFrame(timeNS uint64, speed, accel float64) Frame {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint16(data[0:], uint16(math.Round(speed/0.01)))
	binary.LittleEndian.PutUint16(data[2:], uint16(int16(math.Round(accel/0.001))))
	return Frame{Channel: 2, ID: VehicleDynamicsID, TimeNS: timeNS, Data: data}
}

// StatusFrame encodes a Status frame on the given channel.
func StatusFrame(channel uint16, timeNS uint64, mode uint8) Frame {
	return Frame{Channel: channel, ID: StatusID, TimeNS: timeNS, Data: []byte{mode & 0x0F, 0}}
}

// SampleFrames returns n frames cycling through engine, vehicle, status and
// undefined messages, 10ms apart. Frame i is:
//
//	i%4 == 0  EngineData, rpm 1000+i, coolant 50, throttle 25
//	i%4 == 1  VehicleDynamics, speed i, accel -1.5
//	i%4 == 2  Status on channel 1, mode i%16
//	i%4 == 3  undefined id 0x7FF on channel 1
func SampleFrames(n int) []Frame {
	out := make([]Frame, n)
	for i := range out {
		ts := uint64(i) * uint64(10*time.Millisecond)
		switch i % 4 {
		case 0:
			out[i] = EngineFrame(ts, float64(1000+i), 50, 25)
		case 1:
			out[i] = VehicleFrame(ts, float64(i), -1.5)
		case 2:
			out[i] = StatusFrame(1, ts, uint8(i%16))
		default:
			out[i] = Frame{Channel: 1, ID: UnknownID, TimeNS: ts, Data: []byte{0xDE, 0xAD, 0xBE, 0xEF}}
		}
	}
	return out
}

// SampleLog builds a log of SampleFrames(n).
func SampleLog(t testing.TB, n int, opts ...Option) []byte {
	t.Helper()
	return BuildBLF(t, SampleFrames(n), opts...)
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d (%s)", got, want, http.StatusText(got))
	}
}
