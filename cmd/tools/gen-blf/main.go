// Command gen-blf writes a synthetic two-bus BLF log and the DBC files that
// decode it, for demos and manual testing.
package main

import (
	"bufio"
	"encoding/binary"
	"flag"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/canlog/internal/blf"
)

const engineDBC = `VERSION ""

BU_: ECU DASH

BO_ 256 EngineData: 8 ECU
 SG_ EngineSpeed : 0|16@1+ (0.25,0) [0|16383.75] "rpm" DASH
 SG_ CoolantTemp : 16|8@1- (1,-40) [-40|215] "degC" DASH
 SG_ Throttle : 31|8@0+ (0.5,0) [0|127.5] "%" DASH
`

const chassisDBC = `VERSION ""

BU_: ABS DASH

BO_ 768 VehicleDynamics: 8 ABS
 SG_ Speed : 0|16@1+ (0.01,0) [0|655.35] "km/h" DASH
 SG_ Accel : 16|16@1- (0.001,0) [-32.768|32.767] "m/s2" DASH
`

func main() {
	output := flag.String("o", "sample.blf", "output path")
	frames := flag.Int("n", 10000, "number of CAN frames")
	period := flag.Duration("period", 10*time.Millisecond, "time between frames")
	containerSize := flag.Int("container-size", blf.DefaultContainerSize, "uncompressed LOG_CONTAINER size")
	dbcDir := flag.String("dbc-dir", ".", "directory for engine.dbc and chassis.dbc")
	flag.Parse()

	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("failed to create %s: %v", *output, err)
	}
	bw := bufio.NewWriter(f)
	if err := generate(bw, *frames, *period, *containerSize); err != nil {
		log.Fatalf("failed to generate log: %v", err)
	}
	if err := bw.Flush(); err != nil {
		log.Fatalf("failed to write %s: %v", *output, err)
	}
	if err := f.Close(); err != nil {
		log.Fatalf("failed to close %s: %v", *output, err)
	}
	log.Printf("✓ Created: %s (%d frames)", *output, *frames)

	for name, text := range map[string]string{"engine.dbc": engineDBC, "chassis.dbc": chassisDBC} {
		p := filepath.Join(*dbcDir, name)
		if err := os.WriteFile(p, []byte(text), 0644); err != nil {
			log.Fatalf("failed to write %s: %v", p, err)
		}
		log.Printf("✓ Created: %s", p)
	}
	log.Printf("decode with: canlog stats -log %s -dbc %s -channel 1 -dbc %s -channel 2",
		*output, filepath.Join(*dbcDir, "engine.dbc"), filepath.Join(*dbcDir, "chassis.dbc"))
}

// generate writes n frames alternating between EngineData on channel 1 and
// VehicleDynamics on channel 2. The vehicle accelerates for a minute and
// then cruises, with engine speed and throttle following it.
func generate(w io.Writer, n int, period time.Duration, containerSize int) error {
	bw := blf.NewWriter(w, time.Now().UTC().Truncate(time.Second))
	bw.ContainerSize = containerSize

	for i := 0; i < n; i++ {
		ts := uint64(i) * uint64(period)
		t := float64(ts) / 1e9

		speed := 100 * math.Min(t/60, 1)
		accel := 0.0
		if t < 60 {
			accel = 100.0 / 3.6 / 60
		}

		m := &blf.CANMessage{DLC: 8}
		m.TimestampNS = ts
		if i%2 == 0 {
			rpm := 800 + speed*30 + 150*math.Sin(t)
			throttle := 15 + 40*accel + 5*math.Sin(t/3)
			coolant := 20 + 65*(1-math.Exp(-t/120))
			m.Channel, m.ID = 1, 0x100
			binary.LittleEndian.PutUint16(m.Data[0:], uint16(math.Round(rpm/0.25)))
			m.Data[2] = byte(int8(math.Round(coolant + 40)))
			m.Data[3] = byte(math.Round(throttle / 0.5))
		} else {
			m.Channel, m.ID = 2, 0x300
			binary.LittleEndian.PutUint16(m.Data[0:], uint16(math.Round(speed/0.01)))
			binary.LittleEndian.PutUint16(m.Data[2:], uint16(int16(math.Round(accel/0.001))))
		}
		if err := bw.WriteCANMessage(m); err != nil {
			return err
		}
		if (i+1)%100000 == 0 {
			log.Printf("%d/%d frames", i+1, n)
		}
	}
	return bw.Close()
}
