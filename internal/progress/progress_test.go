package progress

import (
	"errors"
	"testing"

	"github.com/banshee-data/canlog/internal/monitoring"
)

func TestNotifySwallowsFailures(t *testing.T) {
	original := monitoring.Logf
	defer func() { monitoring.Logf = original }()

	var logged int
	monitoring.SetLogger(func(string, ...interface{}) { logged++ })

	Notify(Func(func(int) error { return errors.New("sink closed") }), 10000)
	Notify(Func(func(int) error { panic("boom") }), 20000)
	Notify(nil, 30000)

	if logged != 2 {
		t.Errorf("expected 2 logged failures, got %d", logged)
	}
}

func TestNotifyDelivers(t *testing.T) {
	var got []int
	s := Func(func(n int) error {
		got = append(got, n)
		return nil
	})
	Notify(s, 1)
	Notify(s, 2)
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("unexpected deliveries: %v", got)
	}
}

func TestEvery(t *testing.T) {
	tests := []struct {
		count, interval int
		want            bool
	}{
		{0, 10000, false},
		{9999, 10000, false},
		{10000, 10000, true},
		{20000, 10000, true},
		{50000, 50000, true},
		{10, 0, false},
		{10, -1, false},
	}
	for _, tt := range tests {
		if got := Every(tt.count, tt.interval); got != tt.want {
			t.Errorf("Every(%d, %d) = %v, want %v", tt.count, tt.interval, got, tt.want)
		}
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) != Nop {
		t.Error("OrNop(nil) should return Nop")
	}
	if err := Nop.Record(5); err != nil {
		t.Errorf("Nop.Record returned %v", err)
	}
}
