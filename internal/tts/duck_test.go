package tts

import (
	"context"
	"strings"
	"testing"
)

const duckedList = `Sink Input #42
	Driver: protocol-native.c
	Sink: 1
	Volume: front-left: 65536 / 100% / 0.00 dB,   front-right: 65536 / 100% / 0.00 dB
	Properties:
		application.name = "Firefox"
		application.process.id = "1234"

Sink Input #57
	Volume: front-left: 32768 / 50% / -18.06 dB
	Properties:
		application.name = "gideon"
`

type scriptedPactl struct {
	list  string
	calls [][]string
}

func (s *scriptedPactl) run(_ context.Context, args ...string) ([]byte, error) {
	s.calls = append(s.calls, append([]string(nil), args...))
	if args[0] == "list" {
		return []byte(s.list), nil
	}
	return nil, nil
}

func (s *scriptedPactl) volumeCalls() []string {
	var out []string
	for _, c := range s.calls {
		if c[0] == "set-sink-input-volume" {
			out = append(out, strings.Join(c[1:], " "))
		}
	}
	return out
}

func TestParseSinkInputs(t *testing.T) {
	inputs := parseSinkInputs(duckedList)
	if len(inputs) != 2 {
		t.Fatalf("parsed %d inputs, want 2", len(inputs))
	}
	if inputs[0].ID != 42 || inputs[0].Volume != 100 || inputs[0].App != "Firefox" {
		t.Errorf("first input = %+v", inputs[0])
	}
	if inputs[1].ID != 57 || inputs[1].Volume != 50 || inputs[1].App != "gideon" {
		t.Errorf("second input = %+v", inputs[1])
	}
}

func TestDuckLowersForeignStreamsOnly(t *testing.T) {
	script := &scriptedPactl{list: duckedList}
	d := NewDucker([]string{"gideon"}, 10)
	d.run = script.run

	if err := d.Duck(context.Background(), 0.3, 0); err != nil {
		t.Fatalf("Duck() err = %v", err)
	}

	calls := script.volumeCalls()
	if len(calls) != 1 {
		t.Fatalf("volume calls = %v, want exactly one", calls)
	}
	if calls[0] != "42 30%" {
		t.Errorf("ducked to %q, want \"42 30%%\"", calls[0])
	}

	// A second duck while active changes nothing.
	if err := d.Duck(context.Background(), 0.3, 0); err != nil {
		t.Fatalf("second Duck() err = %v", err)
	}
	if got := script.volumeCalls(); len(got) != 1 {
		t.Errorf("second Duck issued more volume calls: %v", got)
	}
}

func TestDuckRespectsFloor(t *testing.T) {
	script := &scriptedPactl{list: `Sink Input #7
	Volume: front-left: 13107 / 20% / 0.00 dB
	Properties:
		application.name = "Spotify"
`}
	d := NewDucker(nil, 10)
	d.run = script.run

	if err := d.Duck(context.Background(), 0.3, 0); err != nil {
		t.Fatalf("Duck() err = %v", err)
	}
	if calls := script.volumeCalls(); len(calls) != 1 || calls[0] != "7 10%" {
		t.Errorf("volume calls = %v, want [\"7 10%%\"]", calls)
	}
}

func TestRestoreReturnsOriginalVolumes(t *testing.T) {
	script := &scriptedPactl{list: duckedList}
	d := NewDucker([]string{"gideon"}, 10)
	d.run = script.run

	if err := d.Duck(context.Background(), 0.3, 0); err != nil {
		t.Fatalf("Duck() err = %v", err)
	}

	// The foreign stream now reports its ducked volume.
	script.list = strings.Replace(duckedList, "65536 / 100%", "19661 / 30%", 1)

	if err := d.Restore(context.Background(), 0); err != nil {
		t.Fatalf("Restore() err = %v", err)
	}

	calls := script.volumeCalls()
	if len(calls) != 2 {
		t.Fatalf("volume calls = %v, want two", calls)
	}
	if calls[1] != "42 100%" {
		t.Errorf("restored to %q, want \"42 100%%\"", calls[1])
	}

	// Restore again is a no-op.
	if err := d.Restore(context.Background(), 0); err != nil {
		t.Fatalf("second Restore() err = %v", err)
	}
	if got := script.volumeCalls(); len(got) != 2 {
		t.Errorf("second Restore issued more volume calls: %v", got)
	}
}
