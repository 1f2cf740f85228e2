package tts

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

var volumeRe = regexp.MustCompile(`(\d+)\s*%`)

// sinkInput is one PulseAudio playback stream.
type sinkInput struct {
	ID     int
	Volume int
	App    string
}

type fadeStep struct {
	id   int
	from int
	to   int
}

// runner executes pactl. Tests swap in a scripted one.
type runner func(ctx context.Context, args ...string) ([]byte, error)

func pactl(ctx context.Context, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, "pactl", args...).Output()
}

// Ducker fades other applications' playback down while the assistant
// speaks and restores it afterwards. Streams whose application name
// matches self are left alone.
type Ducker struct {
	mu       sync.Mutex
	active   bool
	self     []string
	original map[int]int // stream id to pre-duck volume percent
	floor    int         // lowest percent a ducked stream drops to
	run      runner
}

func NewDucker(selfNames []string, floor int) *Ducker {
	if floor < 0 {
		floor = 0
	}
	if floor > 150 {
		floor = 150
	}
	return &Ducker{
		self:     append([]string(nil), selfNames...),
		original: make(map[int]int),
		floor:    floor,
		run:      pactl,
	}
}

// Duck lowers every foreign stream to volume*factor, fading over the
// given duration. Calling it while already ducked is a no-op.
func (d *Ducker) Duck(ctx context.Context, factor float64, fade time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active {
		return nil
	}

	streams, err := d.listStreams(ctx)
	if err != nil {
		return fmt.Errorf("list streams: %w", err)
	}

	d.original = make(map[int]int)
	var steps []fadeStep
	for _, s := range streams {
		if d.isSelf(s) {
			continue
		}
		target := float64(s.Volume) * factor
		if target < float64(d.floor) {
			target = float64(d.floor)
		}
		d.original[s.ID] = s.Volume
		steps = append(steps, fadeStep{id: s.ID, from: s.Volume, to: int(math.Round(target))})
	}

	if err := d.fade(ctx, steps, fade); err != nil {
		return err
	}
	d.active = true
	return nil
}

// Restore fades foreign streams back to their pre-duck volumes.
// Streams that appeared while ducked are left as they are.
func (d *Ducker) Restore(ctx context.Context, fade time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.active {
		return nil
	}

	streams, err := d.listStreams(ctx)
	if err != nil {
		return fmt.Errorf("list streams: %w", err)
	}

	var steps []fadeStep
	for _, s := range streams {
		if d.isSelf(s) {
			continue
		}
		orig, ok := d.original[s.ID]
		if !ok {
			continue
		}
		steps = append(steps, fadeStep{id: s.ID, from: s.Volume, to: orig})
	}

	if err := d.fade(ctx, steps, fade); err != nil {
		return err
	}
	d.original = make(map[int]int)
	d.active = false
	return nil
}

func (d *Ducker) isSelf(s sinkInput) bool {
	for _, name := range d.self {
		if s.App == name {
			return true
		}
	}
	return false
}

// fade walks each stream from its current volume to the target in
// 10ms steps.
func (d *Ducker) fade(ctx context.Context, steps []fadeStep, dur time.Duration) error {
	if len(steps) == 0 {
		return nil
	}
	const stepLen = 10 * time.Millisecond

	n := int(dur / stepLen)
	if n < 1 {
		n = 1
	}
	for i := 1; i <= n; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		frac := float64(i) / float64(n)
		for _, s := range steps {
			v := float64(s.from) + float64(s.to-s.from)*frac
			if err := d.setVolume(ctx, s.id, int(math.Round(v))); err != nil {
				return fmt.Errorf("set volume for %d: %w", s.id, err)
			}
		}
		if i < n {
			time.Sleep(stepLen)
		}
	}
	return nil
}

func (d *Ducker) listStreams(ctx context.Context) ([]sinkInput, error) {
	out, err := d.run(ctx, "list", "sink-inputs")
	if err != nil {
		return nil, err
	}
	return parseSinkInputs(string(out)), nil
}

func (d *Ducker) setVolume(ctx context.Context, id, percent int) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 150 {
		percent = 150
	}
	_, err := d.run(ctx, "set-sink-input-volume", strconv.Itoa(id), fmt.Sprintf("%d%%", percent))
	return err
}

// parseSinkInputs pulls id, volume percent, and application name out
// of `pactl list sink-inputs` output.
func parseSinkInputs(out string) []sinkInput {
	blocks := strings.Split(out, "Sink Input #")
	if len(blocks) <= 1 {
		return nil
	}

	var inputs []sinkInput
	for _, block := range blocks[1:] {
		nl := strings.IndexByte(block, '\n')
		if nl <= 0 {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(block[:nl]))
		if err != nil {
			continue
		}

		s := sinkInput{ID: id}
		for _, line := range strings.Split(block[nl+1:], "\n") {
			line = strings.TrimSpace(line)
			switch {
			case strings.HasPrefix(line, "Volume:") && s.Volume == 0:
				if m := volumeRe.FindStringSubmatch(line); len(m) == 2 {
					s.Volume, _ = strconv.Atoi(m[1])
				}
			case strings.HasPrefix(line, "application.name =") && s.App == "":
				if from := strings.Index(line, `"`); from >= 0 {
					rest := line[from+1:]
					if to := strings.Index(rest, `"`); to >= 0 {
						s.App = rest[:to]
					}
				}
			}
		}
		if s.Volume == 0 && s.App == "" {
			continue
		}
		inputs = append(inputs, s)
	}
	return inputs
}
