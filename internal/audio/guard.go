package audio

import "sync"

// Guard serializes microphone access against speaker output. Capture,
// ambient sampling, and playback each hold it for their full duration,
// so the engine never hears itself talk and never calibrates over a
// live recording.
type Guard struct {
	mu sync.Mutex
}

func NewGuard() *Guard { return &Guard{} }

func (g *Guard) Lock()   { g.mu.Lock() }
func (g *Guard) Unlock() { g.mu.Unlock() }
