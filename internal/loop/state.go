package loop

// State is a phase of the voice loop. The loop goroutine moves through
// the phases in order during a normal exchange and lands in
// StateShutdown once its context is cancelled.
type State int32

const (
	StateIdle State = iota
	StateListening
	StateTranscribing
	StateMatching
	StateResponding
	StateSpeaking
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateTranscribing:
		return "transcribing"
	case StateMatching:
		return "matching"
	case StateResponding:
		return "responding"
	case StateSpeaking:
		return "speaking"
	case StateShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}
