package lifecycle

import "sync/atomic"

// Phase is the process lifecycle phase reported by /health.
type Phase int32

const (
	Starting Phase = iota
	Serving
	Draining
)

func (p Phase) String() string {
	switch p {
	case Starting:
		return "starting"
	case Serving:
		return "serving"
	case Draining:
		return "draining"
	default:
		return "unknown"
	}
}

var phase atomic.Int32

// SetPhase records the current phase. main moves to Serving once the listener
// is up and to Draining when SIGTERM/SIGINT is received.
func SetPhase(p Phase) {
	phase.Store(int32(p))
}

// Current returns the current phase. The zero value is Starting.
func Current() Phase {
	return Phase(phase.Load())
}

// IsDraining returns true if the process is shutting down and should not receive new traffic.
func IsDraining() bool {
	return Current() == Draining
}
