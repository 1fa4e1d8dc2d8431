package lockstore

import (
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Status classifies a marker found in the lock directory.
type Status int

const (
	// StatusHeld means the owning process is alive.
	StatusHeld Status = iota
	// StatusStale means the owner is gone or its PID has been recycled.
	StatusStale
	// StatusCorrupt means the marker could not be decoded.
	StatusCorrupt
)

func (s Status) String() string {
	switch s {
	case StatusHeld:
		return "held"
	case StatusStale:
		return "stale"
	case StatusCorrupt:
		return "corrupt"
	default:
		return "unknown"
	}
}

// Liveness decides whether a marker's owner still holds it.
type Liveness interface {
	Alive(m Marker) bool
}

// LivenessFunc adapts a function to the Liveness interface.
type LivenessFunc func(m Marker) bool

// Alive calls f(m).
func (f LivenessFunc) Alive(m Marker) bool { return f(m) }

// DefaultStartSlack absorbs the coarse resolution of process start times
// (boot time is reported in whole seconds on Linux).
const DefaultStartSlack = 2 * time.Second

// ProcessLiveness checks the marker's PID against the local process table.
//
// A marker is live when its PID exists and, for markers that record a
// creation time, the process started no later than the marker was written.
// A process that started afterwards reuses a recycled PID. Markers written
// on another host cannot be checked and are always considered live.
type ProcessLiveness struct {
	Hostname string
	Slack    time.Duration
}

// NewProcessLiveness returns a ProcessLiveness for the local host.
func NewProcessLiveness() *ProcessLiveness {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &ProcessLiveness{Hostname: hostname, Slack: DefaultStartSlack}
}

// Alive implements Liveness.
func (p *ProcessLiveness) Alive(m Marker) bool {
	if m.Hostname != "" && m.Hostname != p.Hostname {
		return true
	}
	if m.PID <= 0 {
		return false
	}

	exists, err := process.PidExists(int32(m.PID))
	if err != nil {
		// Unknown is treated as held; reclaiming a live holder's ID is the
		// worse mistake.
		return true
	}
	if !exists {
		return false
	}
	if m.CreatedAt.IsZero() {
		return true
	}

	proc, err := process.NewProcess(int32(m.PID))
	if err != nil {
		return err != process.ErrorProcessNotRunning
	}
	createdMs, err := proc.CreateTime()
	if err != nil {
		return true
	}
	started := time.UnixMilli(createdMs)
	return !started.After(m.CreatedAt.Add(p.Slack))
}
