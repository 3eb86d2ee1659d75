package browser

import (
	"math/rand/v2"
	"time"
)

// Pacer inserts pauses between browser actions so the session does not look
// scripted.
type Pacer interface {
	// Pause sleeps for a random duration in [min, max].
	Pause(min, max time.Duration)
}

// JitterPacer sleeps for a uniformly random duration.
type JitterPacer struct {
	sleep func(time.Duration)
	rand  func(n int64) int64
}

// NewJitterPacer returns a pacer backed by time.Sleep.
func NewJitterPacer() *JitterPacer {
	return &JitterPacer{
		sleep: time.Sleep,
		rand:  rand.Int64N,
	}
}

// Pause implements Pacer.
func (p *JitterPacer) Pause(min, max time.Duration) {
	p.sleep(p.pick(min, max))
}

func (p *JitterPacer) pick(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(p.rand(int64(max-min)+1))
}

// NoPacer never sleeps.
type NoPacer struct{}

// Pause implements Pacer.
func (NoPacer) Pause(time.Duration, time.Duration) {}

// Common pause windows, taken from how long a person takes for each step.
var (
	KeystrokeMin = 50 * time.Millisecond
	KeystrokeMax = 150 * time.Millisecond
)
