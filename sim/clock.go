package sim

import (
	"context"
	"time"
)

// Clock drives a Machine from wall-clock time.
type Clock struct {
	m          *Machine
	resolution time.Duration
	speed      float64
}

// NewClock returns a clock advancing m every resolution, scaled by speed
// (1 = real time). Non-positive arguments fall back to 1ms and 1x.
func NewClock(m *Machine, resolution time.Duration, speed float64) *Clock {
	if resolution <= 0 {
		resolution = time.Millisecond
	}
	if speed <= 0 {
		speed = 1
	}
	return &Clock{m: m, resolution: resolution, speed: speed}
}

// Run advances the machine until ctx is cancelled.
func (c *Clock) Run(ctx context.Context) {
	tick := time.NewTicker(c.resolution)
	defer tick.Stop()

	last := time.Now()
	var carry float64
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-tick.C:
			freq := float64(c.m.Config().Frequency())
			carry += now.Sub(last).Seconds() * freq * c.speed
			last = now
			if carry < 1 {
				continue
			}
			n := uint32(carry)
			carry -= float64(n)
			c.m.Advance(n)
		}
	}
}
