// Package firmware is the device foreground loop shared by every target:
// it brings up the timer core, starts the heartbeat and paces the status
// link with the blocking delay.
package firmware

import (
	"context"
	"io"

	"chronos/core"
	"chronos/telemetry"
)

// DefaultPollMS is the foreground loop period.
const DefaultPollMS = 100

// Config selects what the firmware starts.
type Config struct {
	Timer     core.TimerConfig
	Heartbeat bool
	QueueSize int
	PollMS    uint16
}

// Firmware owns the timer core and the status link producer.
type Firmware struct {
	Timer     *core.Timer
	Heartbeat *telemetry.Heartbeat

	out    io.Writer
	pollMS uint16
}

// New initializes the timer on hal and, if enabled, starts the heartbeat.
// Status frames are written to out.
func New(hal core.TimerHAL, cfg Config, out io.Writer, opts ...core.Option) (*Firmware, error) {
	opts = append([]core.Option{core.WithConfig(cfg.Timer)}, opts...)
	t := core.NewTimer(hal, opts...)
	if err := t.Initialize(); err != nil {
		return nil, err
	}

	fw := &Firmware{
		Timer:  t,
		out:    out,
		pollMS: cfg.PollMS,
	}
	if fw.pollMS == 0 {
		fw.pollMS = DefaultPollMS
	}

	if cfg.Heartbeat {
		fw.Heartbeat = telemetry.New(t, cfg.QueueSize)
		if err := fw.Heartbeat.Start(); err != nil {
			return nil, err
		}
	}
	return fw, nil
}

// Step sleeps one poll period and flushes queued status frames.
func (f *Firmware) Step() error {
	if err := f.Timer.Delay(f.pollMS); err != nil {
		return err
	}
	if f.Heartbeat != nil && f.out != nil {
		if _, err := f.Heartbeat.Flush(f.out); err != nil {
			return err
		}
	}
	return nil
}

// Run steps until ctx is done. A delay in progress is not interrupted.
func (f *Firmware) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		if err := f.Step(); err != nil {
			return err
		}
	}
	return nil
}

// DumpTiming writes the timing ring to the status link.
func (f *Firmware) DumpTiming() error {
	if f.out == nil {
		return nil
	}
	return telemetry.WriteTiming(f.out, f.Timer)
}
