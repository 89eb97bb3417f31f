package core

import "sync/atomic"

// ClockSource selects the counter input clock.
type ClockSource uint8

const (
	ClockACLK  ClockSource = iota // low-power 32 kHz crystal
	ClockSMCLK                    // sub-main clock
)

func (c ClockSource) String() string {
	switch c {
	case ClockACLK:
		return "aclk"
	case ClockSMCLK:
		return "smclk"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c ClockSource) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *ClockSource) UnmarshalText(text []byte) error {
	switch string(text) {
	case "aclk":
		*c = ClockACLK
	case "smclk":
		*c = ClockSMCLK
	default:
		return ErrUnknownClockSource
	}
	return nil
}

// Mode is the counter counting mode.
type Mode uint8

const (
	ModeStop Mode = iota
	ModeUp
	ModeContinuous
)

// Default timer line: 32 kHz source with /2 divider, wrapping once per second.
const (
	DefaultSourceHz = 32000
	DefaultDivider  = 2
	DefaultPeriod   = DefaultSourceHz / DefaultDivider
)

// TimerConfig is the configuration of the hardware timer line.
type TimerConfig struct {
	Source   ClockSource `yaml:"source"`
	SourceHz uint32      `yaml:"source_hz"`
	Divider  uint8       `yaml:"divider"`
	Mode     Mode        `yaml:"mode"`

	// Period is the number of counter ticks between overflow events.
	Period uint32 `yaml:"period"`

	// MaxSubscribers caps the 1 Hz registry; 0 means unbounded.
	MaxSubscribers int `yaml:"max_subscribers"`
}

// DefaultTimerConfig returns the configuration used when none is given.
func DefaultTimerConfig() TimerConfig {
	return TimerConfig{
		Source:   ClockACLK,
		SourceHz: DefaultSourceHz,
		Divider:  DefaultDivider,
		Mode:     ModeContinuous,
		Period:   DefaultPeriod,
	}
}

// Frequency returns the counter frequency in ticks per second.
func (c TimerConfig) Frequency() uint32 {
	if c.Divider == 0 {
		return c.SourceHz
	}
	return c.SourceHz / uint32(c.Divider)
}

// TicksFromMS converts milliseconds to counter ticks, rounding up so a
// delay is never shorter than requested.
func (c TimerConfig) TicksFromMS(ms uint16) uint32 {
	return uint32((uint64(ms)*uint64(c.Frequency()) + 999) / 1000)
}

// TicksUntil returns how many ticks the counter needs to move from now to
// reach target, in [0, Period).
func (c TimerConfig) TicksUntil(now, target uint32) uint32 {
	if c.Period == 0 {
		return 0
	}
	return (target%c.Period + c.Period - now%c.Period) % c.Period
}

// TicksToMS converts counter ticks to milliseconds.
func (c TimerConfig) TicksToMS(ticks uint32) uint32 {
	f := c.Frequency()
	if f == 0 {
		return 0
	}
	return uint32(uint64(ticks) * 1000 / uint64(f))
}

// Timer is the timing core: one hardware timer line driving the 1 Hz
// subscriber broadcast and the blocking delay.
type Timer struct {
	hal      TimerHAL
	watchdog Watchdog
	cfg      TimerConfig
	debug    DebugWriter

	initialized atomic.Bool

	// Written only by the dispatcher, read only by Delay.
	delayDone atomic.Bool
	// Held by the one outstanding Delay call.
	delaying atomic.Bool

	subs   registry
	nsubs  atomic.Int32
	timing TimingRing

	uptime atomic.Uint32
	delays atomic.Uint32
}

// Option configures a Timer.
type Option func(*Timer)

// WithConfig overrides DefaultTimerConfig.
func WithConfig(cfg TimerConfig) Option {
	return func(t *Timer) { t.cfg = cfg }
}

// WithWatchdog services wd on every low-power wakeup inside Delay.
func WithWatchdog(wd Watchdog) Option {
	return func(t *Timer) { t.watchdog = wd }
}

// WithDebugWriter sets the writer used by DumpTiming.
func WithDebugWriter(w DebugWriter) Option {
	return func(t *Timer) { t.debug = w }
}

// NewTimer creates a timer core bound to hal. Nothing touches the hardware
// until Initialize.
func NewTimer(hal TimerHAL, opts ...Option) *Timer {
	t := &Timer{
		hal: hal,
		cfg: DefaultTimerConfig(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.cfg.Period == 0 {
		t.cfg.Period = t.cfg.Frequency()
	}
	t.subs.init(t.cfg.MaxSubscribers)
	return t
}

// Initialize configures the counter for continuous operation with the
// overflow interrupt enabled. It must be called exactly once, before any
// Register or Delay call.
func (t *Timer) Initialize() error {
	if t.cfg.Frequency() == 0 || t.cfg.Period < 2 {
		return ErrInvalidConfig
	}
	if !t.initialized.CompareAndSwap(false, true) {
		return ErrAlreadyInitialized
	}
	cfg := t.cfg
	cfg.Mode = ModeContinuous
	t.hal.Configure(cfg, t.serviceInterrupt)
	return nil
}

// Config returns the active timer configuration.
func (t *Timer) Config() TimerConfig { return t.cfg }

// Counter returns the current hardware counter value.
func (t *Timer) Counter() uint32 { return t.hal.Counter() }

// Uptime returns the number of overflow events since Initialize.
func (t *Timer) Uptime() uint32 { return t.uptime.Load() }

// Delays returns the number of completed Delay calls.
func (t *Timer) Delays() uint32 { return t.delays.Load() }

// Atomic runs fn with the timer interrupts masked.
func (t *Timer) Atomic(fn func()) {
	state := t.hal.DisableInterrupts()
	defer t.hal.RestoreInterrupts(state)
	fn()
}
