package core

// Line identifies which timer interrupt vector fired.
type Line uint8

const (
	// LineReserved is the dedicated vector of compare channel 0.
	// No feature uses it yet; the dispatcher ignores it.
	LineReserved Line = iota

	// LineShared is the vector shared by compare channels 1-4 and the
	// counter overflow. The cause is read from the vector register.
	LineShared
)

// Vector is the value of the interrupt-vector register for LineShared.
// Values follow the TAxIV encoding: lower value means higher priority.
type Vector uint8

const (
	VectorNone     Vector = 0x00
	VectorCompare1 Vector = 0x02
	VectorCompare2 Vector = 0x04
	VectorCompare3 Vector = 0x06
	VectorDelay    Vector = 0x08 // compare channel 4
	VectorOverflow Vector = 0x0E
)

// InterruptState is the opaque value returned by DisableInterrupts.
type InterruptState uintptr

// InterruptHandler is invoked by the platform for every timer interrupt.
type InterruptHandler func(line Line)

// TimerHAL is the abstract timer peripheral the core drives.
// Platform-specific implementations handle the actual registers.
type TimerHAL interface {
	// Configure programs clock source, divider and counting mode, enables
	// the overflow interrupt and routes both vectors to handler.
	Configure(cfg TimerConfig, handler InterruptHandler)

	// Counter returns the current counter value in [0, cfg.Period).
	Counter() uint32

	// SetCompare programs the delay compare target.
	SetCompare(target uint32)

	// EnableCompare and DisableCompare gate the delay compare interrupt.
	EnableCompare()
	DisableCompare()

	// ReadVector returns the highest-priority pending cause of LineShared.
	// Reading clears that pending flag; callers must read it exactly once
	// per interrupt entry.
	ReadVector() Vector

	// DisableInterrupts masks the timer interrupts and returns the previous
	// state. RestoreInterrupts undoes it.
	DisableInterrupts() InterruptState
	RestoreInterrupts(state InterruptState)

	// Sleep parks the processor in a low-power wait until any enabled
	// interrupt has been serviced. It may return spuriously.
	Sleep()
}

// Watchdog is serviced on every wakeup inside Delay.
type Watchdog interface {
	Service()
}

// WatchdogFunc adapts a plain function to Watchdog.
type WatchdogFunc func()

// Service calls f.
func (f WatchdogFunc) Service() { f() }
