// Package sim provides a simulated timer peripheral for host builds and tests.
//
// The Machine models one free-running counter with a delay compare channel,
// an overflow interrupt, a vector register that clears the flag it returns,
// a global interrupt mask and a low-power wait. Time only moves when Advance
// is called, which makes every tick observable.
package sim

import (
	"sync"
	"sync/atomic"

	"chronos/core"
)

// pending-flag bits, one per shared-vector cause, in priority order
var vectorOrder = [...]core.Vector{
	core.VectorCompare1,
	core.VectorCompare2,
	core.VectorCompare3,
	core.VectorDelay,
	core.VectorOverflow,
}

func vectorBit(v core.Vector) uint32 {
	for i, o := range vectorOrder {
		if o == v {
			return 1 << uint(i)
		}
	}
	return 0
}

// Machine is a simulated timer peripheral implementing core.TimerHAL.
type Machine struct {
	// mask is the interrupt mask. Critical sections hold it, and every
	// interrupt is delivered while holding it, so handlers never overlap
	// a critical section or each other.
	mask sync.Mutex

	handler core.InterruptHandler
	cfg     core.TimerConfig
	running atomic.Bool

	counter    atomic.Uint32
	compare    atomic.Uint32
	compareIE  atomic.Bool
	overflowIE atomic.Bool
	pending    atomic.Uint32

	wakeMu   sync.Mutex
	wakeCond *sync.Cond
	wake     bool
	sleeping int

	ticks      atomic.Uint64
	serviced   atomic.Uint64
	overflows  atomic.Uint64
	sleeps     atomic.Uint64
	arms       atomic.Uint64
	configures atomic.Uint32
}

var _ core.TimerHAL = (*Machine)(nil)

// NewMachine returns a stopped machine. The counter does not move until
// Configure has been called.
func NewMachine() *Machine {
	m := &Machine{}
	m.wakeCond = sync.NewCond(&m.wakeMu)
	return m
}

// Configure implements core.TimerHAL.
func (m *Machine) Configure(cfg core.TimerConfig, handler core.InterruptHandler) {
	m.mask.Lock()
	defer m.mask.Unlock()

	if cfg.Period == 0 {
		cfg.Period = cfg.Frequency()
	}
	m.cfg = cfg
	m.handler = handler
	m.counter.Store(0)
	m.pending.Store(0)
	m.overflowIE.Store(true)
	m.running.Store(cfg.Mode == core.ModeContinuous)
	m.configures.Add(1)
}

// Counter implements core.TimerHAL.
func (m *Machine) Counter() uint32 { return m.counter.Load() }

// SetCompare implements core.TimerHAL.
func (m *Machine) SetCompare(target uint32) { m.compare.Store(target) }

// EnableCompare implements core.TimerHAL.
func (m *Machine) EnableCompare() {
	m.arms.Add(1)
	m.compareIE.Store(true)
}

// DisableCompare implements core.TimerHAL.
func (m *Machine) DisableCompare() { m.compareIE.Store(false) }

// ReadVector implements core.TimerHAL. The returned cause is cleared.
func (m *Machine) ReadVector() core.Vector {
	for {
		p := m.pending.Load()
		if p == 0 {
			return core.VectorNone
		}
		for i, v := range vectorOrder {
			bit := uint32(1) << uint(i)
			if p&bit == 0 {
				continue
			}
			if m.pending.CompareAndSwap(p, p&^bit) {
				return v
			}
			break
		}
	}
}

// DisableInterrupts implements core.TimerHAL.
func (m *Machine) DisableInterrupts() core.InterruptState {
	m.mask.Lock()
	return 1
}

// RestoreInterrupts implements core.TimerHAL.
func (m *Machine) RestoreInterrupts(core.InterruptState) {
	m.mask.Unlock()
}

// Sleep implements core.TimerHAL. The wake flag is sticky: an interrupt
// serviced before Sleep is entered ends the next Sleep immediately.
func (m *Machine) Sleep() {
	m.sleeps.Add(1)
	m.wakeMu.Lock()
	m.sleeping++
	for !m.wake {
		m.wakeCond.Wait()
	}
	m.wake = false
	m.sleeping--
	m.wakeMu.Unlock()
}

func (m *Machine) wakeUp() {
	m.wakeMu.Lock()
	m.wake = true
	m.wakeMu.Unlock()
	m.wakeCond.Broadcast()
}

// Advance moves the counter forward n ticks, raising and delivering
// interrupts tick by tick.
func (m *Machine) Advance(n uint32) {
	for i := uint32(0); i < n; i++ {
		m.step()
	}
}

// AdvanceTo moves the counter forward until it reads target.
func (m *Machine) AdvanceTo(target uint32) {
	if !m.running.Load() {
		return
	}
	period := m.Period()
	target %= period
	now := m.counter.Load()
	m.Advance((target + period - now) % period)
}

func (m *Machine) step() {
	if !m.running.Load() {
		return
	}

	m.mask.Lock()
	defer m.mask.Unlock()

	next := (m.counter.Load() + 1) % m.cfg.Period
	m.counter.Store(next)
	m.ticks.Add(1)

	if next == 0 && m.overflowIE.Load() {
		m.overflows.Add(1)
		m.raise(core.VectorOverflow)
	}
	if m.compareIE.Load() && next == m.compare.Load() {
		m.raise(core.VectorDelay)
	}
	m.deliverLocked()
}

func (m *Machine) raise(v core.Vector) {
	bit := vectorBit(v)
	for {
		p := m.pending.Load()
		if m.pending.CompareAndSwap(p, p|bit) {
			return
		}
	}
}

// deliverLocked enters the shared vector once per pending cause.
func (m *Machine) deliverLocked() {
	for i := 0; i < len(vectorOrder) && m.pending.Load() != 0; i++ {
		if m.handler != nil {
			m.handler(core.LineShared)
		}
		m.serviced.Add(1)
		m.wakeUp()
	}
}

// Fire delivers one interrupt on line outside the counter model. It is
// used to exercise the reserved vector.
func (m *Machine) Fire(line core.Line) {
	m.mask.Lock()
	if m.handler != nil {
		m.handler(line)
	}
	m.serviced.Add(1)
	m.mask.Unlock()
	m.wakeUp()
}

// Spurious wakes a sleeping processor without any timer event, as an
// unrelated interrupt source would.
func (m *Machine) Spurious() {
	m.wakeUp()
}

// Period returns the configured counter modulus.
func (m *Machine) Period() uint32 {
	m.mask.Lock()
	defer m.mask.Unlock()
	return m.cfg.Period
}

// Config returns the configuration programmed by Configure.
func (m *Machine) Config() core.TimerConfig {
	m.mask.Lock()
	defer m.mask.Unlock()
	return m.cfg
}

// Running reports whether the counter has been started.
func (m *Machine) Running() bool { return m.running.Load() }

// Compare returns the programmed delay compare target.
func (m *Machine) Compare() uint32 { return m.compare.Load() }

// CompareEnabled reports whether the delay compare interrupt is armed.
func (m *Machine) CompareEnabled() bool { return m.compareIE.Load() }

// Arms returns how many times the delay compare interrupt was enabled.
func (m *Machine) Arms() uint64 { return m.arms.Load() }

// Sleeping reports whether a caller is parked in Sleep.
func (m *Machine) Sleeping() bool {
	m.wakeMu.Lock()
	defer m.wakeMu.Unlock()
	return m.sleeping > 0
}

// Stats is a snapshot of the machine counters.
type Stats struct {
	Ticks      uint64
	Serviced   uint64
	Overflows  uint64
	Sleeps     uint64
	Arms       uint64
	Configures uint32
}

// Stats returns the machine counters.
func (m *Machine) Stats() Stats {
	return Stats{
		Ticks:      m.ticks.Load(),
		Serviced:   m.serviced.Load(),
		Overflows:  m.overflows.Load(),
		Sleeps:     m.sleeps.Load(),
		Arms:       m.arms.Load(),
		Configures: m.configures.Load(),
	}
}
