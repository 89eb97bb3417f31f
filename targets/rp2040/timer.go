//go:build rp2040

package main

import (
	"device/arm"
	"device/rp"
	"runtime/interrupt"
	"runtime/volatile"

	"chronos/core"
)

// The RP2040 TIMER is a 1MHz 64-bit counter with four alarms. TinyGo's
// runtime sleeps on alarm 0, so the delay compare uses alarm 2 and the
// period overflow uses alarm 3. Both alarm interrupts feed the shared line.
const (
	timerHz = 1000000

	alarmDelay    = 2
	alarmOverflow = 3
)

const (
	pendingDelay = 1 << iota
	pendingOverflow
)

// alarmTimer implements core.TimerHAL on the RP2040 TIMER. The modelled
// counter runs at cfg.Frequency() and wraps at cfg.Period; it is derived
// from the microsecond counter, so any frequency up to 1MHz works.
type alarmTimer struct {
	cfg     core.TimerConfig
	handler core.InterruptHandler

	// raw time at which the modelled counter read zero
	base uint64
	// number of the next period overflow, counted from base
	overflows uint64

	pending volatile.Register32
}

var timer alarmTimer

var _ core.TimerHAL = (*alarmTimer)(nil)

// rawTime reads the full 64-bit microsecond counter
func rawTime() uint64 {
	// Read high, low, high again to detect a carry between the reads
	for {
		high1 := rp.TIMER.TIMERAWH.Get()
		low := rp.TIMER.TIMERAWL.Get()
		high2 := rp.TIMER.TIMERAWH.Get()
		if high1 == high2 {
			return uint64(high1)<<32 | uint64(low)
		}
	}
}

// ticksAt converts a raw time to modelled ticks since base
func (t *alarmTimer) ticksAt(raw uint64) uint64 {
	return (raw - t.base) * uint64(t.cfg.Frequency()) / timerHz
}

// rawAt converts modelled ticks since base to the raw time of that tick,
// rounded up so the alarm never fires early
func (t *alarmTimer) rawAt(ticks uint64) uint64 {
	freq := uint64(t.cfg.Frequency())
	return t.base + (ticks*timerHz+freq-1)/freq
}

// Configure implements core.TimerHAL.
func (t *alarmTimer) Configure(cfg core.TimerConfig, handler core.InterruptHandler) {
	if cfg.Period == 0 {
		cfg.Period = cfg.Frequency()
	}
	t.cfg = cfg
	t.handler = handler
	t.pending.Set(0)

	rp.TIMER.INTE.ClearBits(1<<alarmDelay | 1<<alarmOverflow)
	rp.TIMER.INTR.Set(1<<alarmDelay | 1<<alarmOverflow)

	if cfg.Mode != core.ModeContinuous {
		return
	}

	delayIRQ := interrupt.New(rp.IRQ_TIMER_IRQ_2, handleDelayAlarm)
	overflowIRQ := interrupt.New(rp.IRQ_TIMER_IRQ_3, handleOverflowAlarm)
	delayIRQ.SetPriority(0xC0)
	overflowIRQ.SetPriority(0xC0)

	t.base = rawTime()
	t.overflows = 1
	t.armOverflow()
	rp.TIMER.INTE.SetBits(1 << alarmOverflow)

	delayIRQ.Enable()
	overflowIRQ.Enable()
}

func (t *alarmTimer) armOverflow() {
	at := t.rawAt(t.overflows * uint64(t.cfg.Period))
	rp.TIMER.ALARM3.Set(uint32(at))
	// An alarm only fires on an exact match, so one already in the past
	// has to be forced.
	if int32(rp.TIMER.TIMERAWL.Get()-uint32(at)) >= 0 {
		rp.TIMER.INTF.SetBits(1 << alarmOverflow)
	}
}

// Counter implements core.TimerHAL.
func (t *alarmTimer) Counter() uint32 {
	return uint32(t.ticksAt(rawTime()) % uint64(t.cfg.Period))
}

// SetCompare implements core.TimerHAL. The alarm is set for the next time
// the modelled counter reads target. A counter already at target is due
// now, as it is when the counter reaches it between the core's read and
// this one.
func (t *alarmTimer) SetCompare(target uint32) {
	now := t.ticksAt(rawTime())
	ahead := t.cfg.TicksUntil(uint32(now%uint64(t.cfg.Period)), target)
	if ahead == 0 {
		rp.TIMER.INTF.SetBits(1 << alarmDelay)
		return
	}
	at := t.rawAt(now + uint64(ahead))
	rp.TIMER.ALARM2.Set(uint32(at))
	if int32(rp.TIMER.TIMERAWL.Get()-uint32(at)) >= 0 {
		rp.TIMER.INTF.SetBits(1 << alarmDelay)
	}
}

// EnableCompare implements core.TimerHAL.
func (t *alarmTimer) EnableCompare() {
	rp.TIMER.INTE.SetBits(1 << alarmDelay)
}

// DisableCompare implements core.TimerHAL.
func (t *alarmTimer) DisableCompare() {
	rp.TIMER.INTE.ClearBits(1 << alarmDelay)
	rp.TIMER.INTF.ClearBits(1 << alarmDelay)
	rp.TIMER.ARMED.Set(1 << alarmDelay)
}

// ReadVector implements core.TimerHAL. The returned cause is cleared.
func (t *alarmTimer) ReadVector() core.Vector {
	p := t.pending.Get()
	switch {
	case p&pendingDelay != 0:
		t.pending.Set(p &^ pendingDelay)
		return core.VectorDelay
	case p&pendingOverflow != 0:
		t.pending.Set(p &^ pendingOverflow)
		return core.VectorOverflow
	}
	return core.VectorNone
}

// DisableInterrupts implements core.TimerHAL.
func (t *alarmTimer) DisableInterrupts() core.InterruptState {
	return core.InterruptState(interrupt.Disable())
}

// RestoreInterrupts implements core.TimerHAL.
func (t *alarmTimer) RestoreInterrupts(state core.InterruptState) {
	interrupt.Restore(interrupt.State(state))
}

// Sleep implements core.TimerHAL. The alarm handlers signal an event, so
// an interrupt taken just before wfe ends the wait immediately.
func (t *alarmTimer) Sleep() {
	arm.Asm("wfe")
}

func handleDelayAlarm(interrupt.Interrupt) {
	rp.TIMER.INTR.Set(1 << alarmDelay)
	rp.TIMER.INTF.ClearBits(1 << alarmDelay)
	timer.pending.SetBits(pendingDelay)
	timer.handler(core.LineShared)
	arm.Asm("sev")
}

func handleOverflowAlarm(interrupt.Interrupt) {
	rp.TIMER.INTR.Set(1 << alarmOverflow)
	rp.TIMER.INTF.ClearBits(1 << alarmOverflow)
	timer.overflows++
	timer.armOverflow()
	timer.pending.SetBits(pendingOverflow)
	timer.handler(core.LineShared)
	arm.Asm("sev")
}
