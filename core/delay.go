package core

// Delay blocks for at least ms milliseconds using the delay compare channel.
// The processor sleeps between interrupts and the watchdog, if any, is
// serviced on every wakeup.
//
// Only one Delay may be outstanding: a concurrent call returns ErrDelayBusy
// because both would share the compare register and the completion flag.
// Delay must not be called from a 1 Hz callback.
func (t *Timer) Delay(ms uint16) error {
	if !t.initialized.Load() {
		return ErrNotInitialized
	}
	if !t.delaying.CompareAndSwap(false, true) {
		return ErrDelayBusy
	}
	defer t.delaying.Store(false)

	ticks := t.cfg.TicksFromMS(ms)

	// A zero-distance arm is already due.
	if ticks == 0 {
		t.delays.Add(1)
		return nil
	}

	// One compare window must stay shorter than a counter period, otherwise
	// the target would alias the arming instant. Each window starts at the
	// previous target so wakeup latency does not add up.
	window := t.cfg.Period - 1
	var target uint32
	chained := false
	for ticks > 0 {
		step := ticks
		if step > window {
			step = window
		}
		target = t.waitTicks(target, step, chained)
		chained = true
		ticks -= step
	}

	t.delays.Add(1)
	return nil
}

// waitTicks arms the compare channel n ticks after from, or after the
// current counter when not chained, and sleeps until the dispatcher reports
// the match. It returns the target.
func (t *Timer) waitTicks(from, n uint32, chained bool) uint32 {
	t.delayDone.Store(false)

	state := t.hal.DisableInterrupts()
	now := t.hal.Counter()
	if !chained {
		from = now
	}
	target := (from + n) % t.cfg.Period
	if chained && t.cfg.TicksUntil(from, now) >= n {
		// The window elapsed while the previous one was being serviced.
		t.timing.Record(EvtDelayDone, now, target, n)
		t.hal.RestoreInterrupts(state)
		return target
	}
	t.hal.SetCompare(target)
	t.hal.EnableCompare()
	t.timing.Record(EvtDelayArm, now, target, n)
	t.hal.RestoreInterrupts(state)

	// Any enabled interrupt wakes the processor; only the flag ends the wait.
	for !t.delayDone.Load() {
		t.hal.Sleep()
		if t.watchdog != nil {
			t.watchdog.Service()
		}
	}

	state = t.hal.DisableInterrupts()
	t.hal.DisableCompare()
	t.timing.Record(EvtDelayDone, t.hal.Counter(), target, n)
	t.hal.RestoreInterrupts(state)
	return target
}
