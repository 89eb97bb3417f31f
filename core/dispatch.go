package core

// serviceInterrupt is the single entry point for both timer vectors.
// Interrupts are serialized: it always runs to completion once entered.
func (t *Timer) serviceInterrupt(line Line) {
	switch line {
	case LineReserved:
		// Compare channel 0 has no consumer.
	case LineShared:
		// Reading the vector clears its pending flag; read it once.
		switch t.hal.ReadVector() {
		case VectorDelay:
			t.delayDone.Store(true)
		case VectorOverflow:
			t.dispatchAll()
		}
	}
}

// dispatchAll runs every 1 Hz callback in registration order.
func (t *Timer) dispatchAll() {
	n := t.uptime.Add(1)
	t.timing.Record(EvtOverflow, t.hal.Counter(), n, uint32(t.subs.count))
	t.subs.each()
}
