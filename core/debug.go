package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// TimingEvent captures a timer event for post-mortem analysis
type TimingEvent struct {
	EventType uint8  // Event type code
	Clock     uint32 // Counter value at event
	Value1    uint32 // Context-dependent value
	Value2    uint32 // Context-dependent value
}

// Event type codes
const (
	EvtOverflow   = 1 // 1Hz overflow dispatched (v1=uptime, v2=subscribers)
	EvtDelayArm   = 2 // Delay compare armed (v1=target, v2=ticks)
	EvtDelayDone  = 3 // Delay compare matched (v1=target, v2=ticks)
	EvtRegister   = 4 // Subscriber added (v1=slot, v2=subscribers)
	EvtUnregister = 5 // Subscriber removed (v1=slot, v2=subscribers)
)

const (
	TimingRingSize = 32 // Keep last 32 events for post-mortem
)

// EventName returns the dump label for an event type.
func EventName(eventType uint8) string {
	switch eventType {
	case EvtOverflow:
		return "OVERFLOW"
	case EvtDelayArm:
		return "DELAY_ARM"
	case EvtDelayDone:
		return "DELAY_DONE"
	case EvtRegister:
		return "REGISTER"
	case EvtUnregister:
		return "UNREGISTER"
	default:
		return "UNKNOWN"
	}
}

// TimingRing is a fixed-size event log that overwrites its oldest entry.
// Record never allocates or blocks, so it is safe in interrupt context.
// Callers serialize access with the timer interrupt mask.
type TimingRing struct {
	events [TimingRingSize]TimingEvent
	head   uint8 // Next write position
}

// Record captures an event
func (r *TimingRing) Record(eventType uint8, clock, value1, value2 uint32) {
	idx := r.head
	r.events[idx] = TimingEvent{
		EventType: eventType,
		Clock:     clock,
		Value1:    value1,
		Value2:    value2,
	}
	r.head = (idx + 1) % TimingRingSize
}

// Snapshot returns the recorded events, oldest first.
func (r *TimingRing) Snapshot() []TimingEvent {
	out := make([]TimingEvent, 0, TimingRingSize)
	for i := uint8(0); i < TimingRingSize; i++ {
		evt := r.events[(r.head+i)%TimingRingSize]
		if evt.EventType == 0 {
			continue // Empty slot
		}
		out = append(out, evt)
	}
	return out
}

// Clear empties the ring.
func (r *TimingRing) Clear() {
	*r = TimingRing{}
}

// Timing returns a copy of the timing ring, oldest first.
func (t *Timer) Timing() []TimingEvent {
	var ring TimingRing
	t.Atomic(func() { ring = t.timing })
	return ring.Snapshot()
}

// ClearTiming empties the timing ring.
func (t *Timer) ClearTiming() {
	t.Atomic(t.timing.Clear)
}

// DumpTiming writes the timing ring through the debug writer.
// Call it from foreground code only.
func (t *Timer) DumpTiming() {
	if t.debug == nil {
		return
	}

	events := t.Timing()
	t.debug("[TIMING] === Timing Ring Dump ===")
	t.debug("[TIMING] uptime=" + utoa(t.Uptime()) + " delays=" + utoa(t.Delays()))
	for _, evt := range events {
		t.debug("[TIMING] " + EventName(evt.EventType) +
			" clock=" + utoa(evt.Clock) +
			" v1=" + utoa(evt.Value1) +
			" v2=" + utoa(evt.Value2))
	}
	t.debug("[TIMING] === End Dump ===")
}
