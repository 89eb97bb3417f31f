package core

// Handle identifies one 1 Hz registration. The zero Handle is never issued.
type Handle struct {
	slot int32
	gen  uint32
}

// Valid reports whether h was issued by Register. A valid handle may still
// be stale if it has already been unregistered.
func (h Handle) Valid() bool { return h.gen != 0 }

const noSlot int32 = -1

// subscriber is one arena slot. Live slots form a doubly linked chain in
// registration order; released slots form a singly linked free list.
type subscriber struct {
	fn   func()
	prev int32
	next int32
	gen  uint32
	live bool
}

// registry is an index-linked arena of 1 Hz callbacks. Slots are reused,
// and every release bumps the slot generation so stale handles never
// match a newer registration.
type registry struct {
	slots []subscriber
	head  int32
	tail  int32
	free  int32
	count int
	max   int
}

func (r *registry) init(max int) {
	r.slots = nil
	r.head, r.tail, r.free = noSlot, noSlot, noSlot
	r.count = 0
	r.max = max
}

// add appends fn at the tail of the chain.
func (r *registry) add(fn func()) (Handle, error) {
	if r.max > 0 && r.count >= r.max {
		return Handle{}, ErrRegistryFull
	}

	var i int32
	if r.free != noSlot {
		i = r.free
		r.free = r.slots[i].next
	} else {
		r.slots = append(r.slots, subscriber{})
		i = int32(len(r.slots) - 1)
	}

	s := &r.slots[i]
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	s.fn = fn
	s.live = true
	s.prev = r.tail
	s.next = noSlot

	if r.tail == noSlot {
		r.head = i
	} else {
		r.slots[r.tail].next = i
	}
	r.tail = i
	r.count++

	return Handle{slot: i, gen: s.gen}, nil
}

// remove unlinks the registration named by h. Unknown or stale handles
// are ignored.
func (r *registry) remove(h Handle) bool {
	if !h.Valid() || h.slot < 0 || int(h.slot) >= len(r.slots) {
		return false
	}
	s := &r.slots[h.slot]
	if !s.live || s.gen != h.gen {
		return false
	}

	// Relink neighbours before the slot is released.
	prev, next := s.prev, s.next
	if prev == noSlot {
		r.head = next
	} else {
		r.slots[prev].next = next
	}
	if next == noSlot {
		r.tail = prev
	} else {
		r.slots[next].prev = prev
	}

	s.fn = nil
	s.live = false
	s.prev = noSlot
	s.gen++
	s.next = r.free
	r.free = h.slot
	r.count--
	return true
}

// each calls every live callback head to tail. It does not allocate.
func (r *registry) each() {
	for i := r.head; i != noSlot; i = r.slots[i].next {
		r.slots[i].fn()
	}
}

// Register appends callback to the 1 Hz broadcast. Callbacks run in
// interrupt context, in registration order, once per overflow; they must be
// fast, must not block and must not call Register or Unregister.
//
// Registering the same function twice yields two independent handles.
func (t *Timer) Register(callback func()) (Handle, error) {
	if !t.initialized.Load() {
		return Handle{}, ErrNotInitialized
	}
	if callback == nil {
		return Handle{}, ErrNilCallback
	}

	state := t.hal.DisableInterrupts()
	h, err := t.subs.add(callback)
	if err == nil {
		t.nsubs.Store(int32(t.subs.count))
		t.timing.Record(EvtRegister, t.hal.Counter(), uint32(h.slot), uint32(t.subs.count))
	}
	t.hal.RestoreInterrupts(state)

	return h, err
}

// Unregister removes the registration named by h. Unregistering an unknown
// or already removed handle is a no-op.
func (t *Timer) Unregister(h Handle) error {
	if !t.initialized.Load() {
		return ErrNotInitialized
	}

	state := t.hal.DisableInterrupts()
	if t.subs.remove(h) {
		t.nsubs.Store(int32(t.subs.count))
		t.timing.Record(EvtUnregister, t.hal.Counter(), uint32(h.slot), uint32(t.subs.count))
	}
	t.hal.RestoreInterrupts(state)

	return nil
}

// Subscribers returns the number of live 1 Hz registrations. It is safe to
// call from a 1 Hz callback.
func (t *Timer) Subscribers() int { return int(t.nsubs.Load()) }
