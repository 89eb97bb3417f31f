// Package telemetry reports the timer core's state over the status link.
package telemetry

import (
	"io"
	"sync/atomic"

	"chronos/core"
	"chronos/protocol"
)

// DefaultQueueSize holds a few seconds of status frames.
const DefaultQueueSize = 256

// Heartbeat is a 1Hz subscriber that queues one status frame per second.
// Frames are built in interrupt context into a fixed queue; foreground code
// drains the queue with Flush. When the queue is full the frame is dropped
// and counted.
type Heartbeat struct {
	timer *core.Timer

	// queue is shared with interrupt context and guarded by the timer
	// interrupt mask.
	queue *protocol.FifoBuffer

	// interrupt context only
	frame  protocol.ScratchOutput
	status protocol.Status
	encode func(protocol.OutputBuffer)
	seq    uint8

	handle  core.Handle
	running atomic.Bool
	drops   atomic.Uint32
	queued  atomic.Uint32

	out [protocol.MessageLengthMax * 4]byte
}

// New creates a heartbeat for t with a queue of queueSize bytes.
func New(t *core.Timer, queueSize int) *Heartbeat {
	if queueSize <= protocol.MessageLengthMax {
		queueSize = DefaultQueueSize
	}
	h := &Heartbeat{
		timer: t,
		queue: protocol.NewFifoBuffer(queueSize),
	}
	h.encode = h.status.Encode
	return h
}

// Start registers the heartbeat on the 1Hz broadcast.
func (h *Heartbeat) Start() error {
	if h.running.Load() {
		return nil
	}
	handle, err := h.timer.Register(h.tick)
	if err != nil {
		return err
	}
	h.handle = handle
	h.running.Store(true)
	return nil
}

// Stop unregisters the heartbeat. Queued frames stay until flushed.
func (h *Heartbeat) Stop() error {
	if !h.running.Swap(false) {
		return nil
	}
	return h.timer.Unregister(h.handle)
}

// tick runs in interrupt context.
func (h *Heartbeat) tick() {
	h.status = protocol.Status{
		Uptime:      h.timer.Uptime(),
		Subscribers: uint32(h.timer.Subscribers()),
		Counter:     h.timer.Counter(),
		Delays:      h.timer.Delays(),
		Drops:       h.drops.Load(),
	}

	h.frame.Reset()
	if err := protocol.EncodeFrame(&h.frame, h.seq, h.encode); err != nil {
		h.drops.Add(1)
		return
	}
	frame := h.frame.Result()
	if h.queue.Free() < len(frame) {
		h.drops.Add(1)
		return
	}
	h.queue.Write(frame)
	h.seq++
	h.queued.Add(1)
}

// Flush writes every queued frame to w. Call it from foreground code.
func (h *Heartbeat) Flush(w io.Writer) (int, error) {
	total := 0
	for {
		var n int
		h.timer.Atomic(func() { n = h.queue.Read(h.out[:]) })
		if n == 0 {
			return total, nil
		}
		written, err := w.Write(h.out[:n])
		total += written
		if err != nil {
			return total, err
		}
	}
}

// Drops returns how many status frames were dropped.
func (h *Heartbeat) Drops() uint32 { return h.drops.Load() }

// Queued returns how many status frames were queued.
func (h *Heartbeat) Queued() uint32 { return h.queued.Load() }

// WriteTiming writes the timer's timing ring to w as timing frames.
// Call it from foreground code.
func WriteTiming(w io.Writer, t *core.Timer) error {
	var out protocol.ScratchOutput
	for i, evt := range t.Timing() {
		msg := protocol.Timing{
			Event:  evt.EventType,
			Clock:  evt.Clock,
			Value1: evt.Value1,
			Value2: evt.Value2,
		}
		out.Reset()
		if err := protocol.EncodeFrame(&out, uint8(i), msg.Encode); err != nil {
			return err
		}
		if _, err := w.Write(out.Result()); err != nil {
			return err
		}
	}
	return nil
}
