package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronos/core"
)

func configured(t *testing.T, handler core.InterruptHandler) *Machine {
	t.Helper()
	m := NewMachine()
	cfg := core.DefaultTimerConfig()
	cfg.Period = 10
	m.Configure(cfg, handler)
	return m
}

func TestMachineStoppedUntilConfigured(t *testing.T) {
	m := NewMachine()
	m.Advance(5)
	assert.Equal(t, uint32(0), m.Counter())
	assert.Equal(t, uint64(0), m.Stats().Ticks)
	assert.False(t, m.Running())
}

func TestMachineCounterWraps(t *testing.T) {
	var vectors []core.Vector
	var m *Machine
	m = configured(t, func(line core.Line) {
		vectors = append(vectors, m.ReadVector())
	})

	m.Advance(9)
	assert.Equal(t, uint32(9), m.Counter())
	assert.Empty(t, vectors)

	m.Advance(1)
	assert.Equal(t, uint32(0), m.Counter())
	assert.Equal(t, []core.Vector{core.VectorOverflow}, vectors)
	assert.Equal(t, uint64(1), m.Stats().Overflows)
}

func TestMachineVectorPriorityAndClear(t *testing.T) {
	var vectors []core.Vector
	var m *Machine
	m = configured(t, func(line core.Line) {
		vectors = append(vectors, m.ReadVector())
	})

	// Compare match on the overflow tick raises both causes at once.
	m.SetCompare(0)
	m.EnableCompare()
	m.Advance(10)

	assert.Equal(t, []core.Vector{core.VectorDelay, core.VectorOverflow}, vectors)
	assert.Equal(t, core.VectorNone, m.ReadVector())
	assert.Equal(t, uint64(2), m.Stats().Serviced)
}

func TestMachineDisabledCompareDoesNotFire(t *testing.T) {
	var vectors []core.Vector
	var m *Machine
	m = configured(t, func(line core.Line) {
		vectors = append(vectors, m.ReadVector())
	})

	m.SetCompare(3)
	m.EnableCompare()
	m.DisableCompare()
	m.Advance(5)
	assert.Empty(t, vectors)
	assert.Equal(t, uint64(1), m.Arms())
}

func TestMachineWakeIsSticky(t *testing.T) {
	m := configured(t, func(core.Line) {})

	// A wakeup before Sleep ends the next Sleep at once.
	m.Spurious()
	done := make(chan struct{})
	go func() {
		m.Sleep()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sleep missed an earlier wakeup")
	}

	done = make(chan struct{})
	go func() {
		m.Sleep()
		close(done)
	}()
	require.Eventually(t, m.Sleeping, time.Second, time.Millisecond)

	// A tick that raises no interrupt leaves the processor asleep.
	m.Advance(1)
	select {
	case <-done:
		t.Fatal("tick without an interrupt woke the sleeper")
	case <-time.After(10 * time.Millisecond):
	}
	assert.True(t, m.Sleeping())

	// The overflow does.
	m.AdvanceTo(0)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("interrupt did not wake the sleeper")
	}
}

func TestMachineFireReserved(t *testing.T) {
	var lines []core.Line
	m := configured(t, func(line core.Line) { lines = append(lines, line) })
	m.Fire(core.LineReserved)
	assert.Equal(t, []core.Line{core.LineReserved}, lines)
}

func TestClockAdvancesMachine(t *testing.T) {
	m := NewMachine()
	m.Configure(core.DefaultTimerConfig(), func(core.Line) {})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewClock(m, time.Millisecond, 1).Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return m.Stats().Ticks > 0 }, time.Second, time.Millisecond)
	cancel()
	<-done

	ticks := m.Stats().Ticks
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, ticks, m.Stats().Ticks)
}
