package link

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronos/host/serial"
	"chronos/protocol"
)

func statusFrame(t *testing.T, seq uint8, st protocol.Status) []byte {
	t.Helper()
	var out protocol.ScratchOutput
	require.NoError(t, protocol.EncodeFrame(&out, seq, st.Encode))
	return append([]byte(nil), out.Result()...)
}

func timingFrame(t *testing.T, seq uint8, tm protocol.Timing) []byte {
	t.Helper()
	var out protocol.ScratchOutput
	require.NoError(t, protocol.EncodeFrame(&out, seq, tm.Encode))
	return append([]byte(nil), out.Result()...)
}

func TestReaderDecodesAndRecords(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(statusFrame(t, 0, protocol.Status{Uptime: 1, Subscribers: 2}))
	stream.Write([]byte{0x00, 0x7E}) // noise
	stream.Write(statusFrame(t, 1, protocol.Status{Uptime: 2, Subscribers: 2, Delays: 5}))
	stream.Write(timingFrame(t, 2, protocol.Timing{Event: 1, Clock: 0, Value1: 2, Value2: 2}))

	var rec bytes.Buffer
	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	r := NewReader(&stream, nil)
	r.now = func() time.Time { return at }
	r.SetRecorder(NewRecorder(&rec))

	var got []Event
	require.NoError(t, r.Run(context.Background(), func(ev Event) { got = append(got, ev) }))

	require.Len(t, got, 3)
	assert.Equal(t, uint32(1), got[0].Status.Uptime)
	assert.Equal(t, uint32(5), got[1].Status.Delays)
	assert.Equal(t, uint8(1), got[1].Sequence)
	require.NotNil(t, got[2].Timing)
	assert.Equal(t, uint32(2), got[2].Timing.Value1)
	assert.Equal(t, uint64(3), r.Stats().Frames)

	events, err := ReadRecording(&rec)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i := range events {
		assert.True(t, at.Equal(events[i].Time))
		assert.Equal(t, got[i].Sequence, events[i].Sequence)
		assert.Equal(t, got[i].Status, events[i].Status)
		assert.Equal(t, got[i].Timing, events[i].Timing)
	}
}

func TestReaderOverPipe(t *testing.T) {
	device, host := serial.Pipe()

	var frames [][]byte
	for i := uint8(0); i < 3; i++ {
		frames = append(frames, statusFrame(t, i, protocol.Status{Uptime: uint32(i) + 1}))
	}
	go func() {
		for _, f := range frames {
			_, _ = device.Write(f)
		}
		_ = device.Close()
	}()

	var uptimes []uint32
	r := NewReader(host, nil)
	require.NoError(t, r.Run(context.Background(), func(ev Event) {
		uptimes = append(uptimes, ev.Status.Uptime)
	}))
	assert.Equal(t, []uint32{1, 2, 3}, uptimes)
}

func TestReaderStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewReader(bytes.NewReader(nil), nil)
	r.Follow = true
	assert.NoError(t, r.Run(ctx, nil))
}
