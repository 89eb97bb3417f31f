package protocol

import (
	"errors"
	"fmt"
)

var ErrUnknownMessage = errors.New("unknown message")

// Message identifiers
const (
	MsgStatus uint32 = 1
	MsgTiming uint32 = 2
)

// Status is the 1Hz heartbeat report.
type Status struct {
	Uptime      uint32 // seconds since timer init
	Subscribers uint32 // live 1Hz registrations
	Counter     uint32 // counter value when the report was built
	Delays      uint32 // completed delays
	Drops       uint32 // reports dropped because the queue was full
}

// Encode writes the status message.
func (s *Status) Encode(output OutputBuffer) {
	EncodeVLQUint(output, MsgStatus)
	EncodeVLQUint(output, s.Uptime)
	EncodeVLQUint(output, s.Subscribers)
	EncodeVLQUint(output, s.Counter)
	EncodeVLQUint(output, s.Delays)
	EncodeVLQUint(output, s.Drops)
}

// Timing is one entry of a timing ring dump.
type Timing struct {
	Event  uint8
	Clock  uint32
	Value1 uint32
	Value2 uint32
}

// Encode writes the timing message.
func (t *Timing) Encode(output OutputBuffer) {
	EncodeVLQUint(output, MsgTiming)
	EncodeVLQUint(output, uint32(t.Event))
	EncodeVLQUint(output, t.Clock)
	EncodeVLQUint(output, t.Value1)
	EncodeVLQUint(output, t.Value2)
}

// DecodeMessage decodes a frame payload into *Status or *Timing.
func DecodeMessage(payload []byte) (any, error) {
	data := payload
	id, err := DecodeVLQUint(&data)
	if err != nil {
		return nil, fmt.Errorf("message id: %w", err)
	}

	fields := make([]uint32, 0, 5)
	for len(data) > 0 {
		v, err := DecodeVLQUint(&data)
		if err != nil {
			return nil, fmt.Errorf("message %d field %d: %w", id, len(fields), err)
		}
		fields = append(fields, v)
	}

	switch id {
	case MsgStatus:
		if len(fields) < 5 {
			return nil, fmt.Errorf("status: %d fields: %w", len(fields), ErrBufferTooSmall)
		}
		return &Status{
			Uptime:      fields[0],
			Subscribers: fields[1],
			Counter:     fields[2],
			Delays:      fields[3],
			Drops:       fields[4],
		}, nil
	case MsgTiming:
		if len(fields) < 4 {
			return nil, fmt.Errorf("timing: %d fields: %w", len(fields), ErrBufferTooSmall)
		}
		return &Timing{
			Event:  uint8(fields[0]),
			Clock:  fields[1],
			Value1: fields[2],
			Value2: fields[3],
		}, nil
	default:
		return nil, fmt.Errorf("id %d: %w", id, ErrUnknownMessage)
	}
}
