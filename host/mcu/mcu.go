// Package mcu manages the host side of a connection to a chronos device.
package mcu

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"chronos/host/link"
	"chronos/host/serial"
	"chronos/protocol"
)

// ErrNotConnected is returned when the MCU has no open port.
var ErrNotConnected = errors.New("not connected to MCU")

// MCU represents a connection to a chronos device
type MCU struct {
	port   serial.Port
	reader *link.Reader
	logger *slog.Logger

	mu       sync.Mutex
	last     *protocol.Status
	timing   []protocol.Timing
	statuses uint32
}

// NewMCU creates a new MCU instance (not yet connected)
func NewMCU(logger *slog.Logger) *MCU {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &MCU{logger: logger}
}

// Connect opens the serial port described by cfg.
func (m *MCU) Connect(cfg *serial.Config) error {
	port, err := serial.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open serial port: %w", err)
	}
	m.Attach(port)
	// a serial port with a read timeout reports an idle line as io.EOF
	m.reader.Follow = true
	return nil
}

// Attach uses an already open port, such as one end of serial.Pipe.
func (m *MCU) Attach(port serial.Port) {
	m.port = port
	m.reader = link.NewReader(port, m.logger)
}

// Record writes every received event to w as CBOR.
func (m *MCU) Record(w io.Writer) error {
	if m.reader == nil {
		return ErrNotConnected
	}
	m.reader.SetRecorder(link.NewRecorder(w))
	return nil
}

// Run reads the status link until ctx is done or the port closes.
// handle, if not nil, sees every event after the MCU state is updated.
func (m *MCU) Run(ctx context.Context, handle link.Handler) error {
	if m.reader == nil {
		return ErrNotConnected
	}
	return m.reader.Run(ctx, func(ev link.Event) {
		m.mu.Lock()
		switch {
		case ev.Status != nil:
			m.last = ev.Status
			m.statuses++
			m.timing = m.timing[:0]
		case ev.Timing != nil:
			m.timing = append(m.timing, *ev.Timing)
		}
		m.mu.Unlock()

		if handle != nil {
			handle(ev)
		}
	})
}

// Last returns the most recent status report, or nil.
func (m *MCU) Last() *protocol.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return nil
	}
	st := *m.last
	return &st
}

// Statuses returns how many status reports were received.
func (m *MCU) Statuses() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statuses
}

// Timing returns the timing events received since the last status report.
func (m *MCU) Timing() []protocol.Timing {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]protocol.Timing(nil), m.timing...)
}

// LinkStats returns the frame scanner counters. Call it after Run returns.
func (m *MCU) LinkStats() protocol.ScannerStats {
	if m.reader == nil {
		return protocol.ScannerStats{}
	}
	return m.reader.Stats()
}

// Close closes the connection to the MCU
func (m *MCU) Close() error {
	if m.port == nil {
		return nil
	}
	err := m.port.Close()
	m.port = nil
	return err
}
