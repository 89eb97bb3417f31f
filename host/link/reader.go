// Package link reads the device status link on the host.
package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"chronos/protocol"
)

// Handler receives every decoded event.
type Handler func(Event)

// Reader decodes frames from a byte stream.
type Reader struct {
	src     io.Reader
	scanner *protocol.Scanner
	logger  *slog.Logger
	rec     *Recorder
	now     func() time.Time

	// Follow keeps reading after io.EOF, as a serial port with a read
	// timeout reports an idle line.
	Follow bool
}

// NewReader returns a reader over src. A nil logger discards logs.
func NewReader(src io.Reader, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Reader{
		src:     src,
		scanner: protocol.NewScanner(),
		logger:  logger,
		now:     time.Now,
	}
}

// SetRecorder records every decoded event to rec.
func (r *Reader) SetRecorder(rec *Recorder) {
	r.rec = rec
}

// Run reads until ctx is done or the stream ends.
func (r *Reader) Run(ctx context.Context, handle Handler) error {
	buf := make([]byte, 256)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		n, err := r.src.Read(buf)
		if n > 0 {
			r.scanner.Feed(buf[:n])
			if perr := r.drain(handle); perr != nil {
				return perr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) && r.Follow {
				continue
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read link: %w", err)
		}
	}
}

func (r *Reader) drain(handle Handler) error {
	for {
		frame, ok := r.scanner.Next()
		if !ok {
			return nil
		}

		msg, err := protocol.DecodeMessage(frame.Payload)
		if err != nil {
			r.logger.Warn("undecodable frame", "seq", frame.Sequence, "err", err)
			continue
		}

		ev := Event{Time: r.now(), Sequence: frame.Sequence}
		switch m := msg.(type) {
		case *protocol.Status:
			ev.Status = m
			r.logger.Debug("status", "seq", frame.Sequence, "uptime", m.Uptime,
				"subscribers", m.Subscribers, "delays", m.Delays, "drops", m.Drops)
		case *protocol.Timing:
			ev.Timing = m
			r.logger.Debug("timing", "seq", frame.Sequence, "event", m.Event, "clock", m.Clock)
		}

		if r.rec != nil {
			if err := r.rec.Record(ev); err != nil {
				return fmt.Errorf("record event: %w", err)
			}
		}
		if handle != nil {
			handle(ev)
		}
	}
}

// Stats returns the frame scanner counters.
func (r *Reader) Stats() protocol.ScannerStats {
	return r.scanner.Stats()
}
