package protocol

import "errors"

var ErrFrameTooLarge = errors.New("frame exceeds maximum length")

// EncodeFrame writes one frame to output. body writes the payload.
// Nothing is written when the payload does not fit.
func EncodeFrame(output *ScratchOutput, seq uint8, body func(output OutputBuffer)) error {
	cursor := output.CurPosition()

	// Length placeholder and sequence
	output.OutputByte(0)
	output.OutputByte(MessageDest | (seq & MessageSeqMask))

	body(output)

	length := len(output.DataSince(cursor)) + MessageTrailerSize
	if output.Overflowed() || length > MessageLengthMax || cursor+length > output.Cap() {
		output.Truncate(cursor)
		return ErrFrameTooLarge
	}
	output.Update(cursor, uint8(length))

	crc := CRC16(output.DataSince(cursor))
	output.OutputByte(uint8(crc >> 8))
	output.OutputByte(uint8(crc & 0xFF))
	output.OutputByte(MessageValueSync)
	return nil
}

// Frame is one validated frame received by a Scanner.
type Frame struct {
	Sequence uint8
	Payload  []byte
}

// ScannerStats counts what a Scanner discarded.
type ScannerStats struct {
	Frames  uint64
	Resyncs uint64
	Dropped uint64 // bytes skipped while out of sync
}

// Scanner splits a byte stream into frames. Corrupt input drops the
// scanner out of sync; it resynchronizes on the next sync byte.
type Scanner struct {
	data         []byte
	synchronized bool
	stats        ScannerStats
}

// NewScanner returns a synchronized scanner.
func NewScanner() *Scanner {
	return &Scanner{synchronized: true}
}

// Feed appends received bytes.
func (s *Scanner) Feed(data []byte) {
	s.data = append(s.data, data...)
}

// Next returns the next complete frame. It returns false when more input
// is needed.
func (s *Scanner) Next() (Frame, bool) {
	for len(s.data) > 0 {
		if !s.synchronized {
			syncPos := -1
			for i, b := range s.data {
				if b == MessageValueSync {
					syncPos = i
					break
				}
			}
			if syncPos < 0 {
				s.stats.Dropped += uint64(len(s.data))
				s.data = s.data[:0]
				break
			}
			s.stats.Dropped += uint64(syncPos + 1)
			s.data = s.data[syncPos+1:]
			s.synchronized = true
			continue
		}

		// Skip leading sync bytes
		if s.data[0] == MessageValueSync {
			s.data = s.data[1:]
			continue
		}

		if len(s.data) < MessageLengthMin {
			break
		}

		msgLen := int(s.data[MessagePositionLen])
		if msgLen < MessageLengthMin || msgLen > MessageLengthMax {
			s.desync()
			continue
		}

		seq := s.data[MessagePositionSeq]
		if seq&^MessageSeqMask != MessageDest {
			s.desync()
			continue
		}

		if len(s.data) < msgLen {
			break
		}

		if s.data[msgLen-MessageTrailerSync] != MessageValueSync {
			s.desync()
			continue
		}

		frameCRC := uint16(s.data[msgLen-MessageTrailerCRC])<<8 |
			uint16(s.data[msgLen-MessageTrailerCRC+1])
		if frameCRC != CRC16(s.data[:msgLen-MessageTrailerSize]) {
			s.desync()
			continue
		}

		payload := make([]byte, msgLen-MessageLengthMin)
		copy(payload, s.data[MessageHeaderSize:msgLen-MessageTrailerSize])
		s.data = s.data[msgLen:]
		s.stats.Frames++
		return Frame{Sequence: seq & MessageSeqMask, Payload: payload}, true
	}

	s.compact()
	return Frame{}, false
}

// Stats returns the scanner counters.
func (s *Scanner) Stats() ScannerStats { return s.stats }

func (s *Scanner) desync() {
	s.synchronized = false
	s.stats.Resyncs++
	// Drop the offending length byte so the search starts past it.
	s.data = s.data[1:]
	s.stats.Dropped++
}

func (s *Scanner) compact() {
	if cap(s.data) > 4*MessageLengthMax && len(s.data) < MessageLengthMax {
		s.data = append([]byte(nil), s.data...)
	}
}
