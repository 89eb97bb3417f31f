package link

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"

	"chronos/protocol"
)

// Event is one decoded status link message with its receive time.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	Time     time.Time        `cbor:"1,keyasint"`
	Sequence uint8            `cbor:"2,keyasint"`
	Status   *protocol.Status `cbor:"3,keyasint,omitempty"`
	Timing   *protocol.Timing `cbor:"4,keyasint,omitempty"`
}

var encMode cbor.EncMode

func init() {
	var err error
	encOpts := cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
		Time:        cbor.TimeRFC3339Nano,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create link CBOR encoder mode: %v", err))
	}
}

// Recorder appends events to a CBOR stream.
type Recorder struct {
	enc *cbor.Encoder
}

// NewRecorder returns a recorder writing to w.
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{enc: encMode.NewEncoder(w)}
}

// Record writes one event.
func (r *Recorder) Record(ev Event) error {
	return r.enc.Encode(ev)
}

// ReadRecording decodes every event of a recording.
func ReadRecording(rd io.Reader) ([]Event, error) {
	dec := cbor.NewDecoder(rd)
	var events []Event
	for {
		var ev Event
		if err := dec.Decode(&ev); err != nil {
			if errors.Is(err, io.EOF) {
				return events, nil
			}
			return events, fmt.Errorf("decode event %d: %w", len(events), err)
		}
		events = append(events, ev)
	}
}
