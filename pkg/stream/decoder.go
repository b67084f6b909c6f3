package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// decode errors reported to the warning handler
var (
	ErrMissingType = errors.New("event without type")
	ErrUnknownType = errors.New("unknown event type")
	ErrLineTooLong = errors.New("line exceeds size limit")
)

const defaultMaxLineSize = 32 * 1024 * 1024

// WarnFunc receives lines dropped by the decoder together with the reason
type WarnFunc func(line []byte, err error)

// Decoder re-frames arbitrary byte chunks into events, one JSON object per line.
// The last incomplete line is kept until the next chunk or Flush. Decoder is not
// safe for concurrent use, the stream has a single reader.
type Decoder struct {
	buf         []byte
	maxLineSize int
	skipping    bool // dropping the rest of an oversized line
	warn        WarnFunc
}

// Option configures Decoder
type Option func(d *Decoder)

// WithWarn sets the handler for dropped lines
func WithWarn(fn WarnFunc) Option {
	return func(d *Decoder) { d.warn = fn }
}

// WithMaxLineSize limits the size of a single buffered line
func WithMaxLineSize(size int) Option {
	return func(d *Decoder) {
		if size > 0 {
			d.maxLineSize = size
		}
	}
}

// NewDecoder makes a Decoder with an empty buffer
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{maxLineSize: defaultMaxLineSize}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Feed appends chunk to the buffer and returns events for every complete line, in arrival order
func (d *Decoder) Feed(chunk []byte) []Event {
	d.buf = append(d.buf, chunk...)

	var events []Event
	start := 0
	for {
		idx := bytes.IndexByte(d.buf[start:], '\n')
		if idx < 0 {
			break
		}
		line := d.buf[start : start+idx]
		start += idx + 1
		if d.skipping {
			d.skipping = false
			continue
		}
		if ev, ok := d.parse(line); ok {
			events = append(events, ev)
		}
	}

	// keep only the incomplete tail
	d.buf = append(d.buf[:0], d.buf[start:]...)

	if len(d.buf) > d.maxLineSize {
		d.warnf(d.buf, fmt.Errorf("%w: %d bytes", ErrLineTooLong, len(d.buf)))
		d.buf = d.buf[:0]
		d.skipping = true
	}
	return events
}

// Flush parses whatever is left in the buffer as the final line, called on end of stream
func (d *Decoder) Flush() []Event {
	line := d.buf
	d.buf = nil
	if d.skipping {
		d.skipping = false
		return nil
	}
	if ev, ok := d.parse(line); ok {
		return []Event{ev}
	}
	return nil
}

// Buffered returns the number of bytes of the pending incomplete line
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// parse decodes a single line, blank lines are skipped silently
func (d *Decoder) parse(line []byte) (Event, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Event{}, false
	}

	var ev Event
	if err := json.Unmarshal(line, &ev); err != nil {
		d.warnf(line, fmt.Errorf("parse event: %w", err))
		return Event{}, false
	}
	if ev.Type == "" {
		d.warnf(line, ErrMissingType)
		return Event{}, false
	}
	if !ev.Type.Known() {
		d.warnf(line, fmt.Errorf("%w %q", ErrUnknownType, ev.Type))
		return Event{}, false
	}
	return ev, true
}

func (d *Decoder) warnf(line []byte, err error) {
	if d.warn == nil {
		return
	}
	d.warn(bytes.Clone(line), err)
}

// Reader is a lazy event sequence over an io.Reader
type Reader struct {
	src     io.Reader
	dec     *Decoder
	chunk   []byte
	pending []Event
	eof     bool
}

// NewReader makes a Reader reading chunks of chunkSize bytes from src
func NewReader(src io.Reader, dec *Decoder, chunkSize int) *Reader {
	if chunkSize <= 0 {
		chunkSize = 32 * 1024
	}
	if dec == nil {
		dec = NewDecoder()
	}
	return &Reader{src: src, dec: dec, chunk: make([]byte, chunkSize)}
}

// Next returns the next event. It returns io.EOF after the last event of a finished
// stream and any other read error as is.
func (r *Reader) Next() (Event, error) {
	for len(r.pending) == 0 {
		if r.eof {
			return Event{}, io.EOF
		}
		n, err := r.src.Read(r.chunk)
		if n > 0 {
			r.pending = append(r.pending, r.dec.Feed(r.chunk[:n])...)
		}
		if errors.Is(err, io.EOF) {
			r.eof = true
			r.pending = append(r.pending, r.dec.Flush()...)
			continue
		}
		if err != nil {
			return Event{}, fmt.Errorf("read stream: %w", err)
		}
	}

	ev := r.pending[0]
	r.pending = r.pending[1:]
	return ev, nil
}
