// Package sidbuf implements the two framed-buffer disciplines channels use:
// size-prefixed (explicit message boundary) and plain (boundary is EOF).
package sidbuf

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// Mode selects a buffer's framing discipline.
type Mode int

const (
	// SizePrefix frames each message with a 4-byte little-endian length
	// prefix (excluding itself), as used on internal-worker channels.
	SizePrefix Mode = iota
	// Plain carries a raw byte stream with no explicit framing; the
	// message boundary is end-of-stream, as used on external-worker
	// proxy-side channels.
	Plain
)

const prefixLen = 4

// Buffer accumulates bytes read from (or to be written to) a channel
// endpoint according to its Mode.
type Buffer struct {
	mode   Mode
	data   []byte
	suffix []byte
	eof    bool
}

// New creates a Buffer in the given mode. suffix, if non-nil, is appended
// to the accumulated payload once a message completes (mirrors the
// channel spec's data_suffix).
func New(mode Mode, suffix []byte) *Buffer {
	return &Buffer{mode: mode, suffix: suffix}
}

// Add appends raw bytes, e.g. payload a caller wants to transmit.
func (b *Buffer) Add(p []byte) {
	b.data = append(b.data, p...)
}

// ReadFrom performs one non-blocking read from fd and appends what was
// read. It reports io.EOF-equivalent via the returned eof bool (zero-byte
// read on a readable fd) rather than an error, since EOF is a normal
// plain-mode completion signal, not a failure.
func (b *Buffer) ReadFrom(fd int) (n int, eof bool, err error) {
	chunk := make([]byte, 65536)
	n, err = unix.Read(fd, chunk)
	if err != nil {
		return 0, false, err
	}
	if n == 0 {
		b.eof = true
		return 0, true, nil
	}
	b.data = append(b.data, chunk[:n]...)
	return n, false, nil
}

// WriteTo writes the full accumulated contents to fd, retrying short
// writes, and does not reset the buffer (callers reset explicitly).
func (b *Buffer) WriteTo(fd int) error {
	buf := b.data
	for len(buf) > 0 {
		n, err := unix.Write(fd, buf)
		if err != nil {
			return err
		}
		buf = buf[n:]
	}
	return nil
}

// IsComplete reports whether the buffer holds one full message. In
// SizePrefix mode that means the 4-byte length prefix plus that many
// following bytes have arrived. In Plain mode, completion only ever
// happens at EOF (the caller must rely on eof returned by ReadFrom).
func (b *Buffer) IsComplete() bool {
	switch b.mode {
	case SizePrefix:
		if len(b.data) < prefixLen {
			return false
		}
		want := binary.LittleEndian.Uint32(b.data[:prefixLen])
		return uint32(len(b.data)-prefixLen) >= want
	case Plain:
		return b.eof
	default:
		return false
	}
}

// EOF reports whether the last ReadFrom observed end-of-stream.
func (b *Buffer) EOF() bool { return b.eof }

// Data returns the completed message payload (with the length prefix, if
// any, stripped) plus the configured suffix appended. Callers must check
// IsComplete first.
func (b *Buffer) Data() []byte {
	var payload []byte
	switch b.mode {
	case SizePrefix:
		want := binary.LittleEndian.Uint32(b.data[:prefixLen])
		payload = b.data[prefixLen : prefixLen+want]
	case Plain:
		payload = b.data
	}
	if len(b.suffix) == 0 {
		return payload
	}
	out := make([]byte, 0, len(payload)+len(b.suffix))
	out = append(out, payload...)
	out = append(out, b.suffix...)
	return out
}

// Raw returns the buffer's unprocessed byte accumulation, including any
// length prefix.
func (b *Buffer) Raw() []byte { return b.data }

// Reset clears accumulated data and the EOF flag, preparing the buffer
// for the next message. Called after every successful or failed delivery.
func (b *Buffer) Reset() {
	b.data = b.data[:0]
	b.eof = false
}

// EncodeSizePrefix prepends a 4-byte little-endian length prefix to
// payload, as required before writing on a SizePrefix-mode channel.
func EncodeSizePrefix(payload []byte) []byte {
	out := make([]byte, prefixLen+len(payload))
	binary.LittleEndian.PutUint32(out, uint32(len(payload)))
	copy(out[prefixLen:], payload)
	return out
}
