package protocol

import (
	"errors"
	"fmt"
	"io"
)

// Reserved control bytes
const (
	MagicPrefix  byte = 0xFE // Marks the start of every frame
	EscapePrefix byte = 0xFD // Introduces a stuffed reserved byte
)

// Framing errors. All of them mean "drop what was read and resync"; none of
// them are fatal to a read loop.
var (
	// ErrNotFrameStart is returned when the leading byte is not MagicPrefix
	ErrNotFrameStart = errors.New("byte is not a frame start")

	// ErrTruncatedFrame is returned when the source fails before the frame
	// is complete. The underlying read error is wrapped as well.
	ErrTruncatedFrame = errors.New("truncated frame")

	// ErrFrameRestarted is returned when an unescaped MagicPrefix shows up
	// inside a frame. The partial frame is dropped and the next call to
	// FrameReader.Next continues with the frame that just started.
	ErrFrameRestarted = errors.New("frame restarted mid-body")

	// ErrShortFrame is returned by Decode when a frame is too short to hold
	// the fixed header and checksum
	ErrShortFrame = errors.New("frame too short")
)

// Stuff escapes reserved bytes in b. The magic prefix must not be part of b.
func Stuff(b []byte) []byte {
	out := make([]byte, 0, len(b)+4)
	for _, v := range b {
		if v == MagicPrefix || v == EscapePrefix {
			out = append(out, EscapePrefix, v-EscapePrefix)
			continue
		}
		out = append(out, v)
	}
	return out
}

// Unstuff reverses Stuff. A dangling escape byte at the end of b is kept as
// is, which leaves the checksum to flag the frame.
func Unstuff(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] == EscapePrefix && i+1 < len(b) {
			i++
			out = append(out, b[i]+EscapePrefix)
			continue
		}
		out = append(out, b[i])
	}
	return out
}

// FrameReader pulls complete frames out of a byte stream.
//
// The length byte counts de-stuffed bytes, so the reader de-stuffs while it
// counts; a frame with escaped bytes is longer on the wire than LEN+1.
type FrameReader struct {
	r       io.ByteReader
	started bool // a MagicPrefix was already consumed for the next frame
}

// NewFrameReader creates a FrameReader over r
func NewFrameReader(r io.ByteReader) *FrameReader {
	return &FrameReader{r: r}
}

// ReadFrame reads a single frame from r. See FrameReader.Next.
func ReadFrame(r io.ByteReader) ([]byte, error) {
	return NewFrameReader(r).Next()
}

// Next reads the next frame and returns its wire bytes (magic prefix plus the
// stuffed body), suitable for Decode.
//
// Errors from the source while waiting for the first byte are returned
// unchanged, so callers can tell an idle line (read timeout) from a broken
// frame.
func (fr *FrameReader) Next() ([]byte, error) {
	if !fr.started {
		b, err := fr.r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b != MagicPrefix {
			return nil, fmt.Errorf("%w: 0x%02x", ErrNotFrameStart, b)
		}
	}
	fr.started = false

	raw := []byte{MagicPrefix}
	length, err := fr.readDecoded(&raw)
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(length)+1; i++ {
		if _, err := fr.readDecoded(&raw); err != nil {
			return nil, err
		}
	}
	return raw, nil
}

// readDecoded reads one logical (de-stuffed) byte, appending the wire bytes
// to raw
func (fr *FrameReader) readDecoded(raw *[]byte) (byte, error) {
	v, err := fr.readBody(raw)
	if err != nil {
		return 0, err
	}
	if v != EscapePrefix {
		return v, nil
	}
	w, err := fr.readBody(raw)
	if err != nil {
		return 0, err
	}
	return w + EscapePrefix, nil
}

func (fr *FrameReader) readBody(raw *[]byte) (byte, error) {
	v, err := fr.r.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("%w after %d bytes: %w", ErrTruncatedFrame, len(*raw), err)
	}
	if v == MagicPrefix {
		fr.started = true
		return 0, fmt.Errorf("%w after %d bytes", ErrFrameRestarted, len(*raw))
	}
	*raw = append(*raw, v)
	return v, nil
}

// IsFramingError reports whether err means a frame was dropped and the
// stream should be resynchronised
func IsFramingError(err error) bool {
	return errors.Is(err, ErrNotFrameStart) ||
		errors.Is(err, ErrTruncatedFrame) ||
		errors.Is(err, ErrFrameRestarted) ||
		errors.Is(err, ErrShortFrame)
}
