// Package sbp implements the Swift Binary Protocol framing used by GNSS
// receivers, plus decoding of the observation message family.
package sbp

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	preamble = 0x55

	// headerLen covers preamble, type, sender and length.
	headerLen = 6
	crcLen    = 2

	// MaxPayload is the largest payload a single frame can carry.
	MaxPayload = 255
)

var (
	ErrBadCRC         = errors.New("sbp: crc mismatch")
	ErrPayloadTooLong = errors.New("sbp: payload too long")
)

// Frame is one SBP message with its framing removed.
type Frame struct {
	Type    uint16
	Sender  uint16
	Payload []byte
}

// Encode wraps f in SBP framing:
//
//	0x55 | type u16 | sender u16 | len u8 | payload | crc u16
func Encode(f Frame) ([]byte, error) {
	if len(f.Payload) > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLong, len(f.Payload))
	}
	out := make([]byte, headerLen, headerLen+len(f.Payload)+crcLen)
	out[0] = preamble
	binary.LittleEndian.PutUint16(out[1:3], f.Type)
	binary.LittleEndian.PutUint16(out[3:5], f.Sender)
	out[5] = byte(len(f.Payload))
	out = append(out, f.Payload...)
	out = binary.LittleEndian.AppendUint16(out, crc16(out[1:]))
	return out, nil
}

// Unframe parses exactly one complete frame.
func Unframe(b []byte) (Frame, error) {
	if len(b) < headerLen+crcLen {
		return Frame{}, fmt.Errorf("frame too short: %d", len(b))
	}
	if b[0] != preamble {
		return Frame{}, fmt.Errorf("missing preamble: 0x%02x", b[0])
	}
	n := int(b[5])
	if len(b) != headerLen+n+crcLen {
		return Frame{}, fmt.Errorf("frame length %d does not match payload length %d", len(b), n)
	}
	return parse(b)
}

// parse assumes b holds a whole frame of consistent length.
func parse(b []byte) (Frame, error) {
	n := int(b[5])
	body := b[1 : headerLen+n]
	got := binary.LittleEndian.Uint16(b[headerLen+n:])
	if want := crc16(body); got != want {
		return Frame{}, fmt.Errorf("%w: got 0x%04x want 0x%04x", ErrBadCRC, got, want)
	}
	payload := make([]byte, n)
	copy(payload, b[headerLen:headerLen+n])
	return Frame{
		Type:    binary.LittleEndian.Uint16(b[1:3]),
		Sender:  binary.LittleEndian.Uint16(b[3:5]),
		Payload: payload,
	}, nil
}

// Reader extracts frames from a byte stream. Bytes outside a frame are
// skipped until the next preamble. A frame failing its CRC is reported as
// ErrBadCRC and scanning resumes one byte past its preamble, so the Reader
// stays usable after that error.
type Reader struct {
	br *bufio.Reader

	frames    uint64
	badCRC    uint64
	skipped   uint64
	lastFrame []byte
}

func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, 1024)}
}

// ReaderStats are running totals since the Reader was created.
type ReaderStats struct {
	Frames       uint64 `json:"frames"`
	CRCErrors    uint64 `json:"crc_errors"`
	SkippedBytes uint64 `json:"skipped_bytes"`
}

func (r *Reader) Stats() ReaderStats {
	return ReaderStats{Frames: r.frames, CRCErrors: r.badCRC, SkippedBytes: r.skipped}
}

// Raw returns the wire bytes of the frame last returned by Next. The slice
// is only valid until the following call to Next.
func (r *Reader) Raw() []byte { return r.lastFrame }

// Next returns the next valid frame. It returns io.EOF at a clean end of
// stream and io.ErrUnexpectedEOF when the stream ends inside a frame.
func (r *Reader) Next() (Frame, error) {
	r.lastFrame = r.lastFrame[:0]
	for {
		b, err := r.br.ReadByte()
		if err != nil {
			return Frame{}, err
		}
		if b != preamble {
			r.skipped++
			continue
		}
		if err := r.br.UnreadByte(); err != nil {
			return Frame{}, err
		}

		hdr, err := r.br.Peek(headerLen)
		if err != nil {
			return Frame{}, eofInFrame(err)
		}
		size := headerLen + int(hdr[5]) + crcLen
		buf, err := r.br.Peek(size)
		if err != nil {
			return Frame{}, eofInFrame(err)
		}

		f, err := parse(buf)
		if err != nil {
			r.badCRC++
			r.skipped++
			_, _ = r.br.Discard(1)
			return Frame{}, err
		}
		r.lastFrame = append(r.lastFrame[:0], buf...)
		_, _ = r.br.Discard(size)
		r.frames++
		return f, nil
	}
}

func eofInFrame(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
