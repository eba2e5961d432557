// Package bitio implements a bit-addressed reader and writer over a plain
// byte buffer. It is the lowest-level primitive of the template engine:
// every field codec eventually bottoms out in a ReadBits/WriteBits call.
package bitio

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/text/encoding"
)

// ByteOrder controls how a multi-byte integer is assembled from the bits
// read off the wire. Within a single byte, bits are always consumed
// MSB-first regardless of ByteOrder.
type ByteOrder int

const (
	BigEndian ByteOrder = iota
	LittleEndian
)

// ErrOutOfData is returned whenever a read would need to consume bits past
// the end of the buffer. It is a recoverable, per-message error class: the
// driver catches it, restores the fallback point, and resynchronizes.
var ErrOutOfData = errors.New("bitio: out of data")

// ErrTerminatorNotFound is returned by terminator-bounded reads when the
// terminator byte never occurs in the remainder of the buffer.
var ErrTerminatorNotFound = errors.New("bitio: terminator not found")

const maxBits = 64

// Reader reads bit-addressed values from a fixed byte buffer. It is single
// owner, single threaded: exactly one goroutine may drive a Reader at a
// time (see the package's concurrency note in the engine docs).
type Reader struct {
	buf    []byte
	bitPos int
	marks  []int
}

// NewReader wraps buf for bit-addressed reading starting at bit 0.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Position returns the current bit offset from the start of the buffer.
func (r *Reader) Position() int { return r.bitPos }

// Len returns the total number of bits available in the underlying buffer.
func (r *Reader) Len() int { return len(r.buf) * 8 }

// HasRemaining reports whether at least one more bit can be read.
func (r *Reader) HasRemaining() bool { return r.bitPos < r.Len() }

// Remaining returns the number of unread bits.
func (r *Reader) Remaining() int { return r.Len() - r.bitPos }

// PositionTo seeks directly to the given bit index. It is used by the
// stream driver to jump to a resynchronization point.
func (r *Reader) PositionTo(bitIndex int) error {
	if bitIndex < 0 || bitIndex > r.Len() {
		return fmt.Errorf("bitio: position %d out of range [0,%d]", bitIndex, r.Len())
	}
	r.bitPos = bitIndex
	return nil
}

// Mark snapshots the current bit position and returns an opaque token.
// Marks nest LIFO; Reset rewinds to the most recently taken, still-live
// mark. This is the stream driver's fallback point for resynchronization.
func (r *Reader) Mark() int {
	r.marks = append(r.marks, r.bitPos)
	return len(r.marks) - 1
}

// Reset rewinds the reader to the bit position captured by Mark, discarding
// that mark and any marks taken after it.
func (r *Reader) Reset(token int) {
	if token < 0 || token >= len(r.marks) {
		return
	}
	r.bitPos = r.marks[token]
	r.marks = r.marks[:token]
}

// Unmark discards the mark identified by token once its fallback point is no
// longer needed, preventing the mark stack from growing across a long
// sequence of successful reads. It is a no-op unless token is the most
// recently taken, still-live mark.
func (r *Reader) Unmark(token int) {
	if token == len(r.marks)-1 {
		r.marks = r.marks[:token]
	}
}

// Since returns the raw bytes spanned between the bit position recorded by
// mark and the reader's current position, used to attach the offending
// payload to a decode error.
func (r *Reader) Since(mark int) []byte {
	if mark < 0 || mark >= len(r.marks) {
		return nil
	}
	startByte := r.marks[mark] / 8
	endByte := (r.bitPos + 7) / 8
	if endByte > len(r.buf) {
		endByte = len(r.buf)
	}
	if startByte > endByte {
		return nil
	}
	out := make([]byte, endByte-startByte)
	copy(out, r.buf[startByte:endByte])
	return out
}

// ReadBits consumes n bits (1..64) from the current position and returns
// them assembled into a uint64. Bits are consumed MSB-first within each
// byte; order controls how successive bytes combine for n > 8.
func (r *Reader) ReadBits(n int, order ByteOrder) (uint64, error) {
	if n < 1 || n > maxBits {
		return 0, fmt.Errorf("bitio: invalid bit count %d", n)
	}
	if r.Remaining() < n {
		return 0, ErrOutOfData
	}

	fullBytes := n / 8
	rem := n % 8

	bytes := make([]byte, 0, fullBytes+1)
	bitsLeft := n
	for bitsLeft > 0 {
		take := 8
		if bitsLeft < 8 {
			take = bitsLeft
		}
		b, err := r.readBitsWithinByte(take)
		if err != nil {
			return 0, err
		}
		bytes = append(bytes, b)
		bitsLeft -= take
	}
	_ = rem

	var v uint64
	if order == LittleEndian && len(bytes) > 1 {
		for i := len(bytes) - 1; i >= 0; i-- {
			v = v<<8 | uint64(bytes[i])
		}
	} else {
		for i, b := range bytes {
			width := 8
			if i == len(bytes)-1 && rem != 0 {
				width = rem
			}
			v = v<<uint(width) | uint64(b)
		}
	}
	return v, nil
}

// readBitsWithinByte reads between 1 and 8 bits, MSB-first, possibly
// straddling a byte boundary in the underlying buffer, and returns them
// right-aligned in the low bits of the returned byte.
func (r *Reader) readBitsWithinByte(n int) (byte, error) {
	var out byte
	for i := 0; i < n; i++ {
		byteIdx := r.bitPos / 8
		bitIdx := 7 - (r.bitPos % 8)
		if byteIdx >= len(r.buf) {
			return 0, ErrOutOfData
		}
		bit := (r.buf[byteIdx] >> uint(bitIdx)) & 1
		out = out<<1 | bit
		r.bitPos++
	}
	return out, nil
}

func (r *Reader) align() {
	if rem := r.bitPos % 8; rem != 0 {
		r.bitPos += 8 - rem
	}
}

// ReadByte reads a single byte (8 bits), independent of byte order.
func (r *Reader) ReadByte() (byte, error) {
	v, err := r.ReadBits(8, BigEndian)
	return byte(v), err
}

// ReadInt16 reads a signed 16-bit integer honoring order.
func (r *Reader) ReadInt16(order ByteOrder) (int16, error) {
	v, err := r.ReadBits(16, order)
	return int16(v), err
}

// ReadUint16 reads an unsigned 16-bit integer honoring order.
func (r *Reader) ReadUint16(order ByteOrder) (uint16, error) {
	v, err := r.ReadBits(16, order)
	return uint16(v), err
}

// ReadInt32 reads a signed 32-bit integer honoring order.
func (r *Reader) ReadInt32(order ByteOrder) (int32, error) {
	v, err := r.ReadBits(32, order)
	return int32(v), err
}

// ReadUint32 reads an unsigned 32-bit integer honoring order.
func (r *Reader) ReadUint32(order ByteOrder) (uint32, error) {
	v, err := r.ReadBits(32, order)
	return uint32(v), err
}

// ReadInt64 reads a signed 64-bit integer honoring order.
func (r *Reader) ReadInt64(order ByteOrder) (int64, error) {
	v, err := r.ReadBits(64, order)
	return int64(v), err
}

// ReadUint64 reads an unsigned 64-bit integer honoring order.
func (r *Reader) ReadUint64(order ByteOrder) (uint64, error) {
	return r.ReadBits(64, order)
}

// ReadFloat32 reads an IEEE-754 single-precision float honoring order.
func (r *Reader) ReadFloat32(order ByteOrder) (float32, error) {
	v, err := r.ReadBits(32, order)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(uint32(v)), nil
}

// ReadFloat64 reads an IEEE-754 double-precision float honoring order.
func (r *Reader) ReadFloat64(order ByteOrder) (float64, error) {
	v, err := r.ReadBits(64, order)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// ReadBytes byte-aligns the position (if not already) and reads exactly n
// raw bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	r.align()
	if n < 0 {
		return nil, fmt.Errorf("bitio: negative length %d", n)
	}
	if r.Remaining() < n*8 {
		return nil, ErrOutOfData
	}
	start := r.bitPos / 8
	out := make([]byte, n)
	copy(out, r.buf[start:start+n])
	r.bitPos += n * 8
	return out, nil
}

// ReadBytesTerminated byte-aligns and reads up to (optionally consuming)
// the first occurrence of term.
func (r *Reader) ReadBytesTerminated(term byte, consume bool) ([]byte, error) {
	r.align()
	start := r.bitPos / 8
	idx := -1
	for i := start; i < len(r.buf); i++ {
		if r.buf[i] == term {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, ErrTerminatorNotFound
	}
	out := make([]byte, idx-start)
	copy(out, r.buf[start:idx])
	newPos := idx
	if consume {
		newPos++
	}
	r.bitPos = newPos * 8
	return out, nil
}

// ReadText byte-aligns, reads n bytes, and decodes them through enc.
func (r *Reader) ReadText(n int, enc encoding.Encoding) (string, error) {
	raw, err := r.ReadBytes(n)
	if err != nil {
		return "", err
	}
	decoded, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("bitio: charset decode: %w", err)
	}
	return string(decoded), nil
}

// ReadTextTerminated byte-aligns, reads up to term, and decodes through enc.
func (r *Reader) ReadTextTerminated(term byte, enc encoding.Encoding, consume bool) (string, error) {
	raw, err := r.ReadBytesTerminated(term, consume)
	if err != nil {
		return "", err
	}
	decoded, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("bitio: charset decode: %w", err)
	}
	return string(decoded), nil
}

// PeekPrefix returns the n bytes starting at the current, byte-aligned
// position without advancing the reader. If fewer than n bytes remain it
// returns nil and ok is false.
func (r *Reader) PeekPrefix(n int) (prefix []byte, ok bool) {
	start := (r.bitPos + 7) / 8
	if start+n > len(r.buf) {
		return nil, false
	}
	out := make([]byte, n)
	copy(out, r.buf[start:start+n])
	return out, true
}

// FindNext scans forward byte-by-byte from the current, byte-aligned
// position for the first offset at which prefix matches, returning the
// corresponding bit position or -1 if prefix never occurs.
func (r *Reader) FindNext(prefix []byte) int {
	if len(prefix) == 0 {
		return -1
	}
	start := (r.bitPos + 7) / 8
	for i := start; i+len(prefix) <= len(r.buf); i++ {
		if bytesEqual(r.buf[i:i+len(prefix)], prefix) {
			return i * 8
		}
	}
	return -1
}

// BytesRange returns a copy of the raw bytes spanning [startBit, endBit),
// clamped to the buffer's extent. It is used by the checksum codec to
// recover the byte range between two previously recorded marks.
func (r *Reader) BytesRange(startBit, endBit int) []byte {
	startByte := startBit / 8
	endByte := (endBit + 7) / 8
	if startByte < 0 {
		startByte = 0
	}
	if endByte > len(r.buf) {
		endByte = len(r.buf)
	}
	if startByte >= endByte {
		return nil
	}
	out := make([]byte, endByte-startByte)
	copy(out, r.buf[startByte:endByte])
	return out
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
