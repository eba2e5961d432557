package bitio

import (
	"fmt"
	"math"

	"golang.org/x/text/encoding"
)

// Writer is the dual of Reader: it accumulates bit-addressed values into a
// growable byte buffer, byte-aligning and zero-padding on Flush.
type Writer struct {
	buf    []byte
	bitPos int
}

// NewWriter returns an empty Writer ready to accept bits.
func NewWriter() *Writer {
	return &Writer{}
}

// Position returns the current bit offset written so far.
func (w *Writer) Position() int { return w.bitPos }

func (w *Writer) ensureBytes(n int) {
	for len(w.buf) < n {
		w.buf = append(w.buf, 0)
	}
}

// WriteBits writes the low n bits (1..64) of v, MSB-first within each
// destination byte, honoring order for n > 8.
func (w *Writer) WriteBits(v uint64, n int, order ByteOrder) error {
	if n < 1 || n > maxBits {
		return fmt.Errorf("bitio: invalid bit count %d", n)
	}
	fullBytes := n / 8
	rem := n % 8

	if order != LittleEndian && rem != 0 && fullBytes > 0 {
		// Big-endian with a partial final chunk: emit the n bits MSB-first,
		// so the partial chunk carries the lowest bits (the dual of ReadBits).
		for i := n - 1; i >= 0; i-- {
			if err := w.writeBitsWithinByte(byte(v>>uint(i))&1, 1); err != nil {
				return err
			}
		}
		return nil
	}

	var bytes []byte
	if rem != 0 {
		bytes = make([]byte, fullBytes+1)
	} else {
		bytes = make([]byte, fullBytes)
	}
	// Fill bytes with the big-endian byte representation of the low n bits.
	tmp := v
	for i := len(bytes) - 1; i >= 0; i-- {
		bytes[i] = byte(tmp)
		tmp >>= 8
	}
	if rem != 0 {
		// the first byte only carries rem significant low bits
		bytes[0] &= (1 << uint(rem)) - 1
	}

	if order == LittleEndian && len(bytes) > 1 {
		for i, j := 0, len(bytes)-1; i < j; i, j = i+1, j-1 {
			bytes[i], bytes[j] = bytes[j], bytes[i]
		}
	}

	bitsLeft := n
	idx := 0
	for bitsLeft > 0 {
		take := 8
		if bitsLeft < 8 {
			take = bitsLeft
		}
		if err := w.writeBitsWithinByte(bytes[idx], take); err != nil {
			return err
		}
		idx++
		bitsLeft -= take
	}
	return nil
}

func (w *Writer) writeBitsWithinByte(v byte, n int) error {
	for i := n - 1; i >= 0; i-- {
		bit := (v >> uint(i)) & 1
		byteIdx := w.bitPos / 8
		bitIdx := 7 - (w.bitPos % 8)
		w.ensureBytes(byteIdx + 1)
		if bit == 1 {
			w.buf[byteIdx] |= 1 << uint(bitIdx)
		} else {
			w.buf[byteIdx] &^= 1 << uint(bitIdx)
		}
		w.bitPos++
	}
	return nil
}

func (w *Writer) align() {
	if rem := w.bitPos % 8; rem != 0 {
		pad := 8 - rem
		_ = w.WriteBits(0, pad, BigEndian)
	}
}

// WriteByte writes a single byte.
func (w *Writer) WriteByte(v byte) error {
	return w.WriteBits(uint64(v), 8, BigEndian)
}

// WriteInt16 writes a signed 16-bit integer honoring order.
func (w *Writer) WriteInt16(v int16, order ByteOrder) error {
	return w.WriteBits(uint64(uint16(v)), 16, order)
}

// WriteUint16 writes an unsigned 16-bit integer honoring order.
func (w *Writer) WriteUint16(v uint16, order ByteOrder) error {
	return w.WriteBits(uint64(v), 16, order)
}

// WriteInt32 writes a signed 32-bit integer honoring order.
func (w *Writer) WriteInt32(v int32, order ByteOrder) error {
	return w.WriteBits(uint64(uint32(v)), 32, order)
}

// WriteUint32 writes an unsigned 32-bit integer honoring order.
func (w *Writer) WriteUint32(v uint32, order ByteOrder) error {
	return w.WriteBits(uint64(v), 32, order)
}

// WriteInt64 writes a signed 64-bit integer honoring order.
func (w *Writer) WriteInt64(v int64, order ByteOrder) error {
	return w.WriteBits(uint64(v), 64, order)
}

// WriteUint64 writes an unsigned 64-bit integer honoring order.
func (w *Writer) WriteUint64(v uint64, order ByteOrder) error {
	return w.WriteBits(v, 64, order)
}

// WriteFloat32 writes an IEEE-754 single-precision float honoring order.
func (w *Writer) WriteFloat32(v float32, order ByteOrder) error {
	return w.WriteBits(uint64(math.Float32bits(v)), 32, order)
}

// WriteFloat64 writes an IEEE-754 double-precision float honoring order.
func (w *Writer) WriteFloat64(v float64, order ByteOrder) error {
	return w.WriteBits(math.Float64bits(v), 64, order)
}

// WriteBytes byte-aligns and writes raw bytes verbatim.
func (w *Writer) WriteBytes(b []byte) error {
	w.align()
	for _, c := range b {
		if err := w.WriteByte(c); err != nil {
			return err
		}
	}
	return nil
}

// WriteText byte-aligns, encodes s through enc, and writes the result.
func (w *Writer) WriteText(s string, enc encoding.Encoding) error {
	encoded, err := enc.NewEncoder().String(s)
	if err != nil {
		return fmt.Errorf("bitio: charset encode: %w", err)
	}
	return w.WriteBytes([]byte(encoded))
}

// BytesRange returns a copy of the raw bytes written so far spanning
// [startBit, endBit), clamped to what has actually been written.
func (w *Writer) BytesRange(startBit, endBit int) []byte {
	startByte := startBit / 8
	endByte := (endBit + 7) / 8
	if startByte < 0 {
		startByte = 0
	}
	if endByte > len(w.buf) {
		endByte = len(w.buf)
	}
	if startByte >= endByte {
		return nil
	}
	out := make([]byte, endByte-startByte)
	copy(out, w.buf[startByte:endByte])
	return out
}

// Flush byte-aligns (zero-padding the final partial byte, if any) and
// returns the accumulated buffer.
func (w *Writer) Flush() []byte {
	w.align()
	n := (w.bitPos + 7) / 8
	out := make([]byte, n)
	copy(out, w.buf[:n])
	return out
}
