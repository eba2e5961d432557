package bitio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

func TestReadBits_TwelveBitBigEndian(t *testing.T) {
	r := NewReader([]byte{0xAB, 0xC0})
	v, err := r.ReadBits(12, BigEndian)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xABC), v)
}

func TestWriteBits_TwelveBitBigEndian(t *testing.T) {
	w := NewWriter()
	require.NoError(t, w.WriteBits(0xABC, 12, BigEndian))
	assert.Equal(t, []byte{0xAB, 0xC0}, w.Flush())
}

func TestReadBits_LittleEndianMultiByte(t *testing.T) {
	r := NewReader([]byte{0x34, 0x12})
	v, err := r.ReadBits(16, LittleEndian)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1234), v)
}

func TestReadBits_OutOfData(t *testing.T) {
	r := NewReader([]byte{0x01})
	_, err := r.ReadBits(16, BigEndian)
	assert.ErrorIs(t, err, ErrOutOfData)
}

func TestReadTextTerminated_ConsumesTerminatorAndStopsBeforeTrailer(t *testing.T) {
	r := NewReader([]byte{0x48, 0x69, 0x00, 0xFF})
	s, err := r.ReadTextTerminated(0x00, mustUTF8(t), true)
	require.NoError(t, err)
	assert.Equal(t, "Hi", s)
	b, err := r.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(0xFF), b)
}

func TestReadTextTerminated_NoConsume(t *testing.T) {
	r := NewReader([]byte{0x48, 0x00})
	s, err := r.ReadTextTerminated(0x00, mustUTF8(t), false)
	require.NoError(t, err)
	assert.Equal(t, "H", s)
	b, err := r.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(0x00), b)
}

func TestMarkReset_IsLIFOAndBitExact(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02, 0x03})
	_, _ = r.ReadBits(4, BigEndian)
	outer := r.Mark()
	_, _ = r.ReadBits(8, BigEndian)
	inner := r.Mark()
	_, _ = r.ReadBits(8, BigEndian)
	r.Reset(inner)
	assert.Equal(t, 12, r.Position())
	r.Reset(outer)
	assert.Equal(t, 4, r.Position())
}

func TestFindNext(t *testing.T) {
	r := NewReader([]byte{0x00, 0x00, 0xAB, 0xCD, 0x00})
	idx := r.FindNext([]byte{0xAB, 0xCD})
	assert.Equal(t, 16, idx)
}

func TestFindNext_NoMatch(t *testing.T) {
	r := NewReader([]byte{0x00, 0x00})
	idx := r.FindNext([]byte{0xFF})
	assert.Equal(t, -1, idx)
}

func TestPeekPrefix_DoesNotAdvance(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02, 0x03})
	prefix, ok := r.PeekPrefix(2)
	require.True(t, ok)
	assert.Equal(t, []byte{0x01, 0x02}, prefix)
	assert.Equal(t, 0, r.Position())
}

func TestRoundTrip_IntegerFloatText(t *testing.T) {
	w := NewWriter()
	require.NoError(t, w.WriteUint32(0xDEADBEEF, BigEndian))
	require.NoError(t, w.WriteFloat64(3.5, BigEndian))
	require.NoError(t, w.WriteText("hi", mustUTF8(t)))
	buf := w.Flush()

	r := NewReader(buf)
	u, err := r.ReadUint32(BigEndian)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), u)
	f, err := r.ReadFloat64(BigEndian)
	require.NoError(t, err)
	assert.Equal(t, 3.5, f)
	s, err := r.ReadText(2, mustUTF8(t))
	require.NoError(t, err)
	assert.Equal(t, "hi", s)
}

func mustUTF8(t *testing.T) encoding.Encoding {
	t.Helper()
	return unicode.UTF8
}
