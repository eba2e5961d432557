package codec

import (
	"reflect"
	"testing"

	"github.com/mtrevisan/boxon/internal/bitio"
	"github.com/mtrevisan/boxon/internal/convert"
	"github.com/mtrevisan/boxon/internal/expr"
	"github.com/mtrevisan/boxon/internal/tmpl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEnv() *Env {
	return &Env{
		Evaluator:  expr.New(),
		Ctx:        expr.NewContext(),
		Converters: convert.NewConverterRegistry(),
		Validators: convert.NewValidatorRegistry(),
	}
}

func TestIntegerCodec_RoundTrip(t *testing.T) {
	env := newEnv()
	c := integerCodec{}
	b := tmpl.Binding{Kind: tmpl.KindInteger, Size: "12", ByteOrder: bitio.BigEndian, Converter: convert.IdentityTag}

	r := bitio.NewReader([]byte{0xAB, 0xC0})
	v, err := c.Decode(env, r, b, reflect.TypeOf(uint64(0)), nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xABC), v)

	w := bitio.NewWriter()
	require.NoError(t, c.Encode(env, w, b, reflect.TypeOf(uint64(0)), uint64(0xABC), nil))
	assert.Equal(t, []byte{0xAB, 0xC0}, w.Flush())
}

func TestIntegerCodec_SignedSignExtends(t *testing.T) {
	env := newEnv()
	c := integerCodec{}
	b := tmpl.Binding{Kind: tmpl.KindInteger, Size: "8", ByteOrder: bitio.BigEndian, Converter: convert.IdentityTag}

	r := bitio.NewReader([]byte{0xFF})
	v, err := c.Decode(env, r, b, reflect.TypeOf(int8(0)), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), v)
}

func TestByteArrayCodec_RoundTrip(t *testing.T) {
	env := newEnv()
	c := byteArrayCodec{}
	b := tmpl.Binding{Kind: tmpl.KindByteArray, Size: "3", Converter: convert.IdentityTag}

	r := bitio.NewReader([]byte{1, 2, 3, 4})
	v, err := c.Decode(env, r, b, reflect.TypeOf([]byte(nil)), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, v)

	w := bitio.NewWriter()
	require.NoError(t, c.Encode(env, w, b, reflect.TypeOf([]byte(nil)), []byte{1, 2, 3}, nil))
	assert.Equal(t, []byte{1, 2, 3}, w.Flush())
}

func TestByteArrayTerminatedCodec_AlwaysWritesTerminator(t *testing.T) {
	env := newEnv()
	c := byteArrayTerminatedCodec{}
	b := tmpl.Binding{Kind: tmpl.KindByteArrayTerminated, Terminator: 0, ConsumeTerminator: false, Converter: convert.IdentityTag}

	w := bitio.NewWriter()
	require.NoError(t, c.Encode(env, w, b, reflect.TypeOf([]byte(nil)), []byte{1, 2}, nil))
	assert.Equal(t, []byte{1, 2, 0}, w.Flush())

	r := bitio.NewReader(w.Flush())
	v, err := c.Decode(env, r, b, reflect.TypeOf([]byte(nil)), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, v)
	assert.Equal(t, 16, r.Position()) // not consumed: cursor sits before the terminator
}

func TestStringCodec_RoundTrip(t *testing.T) {
	env := newEnv()
	c := stringCodec{}
	b := tmpl.Binding{Kind: tmpl.KindString, Size: "2", Converter: convert.IdentityTag}

	w := bitio.NewWriter()
	require.NoError(t, c.Encode(env, w, b, reflect.TypeOf(""), "hi", nil))
	assert.Equal(t, []byte("hi"), w.Flush())

	r := bitio.NewReader(w.Flush())
	v, err := c.Decode(env, r, b, reflect.TypeOf(""), nil)
	require.NoError(t, err)
	assert.Equal(t, "hi", v)
}

func TestStringTerminatedCodec_RoundTrip(t *testing.T) {
	env := newEnv()
	c := stringTerminatedCodec{}
	b := tmpl.Binding{Kind: tmpl.KindStringTerminated, Terminator: 0, ConsumeTerminator: true, Converter: convert.IdentityTag}

	w := bitio.NewWriter()
	require.NoError(t, c.Encode(env, w, b, reflect.TypeOf(""), "hi", nil))
	assert.Equal(t, []byte{'h', 'i', 0}, w.Flush())

	r := bitio.NewReader(append(w.Flush(), 0xFF))
	v, err := c.Decode(env, r, b, reflect.TypeOf(""), nil)
	require.NoError(t, err)
	assert.Equal(t, "hi", v)
	assert.Equal(t, 24, r.Position())
}

func TestSkipCodec_FixedSize(t *testing.T) {
	env := newEnv()
	c := skipCodec{}
	b := tmpl.Binding{Kind: tmpl.KindSkip, Size: "8"}

	r := bitio.NewReader([]byte{0xFF, 0x01})
	_, err := c.Decode(env, r, b, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 8, r.Position())

	w := bitio.NewWriter()
	require.NoError(t, c.Encode(env, w, b, nil, nil, nil))
	assert.Equal(t, []byte{0}, w.Flush())
}

func TestSkipCodec_Terminated(t *testing.T) {
	env := newEnv()
	c := skipCodec{}
	b := tmpl.Binding{Kind: tmpl.KindSkip, Terminator: 0x00, ConsumeTerminator: true}

	r := bitio.NewReader([]byte{1, 2, 0x00, 9})
	_, err := c.Decode(env, r, b, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 24, r.Position())
}

func TestChecksumCodec_MatchesAndMismatches(t *testing.T) {
	env := newEnv()
	c := checksumCodec{}
	b := tmpl.Binding{Kind: tmpl.KindChecksum, Size: "8", Algorithm: "xor8", StartMark: "0", EndMark: "24"}

	payload := []byte{0x01, 0x02, 0x03}
	var want byte
	for _, x := range payload {
		want ^= x
	}

	// The engine would have already decoded the payload fields preceding
	// the checksum binding, leaving the cursor at byte 3; simulate that.
	r := bitio.NewReader(append(append([]byte{}, payload...), want))
	require.NoError(t, r.PositionTo(24))
	v, err := c.Decode(env, r, b, reflect.TypeOf(byte(0)), nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(want), v)

	bad := bitio.NewReader(append(append([]byte{}, payload...), want^0xFF))
	require.NoError(t, bad.PositionTo(24))
	_, err = c.Decode(env, bad, b, reflect.TypeOf(byte(0)), nil)
	require.Error(t, err)
}

func TestChecksumCodec_EncodeComputesValue(t *testing.T) {
	env := newEnv()
	c := checksumCodec{}
	b := tmpl.Binding{Kind: tmpl.KindChecksum, Size: "8", Algorithm: "xor8", StartMark: "0", EndMark: "16"}

	w := bitio.NewWriter()
	require.NoError(t, w.WriteByte(0x01))
	require.NoError(t, w.WriteByte(0x02))
	require.NoError(t, c.Encode(env, w, b, reflect.TypeOf(byte(0)), nil, nil))
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, w.Flush())
}

// fakeRecurser lets object/list codec tests exercise nested dispatch without
// the top-level engine, mirroring how the real Engine passes itself in as
// the Recurser on each Env.
type fakeRecurser struct {
	decode func(r *bitio.Reader, t reflect.Type, parent any) (any, error)
	encode func(w *bitio.Writer, t reflect.Type, v any) error
}

func (f *fakeRecurser) DecodeNested(r *bitio.Reader, t reflect.Type, parent any) (any, error) {
	return f.decode(r, t, parent)
}

func (f *fakeRecurser) EncodeNested(w *bitio.Writer, t reflect.Type, v any) error {
	return f.encode(w, t, v)
}

type innerA struct{ X byte }
type innerB struct{ Y byte }

func TestObjectCodec_StaticType(t *testing.T) {
	env := newEnv()
	env.Recurser = &fakeRecurser{
		decode: func(r *bitio.Reader, t reflect.Type, parent any) (any, error) {
			b, err := r.ReadByte()
			return innerA{X: b}, err
		},
		encode: func(w *bitio.Writer, t reflect.Type, v any) error {
			return w.WriteByte(v.(innerA).X)
		},
	}
	c := objectCodec{}
	b := tmpl.Binding{Kind: tmpl.KindObject, ObjectType: reflect.TypeOf(innerA{}), Converter: convert.IdentityTag}

	r := bitio.NewReader([]byte{7})
	v, err := c.Decode(env, r, b, reflect.TypeOf(innerA{}), nil)
	require.NoError(t, err)
	assert.Equal(t, innerA{X: 7}, v)

	w := bitio.NewWriter()
	require.NoError(t, c.Encode(env, w, b, reflect.TypeOf(innerA{}), innerA{X: 7}, nil))
	assert.Equal(t, []byte{7}, w.Flush())
}

func TestObjectCodec_SelectFromPrefix(t *testing.T) {
	env := newEnv()
	env.Recurser = &fakeRecurser{
		decode: func(r *bitio.Reader, t reflect.Type, parent any) (any, error) {
			v, err := r.ReadByte()
			if t == reflect.TypeOf(innerA{}) {
				return innerA{X: v}, err
			}
			return innerB{Y: v}, err
		},
		encode: func(w *bitio.Writer, t reflect.Type, v any) error {
			switch x := v.(type) {
			case innerA:
				return w.WriteByte(x.X)
			case innerB:
				return w.WriteByte(x.Y)
			}
			return nil
		},
	}
	c := objectCodec{}
	sf := &tmpl.SelectFrom{
		PrefixSize: 8,
		ByteOrder:  bitio.BigEndian,
		Alternatives: []tmpl.Alternative{
			{HasPrefix: true, Prefix: 1, Type: reflect.TypeOf(innerA{})},
			{HasPrefix: true, Prefix: 2, Type: reflect.TypeOf(innerB{})},
		},
	}
	b := tmpl.Binding{Kind: tmpl.KindObject, SelectFrom: sf, Converter: convert.IdentityTag}

	r := bitio.NewReader([]byte{2, 9})
	v, err := c.Decode(env, r, b, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, innerB{Y: 9}, v)

	w := bitio.NewWriter()
	require.NoError(t, c.Encode(env, w, b, nil, innerB{Y: 9}, nil))
	assert.Equal(t, []byte{2, 9}, w.Flush())
}

func TestObjectCodec_SelectFromNoMatch(t *testing.T) {
	env := newEnv()
	env.Recurser = &fakeRecurser{}
	c := objectCodec{}
	sf := &tmpl.SelectFrom{
		PrefixSize:   8,
		Alternatives: []tmpl.Alternative{{HasPrefix: true, Prefix: 1, Type: reflect.TypeOf(innerA{})}},
	}
	b := tmpl.Binding{Kind: tmpl.KindObject, SelectFrom: sf, Converter: convert.IdentityTag}

	r := bitio.NewReader([]byte{9})
	_, err := c.Decode(env, r, b, nil, nil)
	assert.Error(t, err)
}

func TestListCodec_CountBounded(t *testing.T) {
	env := newEnv()
	env.Recurser = &fakeRecurser{
		decode: func(r *bitio.Reader, t reflect.Type, parent any) (any, error) {
			v, err := r.ReadByte()
			return v, err
		},
		encode: func(w *bitio.Writer, t reflect.Type, v any) error {
			return w.WriteByte(v.(byte))
		},
	}
	c := listCodec{}
	b := tmpl.Binding{Kind: tmpl.KindList, Size: "3", ElementType: reflect.TypeOf(byte(0)), Converter: convert.IdentityTag}

	r := bitio.NewReader([]byte{1, 2, 3, 9})
	v, err := c.Decode(env, r, b, reflect.TypeOf([]byte(nil)), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, v)

	w := bitio.NewWriter()
	require.NoError(t, c.Encode(env, w, b, reflect.TypeOf([]byte(nil)), []byte{1, 2, 3}, nil))
	assert.Equal(t, []byte{1, 2, 3}, w.Flush())
}

type innerTerm struct{}

func TestListCodec_TerminatorBounded(t *testing.T) {
	env := newEnv()
	elemType := reflect.TypeOf(innerA{})
	termType := reflect.TypeOf(innerTerm{})
	env.Recurser = &fakeRecurser{
		decode: func(r *bitio.Reader, t reflect.Type, parent any) (any, error) {
			if t == termType {
				return innerTerm{}, nil
			}
			v, err := r.ReadByte()
			return innerA{X: v}, err
		},
		encode: func(w *bitio.Writer, t reflect.Type, v any) error {
			switch x := v.(type) {
			case innerA:
				return w.WriteByte(x.X)
			case innerTerm:
				return w.WriteByte(0xFF)
			}
			return nil
		},
	}
	c := listCodec{}
	sf := &tmpl.SelectFrom{
		PrefixSize: 8,
		Alternatives: []tmpl.Alternative{
			{HasPrefix: true, Prefix: 1, Type: elemType},
			{HasPrefix: true, Prefix: 0xFF, Type: termType},
		},
	}
	b := tmpl.Binding{
		Kind:             tmpl.KindList,
		ElementType:      elemType,
		TerminatorObject: termType,
		SelectFrom:       sf,
		Converter:        convert.IdentityTag,
	}

	r := bitio.NewReader([]byte{1, 5, 1, 6, 0xFF})
	v, err := c.Decode(env, r, b, reflect.TypeOf([]innerA(nil)), nil)
	require.NoError(t, err)
	assert.Equal(t, []innerA{{X: 5}, {X: 6}}, v)
	assert.Equal(t, 40, r.Position())
}
