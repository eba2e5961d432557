package boxon

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtrevisan/boxon/internal/bitio"
	"github.com/mtrevisan/boxon/internal/tmpl"
	"github.com/mtrevisan/boxon/internal/tmplerr"
)

// reading header-framed, checksummed record ---------------------------------

type sensorReading struct {
	Count    byte   `boxon:"kind=integer,size=8"`
	Name     string `boxon:"kind=stringTerminated,terminator=0,consumeTerminator=true"`
	Checksum byte   `boxon:"kind=checksum,size=8,algorithm=xor8"`
}

func (sensorReading) BoxonHeader() tmpl.Header {
	return tmpl.Header{Start: []byte{0xAA, 0x01}}
}

func newSensorEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine()
	_, err := RegisterMessage[sensorReading](e)
	require.NoError(t, err)
	return e
}

func TestEngine_RoundTrip(t *testing.T) {
	e := newSensorEngine(t)

	in := sensorReading{Count: 7, Name: "abc"}
	w := bitio.NewWriter()
	require.NoError(t, Encode(e, w, &in))
	buf := w.Flush()

	r := bitio.NewReader(buf)
	out, err := Decode[sensorReading](e, r)
	require.NoError(t, err)
	assert.Equal(t, in.Count, out.Count)
	assert.Equal(t, in.Name, out.Name)
}

func TestEngine_ChecksumMismatchIsRecoverable(t *testing.T) {
	e := newSensorEngine(t)

	in := sensorReading{Count: 7, Name: "abc"}
	w := bitio.NewWriter()
	require.NoError(t, Encode(e, w, &in))
	buf := w.Flush()
	buf[len(buf)-1] ^= 0xFF // corrupt the trailing checksum byte

	r := bitio.NewReader(buf)
	_, err := Decode[sensorReading](e, r)
	require.Error(t, err)

	var validationErr *tmplerr.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "xor8", validationErr.Tag)
	assert.NotNil(t, validationErr.Value)
	assert.NotNil(t, validationErr.Computed)
	assert.NotEqual(t, validationErr.Value, validationErr.Computed)
}

// Register-time ambiguity ----------------------------------------------------

type twin struct {
	X byte `boxon:"kind=integer,size=8"`
}

func (twin) BoxonHeader() tmpl.Header { return tmpl.Header{Start: []byte{0xAA, 0x01}} }

func TestEngine_Register_RejectsAmbiguousPrefix(t *testing.T) {
	e := newSensorEngine(t)
	_, err := RegisterMessage[twin](e)
	require.Error(t, err)
}

// object alternatives ---------------------------------------------------------

type innerOne struct {
	V byte `boxon:"kind=integer,size=8"`
}

type innerTwo struct {
	V uint16 `boxon:"kind=integer,size=16"`
}

type withAlternative struct {
	Payload any `boxon:"kind=object,selectFrom.prefixSize=8,alternatives=1:innerOne;2:innerTwo"`
}

func (withAlternative) BoxonHeader() tmpl.Header { return tmpl.Header{Start: []byte{0xBB}} }

func TestEngine_ObjectAlternatives_SelectsByPrefix(t *testing.T) {
	e := NewEngine()
	e.RegisterType("innerOne", reflect.TypeOf(innerOne{}))
	e.RegisterType("innerTwo", reflect.TypeOf(innerTwo{}))
	_, err := RegisterMessage[withAlternative](e)
	require.NoError(t, err)

	in := withAlternative{Payload: innerTwo{V: 0x1234}}
	w := bitio.NewWriter()
	require.NoError(t, Encode(e, w, &in))
	buf := w.Flush()

	r := bitio.NewReader(buf)
	out, err := Decode[withAlternative](e, r)
	require.NoError(t, err)
	got, ok := out.Payload.(innerTwo)
	require.True(t, ok)
	assert.Equal(t, uint16(0x1234), got.V)
}

func TestEngine_ObjectAlternatives_UnmatchedPrefixIsUnknownMessage(t *testing.T) {
	e := NewEngine()
	e.RegisterType("innerOne", reflect.TypeOf(innerOne{}))
	e.RegisterType("innerTwo", reflect.TypeOf(innerTwo{}))
	_, err := RegisterMessage[withAlternative](e)
	require.NoError(t, err)

	// header 0xBB followed by a selector prefix (0x03) matching neither
	// declared alternative, with no default to fall back to.
	r := bitio.NewReader([]byte{0xBB, 0x03})
	_, err = Decode[withAlternative](e, r)
	require.Error(t, err)

	var unknownErr *tmplerr.UnknownMessageError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, []byte{0x03}, unknownErr.Prefix)
}

// driver: multi-message stream with a corrupt message in the middle --------

func TestDriver_Parse_RecoversFromCorruptMessage(t *testing.T) {
	e := newSensorEngine(t)
	d := NewDriver(e)

	good1 := sensorReading{Count: 1, Name: "x"}
	good2 := sensorReading{Count: 2, Name: "y"}

	w1 := bitio.NewWriter()
	require.NoError(t, Encode(e, w1, &good1))
	msg1 := w1.Flush()

	w2 := bitio.NewWriter()
	require.NoError(t, Encode(e, w2, &good2))
	msg2 := w2.Flush()

	junk := []byte{0xAA, 0x01, 0x00, 0x00, 0x00}

	var buf []byte
	buf = append(buf, msg1...)
	buf = append(buf, junk...)
	buf = append(buf, msg2...)

	responses := d.Parse(buf)

	var oks, errs int
	for _, resp := range responses {
		switch resp.Kind {
		case ResponseOK:
			oks++
		case ResponseError:
			errs++
		}
	}
	assert.Equal(t, 2, oks)
	assert.GreaterOrEqual(t, errs, 1)
}

func TestDriver_Compose_MatchesEngineEncode(t *testing.T) {
	e := newSensorEngine(t)
	d := NewDriver(e)

	in := sensorReading{Count: 9, Name: "z"}
	res := d.Compose(in)
	require.NoError(t, res.Error)
	require.NotEmpty(t, res.Message)

	w := bitio.NewWriter()
	require.NoError(t, Encode(e, w, &in))
	assert.Equal(t, w.Flush(), res.Message)

	r := bitio.NewReader(res.Message)
	out, err := Decode[sensorReading](e, r)
	require.NoError(t, err)
	assert.Equal(t, in.Count, out.Count)
}
