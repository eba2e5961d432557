package codec

import (
	"reflect"
	"strconv"

	"github.com/mtrevisan/boxon/internal/bitio"
	"github.com/mtrevisan/boxon/internal/checksum"
	"github.com/mtrevisan/boxon/internal/tmpl"
	"github.com/mtrevisan/boxon/internal/tmplerr"
)

// resolveMark turns a StartMark/EndMark tag value into an absolute bit
// offset: either a literal integer (e.g. "0") or a "mark."-prefixed context
// lookup set by the engine right after the named field was processed.
func resolveMark(env *Env, mark string, currentBit int) (int, error) {
	if mark == "" {
		return currentBit, nil
	}
	if n, err := strconv.Atoi(mark); err == nil {
		return n, nil
	}
	v, ok := env.Ctx.Get("mark." + mark)
	if !ok {
		return 0, &tmplerr.ExpressionError{Expr: mark, Err: errUndefinedMark(mark)}
	}
	n, ok := v.(int)
	if !ok {
		return 0, &tmplerr.ExpressionError{Expr: mark, Err: errUndefinedMark(mark)}
	}
	return n, nil
}

type markError string

func (e markError) Error() string { return "undefined mark " + string(e) }

func errUndefinedMark(mark string) error { return markError(mark) }

// reservedMessageStart is the context key the engine binds to the bit
// offset at which the current record began, so that an unset StartMark
// defaults to "the start of this message" rather than bit 0 of the whole
// stream — the latter is only correct for a lone message at the front of
// a buffer.
const reservedMessageStart = "mark.messageStart"

func messageStart(env *Env) int {
	v, ok := env.Ctx.Get(reservedMessageStart)
	if !ok {
		return 0
	}
	n, ok := v.(int)
	if !ok {
		return 0
	}
	return n
}

type checksumCodec struct{}

func (checksumCodec) Decode(env *Env, r *bitio.Reader, b tmpl.Binding, declared reflect.Type, root any) (any, error) {
	n, err := intSize(env, b, declared, root)
	if err != nil {
		return nil, err
	}
	startBit, err := resolveMark(env, b.StartMark, messageStart(env))
	if err != nil {
		return nil, err
	}
	endBit, err := resolveMark(env, b.EndMark, r.Position())
	if err != nil {
		return nil, err
	}

	bits, err := r.ReadBits(n, b.ByteOrder)
	if err != nil {
		return nil, err
	}

	algo, err := checksum.Lookup(b.Algorithm)
	if err != nil {
		return nil, err
	}
	want := algo(r.BytesRange(startBit, endBit))
	if want != bits {
		return nil, &tmplerr.ValidationError{Tag: b.Algorithm, Value: bits, Computed: want}
	}
	return ApplyDecode(env, b, bits)
}

func (checksumCodec) Encode(env *Env, w *bitio.Writer, b tmpl.Binding, declared reflect.Type, v any, root any) error {
	n, err := intSize(env, b, declared, root)
	if err != nil {
		return err
	}
	startBit, err := resolveMark(env, b.StartMark, messageStart(env))
	if err != nil {
		return err
	}
	endBit, err := resolveMark(env, b.EndMark, w.Position())
	if err != nil {
		return err
	}

	algo, err := checksum.Lookup(b.Algorithm)
	if err != nil {
		return err
	}
	computed := algo(w.BytesRange(startBit, endBit))
	return w.WriteBits(computed, n, b.ByteOrder)
}
