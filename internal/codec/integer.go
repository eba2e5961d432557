package codec

import (
	"fmt"
	"reflect"

	"github.com/mtrevisan/boxon/internal/bitio"
	"github.com/mtrevisan/boxon/internal/tmpl"
)

type integerCodec struct{}

func bitWidthForType(t reflect.Type) int {
	switch t.Kind() {
	case reflect.Int8, reflect.Uint8:
		return 8
	case reflect.Int16, reflect.Uint16:
		return 16
	case reflect.Int32, reflect.Uint32:
		return 32
	case reflect.Int64, reflect.Uint64, reflect.Int, reflect.Uint:
		return 64
	default:
		return 8
	}
}

func signExtend(v uint64, n int) int64 {
	if n >= 64 {
		return int64(v)
	}
	shift := uint(64 - n)
	return int64(v<<shift) >> shift
}

func toUint64(v any) (uint64, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return uint64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint(), nil
	case reflect.Bool:
		if rv.Bool() {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("codec: value %v (%T) is not an integer", v, v)
	}
}

func intSize(ev *Env, b tmpl.Binding, declared reflect.Type, root any) (int, error) {
	n, err := ev.Evaluator.EvalSize(b.Size, root, ev.Ctx)
	if err != nil {
		return 0, err
	}
	if n < 0 { // Unbounded: fall back to the declared Go type's natural width
		return bitWidthForType(declared), nil
	}
	return n, nil
}

func (integerCodec) Decode(env *Env, r *bitio.Reader, b tmpl.Binding, declared reflect.Type, root any) (any, error) {
	n, err := intSize(env, b, declared, root)
	if err != nil {
		return nil, err
	}
	bits, err := r.ReadBits(n, b.ByteOrder)
	if err != nil {
		return nil, err
	}

	var wireValue any
	switch declared.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		wireValue = signExtend(bits, n)
	default:
		wireValue = bits
	}
	return ApplyDecode(env, b, wireValue)
}

func (integerCodec) Encode(env *Env, w *bitio.Writer, b tmpl.Binding, declared reflect.Type, v any, root any) error {
	in, err := ApplyEncode(env, b, v)
	if err != nil {
		return err
	}
	bits, err := toUint64(in)
	if err != nil {
		return err
	}
	n, err := intSize(env, b, declared, root)
	if err != nil {
		return err
	}
	return w.WriteBits(bits, n, b.ByteOrder)
}
