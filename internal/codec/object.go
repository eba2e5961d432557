package codec

import (
	"fmt"
	"reflect"

	"github.com/mtrevisan/boxon/internal/bitio"
	"github.com/mtrevisan/boxon/internal/tmpl"
	"github.com/mtrevisan/boxon/internal/tmplerr"
)

// resolveDecodeType picks the concrete type to recurse into on decode: a
// static ObjectType, or one selected from sf's alternatives by prefix value
// and/or condition, falling back to sf.DefaultType.
func resolveDecodeType(env *Env, r *bitio.Reader, b tmpl.Binding, sf *tmpl.SelectFrom, root any) (reflect.Type, error) {
	var prefix int64
	if sf.PrefixSize > 0 {
		bits, err := r.ReadBits(sf.PrefixSize, sf.ByteOrder)
		if err != nil {
			return nil, err
		}
		prefix = int64(bits)
		env.Ctx.Set("prefix", prefix)
	}

	for _, alt := range sf.Alternatives {
		if alt.HasPrefix && alt.Prefix != prefix {
			continue
		}
		if alt.Condition != "" {
			ok, err := env.Evaluator.EvalBool(alt.Condition, root, env.Ctx)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		return alt.Type, nil
	}
	if sf.HasDefault {
		return sf.DefaultType, nil
	}
	return nil, &tmplerr.UnknownMessageError{Prefix: prefixBytes(prefix, sf.PrefixSize)}
}

// prefixBytes renders an alternative-selector prefix value as the
// big-endian byte slice it would occupy on the wire, for attaching to a
// diagnostic error.
func prefixBytes(prefix int64, bitSize int) []byte {
	n := (bitSize + 7) / 8
	out := make([]byte, n)
	v := uint64(prefix)
	for i := n - 1; i >= 0; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}

// resolveEncodeAlternative finds the Alternative matching v's runtime type,
// for writing the selector prefix back out on encode.
func resolveEncodeAlternative(sf *tmpl.SelectFrom, v any) (tmpl.Alternative, bool) {
	vt := reflect.TypeOf(v)
	for vt != nil && vt.Kind() == reflect.Ptr {
		vt = vt.Elem()
	}
	for _, alt := range sf.Alternatives {
		at := alt.Type
		for at != nil && at.Kind() == reflect.Ptr {
			at = at.Elem()
		}
		if at == vt {
			return alt, true
		}
	}
	return tmpl.Alternative{}, false
}

type objectCodec struct{}

func (objectCodec) Decode(env *Env, r *bitio.Reader, b tmpl.Binding, declared reflect.Type, root any) (any, error) {
	targetType := b.ObjectType
	if b.SelectFrom != nil {
		t, err := resolveDecodeType(env, r, b, b.SelectFrom, root)
		if err != nil {
			return nil, err
		}
		targetType = t
	}
	if targetType == nil {
		targetType = declared
	}
	v, err := env.Recurser.DecodeNested(r, targetType, root)
	if err != nil {
		return nil, err
	}
	return ApplyDecode(env, b, v)
}

func (objectCodec) Encode(env *Env, w *bitio.Writer, b tmpl.Binding, declared reflect.Type, v any, root any) error {
	out, err := ApplyEncode(env, b, v)
	if err != nil {
		return err
	}
	if b.SelectFrom != nil {
		alt, ok := resolveEncodeAlternative(b.SelectFrom, out)
		if !ok {
			return fmt.Errorf("codec: object: no alternative matches value of type %T", out)
		}
		if b.SelectFrom.PrefixSize > 0 && alt.HasPrefix {
			if err := w.WriteBits(uint64(alt.Prefix), b.SelectFrom.PrefixSize, b.SelectFrom.ByteOrder); err != nil {
				return err
			}
		}
	}
	return env.Recurser.EncodeNested(w, reflect.TypeOf(out), out)
}
