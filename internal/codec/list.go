package codec

import (
	"fmt"
	"reflect"

	"github.com/mtrevisan/boxon/internal/bitio"
	"github.com/mtrevisan/boxon/internal/tmpl"
)

type listCodec struct{}

// elementType resolves the concrete type to decode one element as, honoring
// b's SelectFrom alternatives the same way objectCodec does. A
// TerminatorObject only makes sense paired with a SelectFrom that can tell
// the sentinel's type apart from a real element's (typically by a prefix
// byte), since reflect.Type alone can't distinguish "one more element" from
// "the list is done" otherwise.
func (listCodec) elementType(env *Env, r *bitio.Reader, b tmpl.Binding, root any) (reflect.Type, error) {
	if b.SelectFrom != nil {
		return resolveDecodeType(env, r, b, b.SelectFrom, root)
	}
	return b.ElementType, nil
}

func (c listCodec) Decode(env *Env, r *bitio.Reader, b tmpl.Binding, declared reflect.Type, root any) (any, error) {
	elemType := b.ElementType
	if elemType == nil {
		elemType = declared.Elem()
	}

	slice := reflect.MakeSlice(reflect.SliceOf(elemType), 0, 0)

	if b.TerminatorObject != nil {
		for {
			et, err := c.elementType(env, r, b, root)
			if err != nil {
				return nil, err
			}
			if et == b.TerminatorObject {
				if _, err := env.Recurser.DecodeNested(r, et, root); err != nil {
					return nil, err
				}
				break
			}
			v, err := env.Recurser.DecodeNested(r, et, root)
			if err != nil {
				return nil, err
			}
			slice = reflect.Append(slice, reflect.ValueOf(v).Convert(elemType))
		}
		return ApplyDecode(env, b, slice.Interface())
	}

	n, err := env.Evaluator.EvalSize(b.Size, root, env.Ctx)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("codec: list requires a size expression or a terminator object")
	}
	for i := 0; i < n; i++ {
		et, err := c.elementType(env, r, b, root)
		if err != nil {
			return nil, err
		}
		v, err := env.Recurser.DecodeNested(r, et, root)
		if err != nil {
			return nil, err
		}
		slice = reflect.Append(slice, reflect.ValueOf(v).Convert(elemType))
	}
	return ApplyDecode(env, b, slice.Interface())
}

func (c listCodec) Encode(env *Env, w *bitio.Writer, b tmpl.Binding, declared reflect.Type, v any, root any) error {
	out, err := ApplyEncode(env, b, v)
	if err != nil {
		return err
	}
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Slice {
		return fmt.Errorf("codec: list encode expected a slice, got %T", out)
	}
	for i := 0; i < rv.Len(); i++ {
		elem := rv.Index(i).Interface()
		if b.SelectFrom != nil {
			alt, ok := resolveEncodeAlternative(b.SelectFrom, elem)
			if !ok {
				return fmt.Errorf("codec: list: no alternative matches element of type %T", elem)
			}
			if b.SelectFrom.PrefixSize > 0 && alt.HasPrefix {
				if err := w.WriteBits(uint64(alt.Prefix), b.SelectFrom.PrefixSize, b.SelectFrom.ByteOrder); err != nil {
					return err
				}
			}
		}
		if err := env.Recurser.EncodeNested(w, reflect.TypeOf(elem), elem); err != nil {
			return err
		}
	}
	if b.TerminatorObject != nil {
		sentinel := reflect.New(b.TerminatorObject).Elem().Interface()
		if err := env.Recurser.EncodeNested(w, b.TerminatorObject, sentinel); err != nil {
			return err
		}
	}
	return nil
}
