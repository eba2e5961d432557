package codec

import (
	"fmt"
	"reflect"

	"github.com/mtrevisan/boxon/internal/bitio"
	"github.com/mtrevisan/boxon/internal/charset"
	"github.com/mtrevisan/boxon/internal/tmpl"
)

type stringCodec struct{}

func (stringCodec) Decode(env *Env, r *bitio.Reader, b tmpl.Binding, declared reflect.Type, root any) (any, error) {
	n, err := env.Evaluator.EvalSize(b.Size, root, env.Ctx)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("codec: string requires a size expression")
	}
	enc, err := charset.Lookup(b.Charset)
	if err != nil {
		return nil, err
	}
	s, err := r.ReadText(n, enc)
	if err != nil {
		return nil, err
	}
	return ApplyDecode(env, b, s)
}

func (stringCodec) Encode(env *Env, w *bitio.Writer, b tmpl.Binding, declared reflect.Type, v any, root any) error {
	in, err := ApplyEncode(env, b, v)
	if err != nil {
		return err
	}
	s, ok := in.(string)
	if !ok {
		return fmt.Errorf("codec: string encode expected string, got %T", in)
	}
	enc, err := charset.Lookup(b.Charset)
	if err != nil {
		return err
	}
	return w.WriteText(s, enc)
}

type stringTerminatedCodec struct{}

func (stringTerminatedCodec) Decode(env *Env, r *bitio.Reader, b tmpl.Binding, declared reflect.Type, root any) (any, error) {
	enc, err := charset.Lookup(b.Charset)
	if err != nil {
		return nil, err
	}
	s, err := r.ReadTextTerminated(b.Terminator, enc, b.ConsumeTerminator)
	if err != nil {
		return nil, err
	}
	return ApplyDecode(env, b, s)
}

func (stringTerminatedCodec) Encode(env *Env, w *bitio.Writer, b tmpl.Binding, declared reflect.Type, v any, root any) error {
	in, err := ApplyEncode(env, b, v)
	if err != nil {
		return err
	}
	s, ok := in.(string)
	if !ok {
		return fmt.Errorf("codec: stringTerminated encode expected string, got %T", in)
	}
	enc, err := charset.Lookup(b.Charset)
	if err != nil {
		return err
	}
	if err := w.WriteText(s, enc); err != nil {
		return err
	}
	return w.WriteByte(b.Terminator)
}
