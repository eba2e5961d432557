package codec

import (
	"fmt"
	"reflect"

	"github.com/mtrevisan/boxon/internal/bitio"
	"github.com/mtrevisan/boxon/internal/tmpl"
)

type byteArrayCodec struct{}

func (byteArrayCodec) Decode(env *Env, r *bitio.Reader, b tmpl.Binding, declared reflect.Type, root any) (any, error) {
	n, err := env.Evaluator.EvalSize(b.Size, root, env.Ctx)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("codec: byteArray requires a size expression")
	}
	raw, err := r.ReadBytes(n)
	if err != nil {
		return nil, err
	}
	return ApplyDecode(env, b, raw)
}

func (byteArrayCodec) Encode(env *Env, w *bitio.Writer, b tmpl.Binding, declared reflect.Type, v any, root any) error {
	in, err := ApplyEncode(env, b, v)
	if err != nil {
		return err
	}
	raw, ok := in.([]byte)
	if !ok {
		return fmt.Errorf("codec: byteArray encode expected []byte, got %T", in)
	}
	return w.WriteBytes(raw)
}

type byteArrayTerminatedCodec struct{}

func (byteArrayTerminatedCodec) Decode(env *Env, r *bitio.Reader, b tmpl.Binding, declared reflect.Type, root any) (any, error) {
	raw, err := r.ReadBytesTerminated(b.Terminator, b.ConsumeTerminator)
	if err != nil {
		return nil, err
	}
	return ApplyDecode(env, b, raw)
}

func (byteArrayTerminatedCodec) Encode(env *Env, w *bitio.Writer, b tmpl.Binding, declared reflect.Type, v any, root any) error {
	in, err := ApplyEncode(env, b, v)
	if err != nil {
		return err
	}
	raw, ok := in.([]byte)
	if !ok {
		return fmt.Errorf("codec: byteArrayTerminated encode expected []byte, got %T", in)
	}
	if err := w.WriteBytes(raw); err != nil {
		return err
	}
	// The terminator byte is always present on the wire; ConsumeTerminator
	// only controls whether a decode's cursor advances past it.
	return w.WriteByte(b.Terminator)
}
