package codec

import (
	"reflect"

	"github.com/mtrevisan/boxon/internal/bitio"
	"github.com/mtrevisan/boxon/internal/tmpl"
)

// skipCodec discards bits without producing a record value: either a fixed
// bit count (Size) or up to and optionally past a terminator byte. It backs
// both the standalone "skip" kind and the PrecedingSkips the engine runs
// ahead of a bound field.
type skipCodec struct{}

func (skipCodec) Decode(env *Env, r *bitio.Reader, b tmpl.Binding, declared reflect.Type, root any) (any, error) {
	if b.Size == "" {
		_, err := r.ReadBytesTerminated(b.Terminator, b.ConsumeTerminator)
		return nil, err
	}
	n, err := env.Evaluator.EvalSize(b.Size, root, env.Ctx)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}
	_, err = r.ReadBits(n, b.ByteOrder)
	return nil, err
}

func (skipCodec) Encode(env *Env, w *bitio.Writer, b tmpl.Binding, declared reflect.Type, v any, root any) error {
	if b.Size == "" {
		return w.WriteByte(b.Terminator)
	}
	n, err := env.Evaluator.EvalSize(b.Size, root, env.Ctx)
	if err != nil {
		return err
	}
	if n <= 0 {
		return nil
	}
	return w.WriteBits(0, n, b.ByteOrder)
}
