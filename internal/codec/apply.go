package codec

import "github.com/mtrevisan/boxon/internal/tmpl"

// ApplyDecode runs the converter-then-validate half of the symmetry
// required of every codec: on decode, run the converter then validate.
func ApplyDecode(env *Env, b tmpl.Binding, wireValue any) (any, error) {
	out, err := env.Converters.Decode(b.Converter, wireValue)
	if err != nil {
		return nil, err
	}
	if err := env.Validators.Validate(b.Validator, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ApplyEncode runs the validate-then-converter (reverse direction) half of
// the symmetry: "on encode, validate then run converter (reverse
// direction)".
func ApplyEncode(env *Env, b tmpl.Binding, recordValue any) (any, error) {
	if err := env.Validators.Validate(b.Validator, recordValue); err != nil {
		return nil, err
	}
	in, err := env.Converters.Encode(b.Converter, recordValue)
	if err != nil {
		return nil, err
	}
	return in, nil
}
