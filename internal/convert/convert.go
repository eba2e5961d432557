// Package convert implements the converter/validator registries: pairwise
// decode/encode functions identified by an opaque tag, and boolean
// predicates used to reject decoded/encoded values.
package convert

import (
	"fmt"

	"github.com/mtrevisan/boxon/internal/expr"
	"github.com/mtrevisan/boxon/internal/tmplerr"
)

// IdentityTag is the distinguished converter tag meaning "no conversion":
// decode and encode are both the identity function.
const IdentityTag = ""

// Converter is a pair of pure functions moving a value between its wire
// representation IN and its record representation OUT.
type Converter interface {
	Decode(in any) (out any, err error)
	Encode(out any) (in any, err error)
}

type identityConverter struct{}

func (identityConverter) Decode(in any) (any, error) { return in, nil }
func (identityConverter) Encode(out any) (any, error) { return out, nil }

// ConverterFunc adapts a pair of plain functions to the Converter
// interface.
type ConverterFunc struct {
	DecodeFn func(any) (any, error)
	EncodeFn func(any) (any, error)
}

func (c ConverterFunc) Decode(in any) (any, error)  { return c.DecodeFn(in) }
func (c ConverterFunc) Encode(out any) (any, error) { return c.EncodeFn(out) }

// ConverterRegistry instantiates converters once (idempotent construction)
// and looks them up by tag.
type ConverterRegistry struct {
	converters map[string]Converter
}

// NewConverterRegistry returns a registry pre-seeded with the identity
// converter under IdentityTag.
func NewConverterRegistry() *ConverterRegistry {
	return &ConverterRegistry{converters: map[string]Converter{IdentityTag: identityConverter{}}}
}

// Register installs c under tag. Registering under an existing tag
// replaces it; this is only ever done once per tag at bootstrap, by
// contract, so idempotent re-registration with an equal converter is safe.
func (r *ConverterRegistry) Register(tag string, c Converter) {
	r.converters[tag] = c
}

// Get looks up the converter registered under tag.
func (r *ConverterRegistry) Get(tag string) (Converter, bool) {
	c, ok := r.converters[tag]
	return c, ok
}

// Validator rejects values that fail a domain predicate.
type Validator interface {
	IsValid(v any) bool
}

// ValidatorFunc adapts a plain predicate to the Validator interface.
type ValidatorFunc func(v any) bool

func (f ValidatorFunc) IsValid(v any) bool { return f(v) }

// ValidatorRegistry instantiates validators once and looks them up by tag.
type ValidatorRegistry struct {
	validators map[string]Validator
}

// NewValidatorRegistry returns an empty registry.
func NewValidatorRegistry() *ValidatorRegistry {
	return &ValidatorRegistry{validators: map[string]Validator{}}
}

// Register installs v under tag.
func (r *ValidatorRegistry) Register(tag string, v Validator) {
	r.validators[tag] = v
}

// Get looks up the validator registered under tag. An empty tag always
// means "no validator" and is not looked up.
func (r *ValidatorRegistry) Get(tag string) (Validator, bool) {
	if tag == "" {
		return nil, false
	}
	v, ok := r.validators[tag]
	return v, ok
}

// ConverterAlternative is one entry of the "choose converter" protocol:
// selectConverterFrom.
type ConverterAlternative struct {
	Condition string
	Tag       string
}

// ChooseConverter selects the first alternative whose condition evaluates
// true against root; otherwise def.
func ChooseConverter(alts []ConverterAlternative, def string, root any, ctx *expr.Context, ev *expr.Evaluator) (string, error) {
	for _, alt := range alts {
		ok, err := ev.EvalBool(alt.Condition, root, ctx)
		if err != nil {
			return "", err
		}
		if ok {
			return alt.Tag, nil
		}
	}
	return def, nil
}

// Decode runs tag's converter over in, wrapping any failure as a
// *tmplerr.ConversionError.
func (r *ConverterRegistry) Decode(tag string, in any) (any, error) {
	c, ok := r.Get(tag)
	if !ok {
		return nil, fmt.Errorf("convert: unknown converter tag %q", tag)
	}
	out, err := c.Decode(in)
	if err != nil {
		return nil, &tmplerr.ConversionError{Tag: tag, Value: in, Err: err}
	}
	return out, nil
}

// Encode runs tag's converter over out (reverse direction), wrapping any
// failure as a *tmplerr.ConversionError.
func (r *ConverterRegistry) Encode(tag string, out any) (any, error) {
	c, ok := r.Get(tag)
	if !ok {
		return nil, fmt.Errorf("convert: unknown converter tag %q", tag)
	}
	in, err := c.Encode(out)
	if err != nil {
		return nil, &tmplerr.ConversionError{Tag: tag, Value: out, Err: err}
	}
	return in, nil
}

// Validate runs tag's validator over v, returning a *tmplerr.ValidationError
// if it rejects the value. An unregistered or empty tag is always valid.
func (r *ValidatorRegistry) Validate(tag string, v any) error {
	val, ok := r.Get(tag)
	if !ok {
		return nil
	}
	if !val.IsValid(v) {
		return &tmplerr.ValidationError{Tag: tag, Value: v}
	}
	return nil
}
