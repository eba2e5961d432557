// Package codec implements the per-binding-kind field codecs: stateless
// singletons, one per tmpl.Kind, dispatched by a Registry. The codecs
// implement the converter-decode/validate/converter-encode/validate
// symmetry via the shared ApplyDecode/ApplyEncode helpers in apply.go, so
// that symmetry is written once rather than duplicated across every kind.
// Two exceptions: skip carries no value and runs neither helper, and
// checksum's Encode writes the computed checksum without ApplyEncode.
package codec

import (
	"reflect"

	"github.com/mtrevisan/boxon/internal/bitio"
	"github.com/mtrevisan/boxon/internal/convert"
	"github.com/mtrevisan/boxon/internal/expr"
	"github.com/mtrevisan/boxon/internal/tmpl"
)

// Recurser lets Object/List codecs dispatch into a nested template without
// the codec package importing the top-level engine package: the engine
// passes itself in through Env on every call, rather than being built into
// each codec singleton, breaking the construction-order cycle a direct
// import would otherwise create.
type Recurser interface {
	DecodeNested(r *bitio.Reader, t reflect.Type, parent any) (any, error)
	EncodeNested(w *bitio.Writer, t reflect.Type, v any) error
}

// Env bundles the collaborators every codec needs: the expression
// evaluator and its per-Engine context, the converter/validator
// registries, and the Recurser for nested templates.
type Env struct {
	Evaluator  *expr.Evaluator
	Ctx        *expr.Context
	Converters *convert.ConverterRegistry
	Validators *convert.ValidatorRegistry
	Recurser   Recurser
}

// Codec is the per-kind read/write strategy. Encode also
// receives the enclosing record (root) alongside the field's own value v,
// since size/condition expressions may reference sibling fields through
// "self" during encode just as they do during decode.
type Codec interface {
	Decode(env *Env, r *bitio.Reader, b tmpl.Binding, declared reflect.Type, root any) (any, error)
	Encode(env *Env, w *bitio.Writer, b tmpl.Binding, declared reflect.Type, v any, root any) error
}

// Registry maps a binding kind to its codec.
type Registry struct {
	codecs map[tmpl.Kind]Codec
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{codecs: map[tmpl.Kind]Codec{}}
}

// Register installs c for kind.
func (r *Registry) Register(kind tmpl.Kind, c Codec) {
	r.codecs[kind] = c
}

// HasCodec reports whether kind has a registered codec, satisfying
// tmpl.CodecChecker.
func (r *Registry) HasCodec(kind tmpl.Kind) bool {
	_, ok := r.codecs[kind]
	return ok
}

// Get looks up the codec registered for kind.
func (r *Registry) Get(kind tmpl.Kind) (Codec, bool) {
	c, ok := r.codecs[kind]
	return c, ok
}

// NewDefaultRegistry returns a Registry with every wire binding kind
// registered.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(tmpl.KindInteger, integerCodec{})
	r.Register(tmpl.KindByteArray, byteArrayCodec{})
	r.Register(tmpl.KindByteArrayTerminated, byteArrayTerminatedCodec{})
	r.Register(tmpl.KindString, stringCodec{})
	r.Register(tmpl.KindStringTerminated, stringTerminatedCodec{})
	r.Register(tmpl.KindObject, objectCodec{})
	r.Register(tmpl.KindList, listCodec{})
	r.Register(tmpl.KindChecksum, checksumCodec{})
	r.Register(tmpl.KindSkip, skipCodec{})
	return r
}
