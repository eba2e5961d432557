// Package boxon implements the declarative bit-level message codec of
// SPEC_FULL.md: Engine builds and runs Templates (internal/tmpl) over
// in-memory bit buffers (internal/bitio), dispatching each bound field to
// its codec (internal/codec) and resolving expressions (internal/expr)
// against a per-Engine context.
package boxon

import (
	"fmt"
	"reflect"

	"github.com/mtrevisan/boxon/internal/bitio"
	"github.com/mtrevisan/boxon/internal/codec"
	"github.com/mtrevisan/boxon/internal/convert"
	"github.com/mtrevisan/boxon/internal/expr"
	"github.com/mtrevisan/boxon/internal/tmpl"
	"github.com/mtrevisan/boxon/internal/tmplerr"
)

// messageEntry is a top-level, fingerprintable registration: a record type
// whose Template declares a non-empty header prefix.
type messageEntry struct {
	t    reflect.Type
	tmpl *tmpl.Template
}

// Engine owns one set of Templates, codec/converter/validator registries,
// and the expression context reserved for "self"/"prefix" bindings. Give
// each goroutine (or each logically independent stream) its own Engine
// rather than sharing one without external serialization.
type Engine struct {
	codecs     *codec.Registry
	converters *convert.ConverterRegistry
	validators *convert.ValidatorRegistry
	evaluator  *expr.Evaluator
	ctx        *expr.Context
	builder    *tmpl.Builder

	templates    map[reflect.Type]*tmpl.Template
	typesByName  map[string]reflect.Type
	messages     []messageEntry
	maxPrefixLen int
}

// NewEngine returns a ready-to-use Engine with the default codec registry
// (the full set of wire binding kinds) and empty converter/validator
// registries; register converters/validators before Register-ing any
// Template that references them by tag.
func NewEngine() *Engine {
	e := &Engine{
		converters:  convert.NewConverterRegistry(),
		validators:  convert.NewValidatorRegistry(),
		evaluator:   expr.New(),
		ctx:         expr.NewContext(),
		templates:   map[reflect.Type]*tmpl.Template{},
		typesByName: map[string]reflect.Type{},
	}
	e.codecs = codec.NewDefaultRegistry()
	e.builder = tmpl.NewBuilder(e.codecs, e.converters, e.validators, e.resolveType)
	return e
}

// Converters exposes the Engine's converter registry so callers can
// Register domain-specific converters before building Templates that
// reference them.
func (e *Engine) Converters() *convert.ConverterRegistry { return e.converters }

// Validators exposes the Engine's validator registry, symmetric with
// Converters.
func (e *Engine) Validators() *convert.ValidatorRegistry { return e.validators }

// Context exposes the Engine's expression context so callers can register
// host functions (#fn(args) calls) before decoding.
func (e *Engine) Context() *expr.Context { return e.ctx }

// RegisterType binds name to t so that a sibling Template's "type=name" or
// alternatives/conditions tag can resolve it, without requiring t itself to
// become a fingerprintable top-level message.
func (e *Engine) RegisterType(name string, t reflect.Type) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	e.typesByName[name] = t
}

// Register builds (or returns the cached) Template for t, records it under
// its own type name for later "type=" resolution, and — if its schema
// declares a non-empty header prefix — adds it to the fingerprintable
// message set, rejecting the registration with an AmbiguousPrefixError if
// its prefix cannot be distinguished from an already-registered message's.
func (e *Engine) Register(t reflect.Type) (*tmpl.Template, error) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	tm, err := e.templateFor(t)
	if err != nil {
		return nil, err
	}
	e.typesByName[t.Name()] = t

	if len(tm.HeaderPrefix) == 0 {
		return tm, nil
	}
	for _, m := range e.messages {
		if prefixesConflict(m.tmpl.HeaderPrefix, tm.HeaderPrefix) {
			return nil, &tmplerr.AmbiguousPrefixError{TypeA: m.t.String(), TypeB: t.String(), Prefix: tm.HeaderPrefix}
		}
	}
	e.messages = append(e.messages, messageEntry{t: t, tmpl: tm})
	if len(tm.HeaderPrefix) > e.maxPrefixLen {
		e.maxPrefixLen = len(tm.HeaderPrefix)
	}
	return tm, nil
}

// prefixesConflict reports whether two header prefixes cannot be told apart
// by a fixed-length peek: either they share a common leading run up to the
// shorter one's length, or one of them is empty (matches unconditionally).
func prefixesConflict(a, b []byte) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return true
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (e *Engine) resolveType(name string) (reflect.Type, bool) {
	t, ok := e.typesByName[name]
	return t, ok
}

// templateFor builds and caches t's Template on first use, so that nested
// Object/List element types are compiled lazily the first time a codec
// recurses into them rather than requiring an explicit Register call.
func (e *Engine) templateFor(t reflect.Type) (*tmpl.Template, error) {
	if tm, ok := e.templates[t]; ok {
		return tm, nil
	}
	tm, err := e.builder.Build(t)
	if err != nil {
		return nil, err
	}
	e.templates[t] = tm
	return tm, nil
}

func (e *Engine) env() *codec.Env {
	return &codec.Env{
		Evaluator:  e.evaluator,
		Ctx:        e.ctx,
		Converters: e.converters,
		Validators: e.validators,
		Recurser:   e,
	}
}

// DecodeNested implements codec.Recurser, letting Object/List codecs
// recurse into a nested Template without internal/codec importing this
// package.
func (e *Engine) DecodeNested(r *bitio.Reader, t reflect.Type, parent any) (any, error) {
	return e.decodeRecord(t, r, parent)
}

// EncodeNested implements codec.Recurser, the encode-direction dual of
// DecodeNested.
func (e *Engine) EncodeNested(w *bitio.Writer, t reflect.Type, v any) error {
	return e.encodeRecord(t, w, v)
}

// FindTemplate peeks at the current reader position (without advancing it)
// and returns the unique registered message whose header prefix matches.
// Ambiguity is rejected at Register time, so the first match found is by
// construction the only one.
func (e *Engine) FindTemplate(r *bitio.Reader) (*tmpl.Template, error) {
	for _, m := range e.messages {
		cand, ok := r.PeekPrefix(len(m.tmpl.HeaderPrefix))
		if !ok {
			continue
		}
		if bytesEqual(cand, m.tmpl.HeaderPrefix) {
			return m.tmpl, nil
		}
	}
	prefix, _ := r.PeekPrefix(e.maxPrefixLen)
	return nil, &tmplerr.UnknownMessageError{Prefix: prefix}
}

// FindNextMessageIndex scans forward from the reader's current position for
// the earliest bit offset at which some registered message's header prefix
// occurs, or -1 if none does.
func (e *Engine) FindNextMessageIndex(r *bitio.Reader) int {
	best := -1
	for _, m := range e.messages {
		idx := r.FindNext(m.tmpl.HeaderPrefix)
		if idx >= 0 && (best == -1 || idx < best) {
			best = idx
		}
	}
	return best
}

func (e *Engine) decodeRecord(t reflect.Type, r *bitio.Reader, parent any) (any, error) {
	tm, err := e.templateFor(t)
	if err != nil {
		return nil, err
	}

	prevSelf, hadSelf := e.ctx.Get(expr.ReservedSelf)
	defer e.restoreSelf(prevSelf, hadSelf)
	prevStart, hadStart := e.ctx.Get(reservedMessageStart)
	defer e.restoreMessageStart(prevStart, hadStart)

	recPtr := reflect.New(t)
	rec := recPtr.Elem()
	root := recPtr.Interface()
	e.ctx.Set(expr.ReservedSelf, root)
	e.ctx.Set(reservedMessageStart, r.Position())

	if len(tm.Header.Start) > 0 {
		got, err := r.ReadBytes(len(tm.Header.Start))
		if err != nil {
			return nil, err
		}
		if !bytesEqual(got, tm.Header.Start) {
			return nil, &tmplerr.HeaderMismatchError{Want: tm.Header.Start, Got: got}
		}
	}

	env := e.env()
	for _, bf := range tm.OrderedFields {
		if err := e.runSkips(env, r, nil, bf.Skips, root); err != nil {
			return nil, tmplerr.WithField(t.Name(), bf.FieldName, err)
		}
		if bf.Condition != "" {
			ok, err := e.evaluator.EvalBool(bf.Condition, root, e.ctx)
			if err != nil {
				return nil, tmplerr.WithField(t.Name(), bf.FieldName, err)
			}
			if !ok {
				continue
			}
		}
		c, ok := e.codecs.Get(bf.Binding.Kind)
		if !ok {
			return nil, tmplerr.WithField(t.Name(), bf.FieldName, fmt.Errorf("boxon: no codec registered for kind %q", bf.Binding.Kind))
		}
		v, err := c.Decode(env, r, bf.Binding, bf.Declared, root)
		if err != nil {
			return nil, tmplerr.WithField(t.Name(), bf.FieldName, err)
		}
		bf.Set(rec, v)
		if bf.Binding.Mark != "" {
			e.ctx.Set("mark."+bf.Binding.Mark, r.Position())
		}
	}

	for _, ef := range tm.EvaluatedFields {
		v, err := e.evaluator.Eval(ef.Expression, root, e.ctx)
		if err != nil {
			return nil, tmplerr.WithField(t.Name(), ef.FieldName, err)
		}
		ef.Set(rec, v)
	}

	for _, pf := range tm.PostProcessFields {
		if pf.DecodeExpr == "" {
			continue
		}
		v, err := e.evaluator.Eval(pf.DecodeExpr, root, e.ctx)
		if err != nil {
			return nil, tmplerr.WithField(t.Name(), pf.FieldName, err)
		}
		pf.Set(rec, v)
	}

	if len(tm.Header.End) > 0 {
		got, err := r.ReadBytes(len(tm.Header.End))
		if err != nil {
			return nil, err
		}
		if !bytesEqual(got, tm.Header.End) {
			return nil, &tmplerr.TrailerMismatchError{Want: tm.Header.End, Got: got}
		}
	}

	return rec.Interface(), nil
}

func (e *Engine) encodeRecord(t reflect.Type, w *bitio.Writer, v any) error {
	tm, err := e.templateFor(t)
	if err != nil {
		return err
	}

	prevSelf, hadSelf := e.ctx.Get(expr.ReservedSelf)
	defer e.restoreSelf(prevSelf, hadSelf)
	prevStart, hadStart := e.ctx.Get(reservedMessageStart)
	defer e.restoreMessageStart(prevStart, hadStart)

	recPtr := reflect.New(t)
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	recPtr.Elem().Set(rv)
	rec := recPtr.Elem()
	root := recPtr.Interface()
	e.ctx.Set(expr.ReservedSelf, root)
	e.ctx.Set(reservedMessageStart, w.Position())

	for _, pf := range tm.PostProcessFields {
		if pf.EncodeExpr == "" {
			continue
		}
		nv, err := e.evaluator.Eval(pf.EncodeExpr, root, e.ctx)
		if err != nil {
			return tmplerr.WithField(t.Name(), pf.FieldName, err)
		}
		pf.Set(rec, nv)
	}

	if len(tm.Header.Start) > 0 {
		if err := w.WriteBytes(tm.Header.Start); err != nil {
			return err
		}
	}

	env := e.env()
	for _, bf := range tm.OrderedFields {
		if err := e.runSkips(env, nil, w, bf.Skips, root); err != nil {
			return tmplerr.WithField(t.Name(), bf.FieldName, err)
		}
		if bf.Condition != "" {
			ok, err := e.evaluator.EvalBool(bf.Condition, root, e.ctx)
			if err != nil {
				return tmplerr.WithField(t.Name(), bf.FieldName, err)
			}
			if !ok {
				continue
			}
		}
		c, ok := e.codecs.Get(bf.Binding.Kind)
		if !ok {
			return tmplerr.WithField(t.Name(), bf.FieldName, fmt.Errorf("boxon: no codec registered for kind %q", bf.Binding.Kind))
		}
		fv := bf.Get(rec)
		if err := c.Encode(env, w, bf.Binding, bf.Declared, fv, root); err != nil {
			return tmplerr.WithField(t.Name(), bf.FieldName, err)
		}
		if bf.Binding.Mark != "" {
			e.ctx.Set("mark."+bf.Binding.Mark, w.Position())
		}
	}

	if len(tm.Header.End) > 0 {
		if err := w.WriteBytes(tm.Header.End); err != nil {
			return err
		}
	}
	return nil
}

// runSkips executes the skip bindings preceding a bound field, against
// either a reader (decode) or a writer (encode) — exactly one is non-nil.
func (e *Engine) runSkips(env *codec.Env, r *bitio.Reader, w *bitio.Writer, skips []tmpl.Binding, root any) error {
	sc, _ := e.codecs.Get(tmpl.KindSkip)
	for _, skip := range skips {
		if r != nil {
			if _, err := sc.Decode(env, r, skip, nil, root); err != nil {
				return err
			}
		} else {
			if err := sc.Encode(env, w, skip, nil, nil, root); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) restoreSelf(prevSelf any, hadSelf bool) {
	if hadSelf {
		e.ctx.Set(expr.ReservedSelf, prevSelf)
	} else {
		e.ctx.Delete(expr.ReservedSelf)
	}
}

// reservedMessageStart mirrors internal/codec's unexported key of the same
// name: the bit offset the current record started at, consulted by the
// checksum codec as the default start of its covered range. Engine and
// codec cannot share the literal via an import (codec must not depend on
// this package), so the string itself is the contract between them.
const reservedMessageStart = "mark.messageStart"

func (e *Engine) restoreMessageStart(prevStart any, hadStart bool) {
	if hadStart {
		e.ctx.Set(reservedMessageStart, prevStart)
	} else {
		e.ctx.Delete(reservedMessageStart)
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Decode reads one T from r using e's registered Template for T, wrapping
// any failure with the message's starting bit offset and the raw bytes
// spanned since that point.
func Decode[T any](e *Engine, r *bitio.Reader) (*T, error) {
	var zero T
	t := reflect.TypeOf(zero)
	startBit := r.Position()
	mark := r.Mark()
	v, err := e.decodeRecord(t, r, nil)
	if err != nil {
		return nil, tmplerr.WithOffset(startBit, r.Since(mark), err)
	}
	r.Unmark(mark)
	rec, ok := v.(T)
	if !ok {
		return nil, fmt.Errorf("boxon: decoded value type mismatch: got %T", v)
	}
	return &rec, nil
}

// Encode writes *v to w using e's registered Template for T.
func Encode[T any](e *Engine, w *bitio.Writer, v *T) error {
	t := reflect.TypeOf(*v)
	return e.encodeRecord(t, w, *v)
}

// RegisterMessage is generic sugar over Engine.Register for the common case
// of registering a concrete message type T.
func RegisterMessage[T any](e *Engine) (*tmpl.Template, error) {
	var zero T
	return e.Register(reflect.TypeOf(zero))
}
