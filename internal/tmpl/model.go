// Package tmpl implements the template model and builder: reflecting a
// record type's declarative schema (Go struct tags) into an ordered,
// resolved Template. Templates are built once, at registration time, so
// per-message decode/encode never re-walks reflection metadata beyond a
// cached field-index lookup.
package tmpl

import (
	"reflect"

	"github.com/mtrevisan/boxon/internal/bitio"
	"github.com/mtrevisan/boxon/internal/convert"
)

// Kind is the stable tag identifying a binding's codec.
type Kind string

const (
	KindInteger             Kind = "integer"
	KindByteArray           Kind = "byteArray"
	KindByteArrayTerminated Kind = "byteArrayTerminated"
	KindString              Kind = "string"
	KindStringTerminated    Kind = "stringTerminated"
	KindObject              Kind = "object"
	KindList                Kind = "list"
	KindChecksum            Kind = "checksum"
	KindSkip                Kind = "skip"
)

// Alternative is one entry of an Object/List "selectFrom" set: a concrete
// type selectable by prefix value and/or a boolean condition.
type Alternative struct {
	Condition string
	Prefix    int64
	HasPrefix bool
	Type      reflect.Type
}

// SelectFrom describes the alternatives mechanism shared by Object and
// List bindings.
type SelectFrom struct {
	PrefixSize    int // bits; 0 means no prefix is read
	ByteOrder     bitio.ByteOrder
	Alternatives  []Alternative
	DefaultType   reflect.Type // nil + HasDefault=false is the "void" marker
	HasDefault    bool
}

// Binding is the value-typed description of a single field-level
// annotation. It is immutable after construction.
type Binding struct {
	Kind Kind

	// integer / byteArray / string / skip: size expression (bits for
	// integer/skip, bytes for byteArray/string).
	Size string

	ByteOrder bitio.ByteOrder

	// string / stringTerminated charset name.
	Charset string

	// byteArrayTerminated / stringTerminated / skip.
	Terminator        byte
	ConsumeTerminator bool

	// field-level condition; empty means unconditional.
	Condition string

	// Mark names a stream-position bookmark recorded by the engine right
	// after this field is decoded/encoded, for later reference by a
	// checksum binding's StartMark/EndMark.
	Mark string

	Converter string
	Validator string

	SelectConverterFrom []convert.ConverterAlternative

	// object: static type, or SelectFrom for alternatives.
	ObjectType reflect.Type
	SelectFrom *SelectFrom

	// list: element type (possibly via SelectFrom), bound by Size
	// (count expression) or by TerminatorObject (sentinel element type).
	ElementType      reflect.Type
	TerminatorObject reflect.Type

	// checksum.
	Algorithm string
	StartMark string
	EndMark   string
}

// BoundField pairs a record field's reflective accessor with its resolved
// Binding and any skip bindings that precede it on the wire.
type BoundField struct {
	FieldIndex []int
	FieldName  string
	Declared   reflect.Type
	Binding    Binding
	Skips      []Binding
	Condition  string
}

// Get reads the field's current value out of record (a reflect.Value
// addressing the target struct, not a pointer to it).
func (bf *BoundField) Get(record reflect.Value) any {
	return record.FieldByIndex(bf.FieldIndex).Interface()
}

// Set writes v into the field addressed by bf within record.
func (bf *BoundField) Set(record reflect.Value, v any) {
	fv := record.FieldByIndex(bf.FieldIndex)
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		fv.Set(reflect.Zero(fv.Type()))
		return
	}
	if rv.Type().ConvertibleTo(fv.Type()) {
		fv.Set(rv.Convert(fv.Type()))
		return
	}
	fv.Set(rv)
}

// EvaluatedField is a field whose value is computed by expression
// evaluation after decode completes / before encode begins, rather than
// read from or written to the wire.
type EvaluatedField struct {
	FieldIndex []int
	FieldName  string
	Expression string
}

func (ef *EvaluatedField) Set(record reflect.Value, v any) {
	fv := record.FieldByIndex(ef.FieldIndex)
	rv := reflect.ValueOf(v)
	if rv.IsValid() && rv.Type().ConvertibleTo(fv.Type()) {
		fv.Set(rv.Convert(fv.Type()))
	}
}

// PostProcessField is a single-direction adjustment whose expression
// differs per direction.
type PostProcessField struct {
	FieldIndex []int
	FieldName  string
	DecodeExpr string
	EncodeExpr string
}

func (pf *PostProcessField) Set(record reflect.Value, v any) {
	fv := record.FieldByIndex(pf.FieldIndex)
	rv := reflect.ValueOf(v)
	if rv.IsValid() && rv.Type().ConvertibleTo(fv.Type()) {
		fv.Set(rv.Convert(fv.Type()))
	}
}

// Header describes message framing: start/end marker bytes (raw bytes,
// matched and written verbatim), a charset name that is carried along but
// not consulted by the builder or engine, and a default byte order for the
// message's fields that declare no byteOrder of their own.
type Header struct {
	Start     []byte
	End       []byte
	Charset   string
	ByteOrder bitio.ByteOrder
}

// HeaderProvider is implemented by record types that declare message
// framing. It is the Go-idiomatic rendition of a class-level annotation:
// a compiled method the builder calls once, at registration time.
type HeaderProvider interface {
	BoxonHeader() Header
}

// Template is the compiled, immutable description of how TargetType maps
// to wire bytes. One Template exists per registered record type
// and may be freely shared across concurrent decode/encode calls.
type Template struct {
	TargetType        reflect.Type
	Header            Header
	OrderedFields     []*BoundField
	EvaluatedFields   []*EvaluatedField
	PostProcessFields []*PostProcessField
	HeaderPrefix      []byte
}
