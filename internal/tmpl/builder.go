package tmpl

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/mtrevisan/boxon/internal/bitio"
	"github.com/mtrevisan/boxon/internal/charset"
	"github.com/mtrevisan/boxon/internal/convert"
	"github.com/mtrevisan/boxon/internal/tmplerr"
)

// TagName is the struct tag key the builder reflects on.
const TagName = "boxon"

// TypeResolver resolves a schema type name (as written in a selectFrom /
// object "type=" tag value) to the reflect.Type registered under that
// name. It is supplied by the Engine, which owns the name -> type mapping
// assembled as templates are registered: every type referenced by an
// Object/List alternative must exist or be void.
type TypeResolver func(name string) (reflect.Type, bool)

// CodecChecker reports whether a binding kind has a registered codec. It
// is implemented by internal/codec.Registry; tmpl depends only on this
// narrow interface to avoid an import cycle (codec already depends on
// tmpl for Kind/Binding).
type CodecChecker interface {
	HasCodec(Kind) bool
}

// Builder reflects a record type's schema into a Template.
type Builder struct {
	Codecs     CodecChecker
	Converters *convert.ConverterRegistry
	Validators *convert.ValidatorRegistry
	Resolve    TypeResolver
}

// NewBuilder returns a Builder wired to the given collaborators.
func NewBuilder(codecs CodecChecker, converters *convert.ConverterRegistry, validators *convert.ValidatorRegistry, resolve TypeResolver) *Builder {
	return &Builder{Codecs: codecs, Converters: converters, Validators: validators, Resolve: resolve}
}

// Build walks t's declaration-order fields and produces an immutable
// Template. t must be a struct type.
func (b *Builder) Build(t reflect.Type) (*Template, error) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, &tmplerr.SchemaError{Type: t.String(), Reason: "target type must be a struct"}
	}

	tmplOut := &Template{TargetType: t}

	if hp, ok := headerProviderOf(t); ok {
		tmplOut.Header = hp.BoxonHeader()
		tmplOut.HeaderPrefix = headerPrefix(tmplOut.Header)
	}

	var pendingSkips []Binding

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tagStr, ok := field.Tag.Lookup(TagName)
		if !ok {
			continue
		}
		rt := parseTag(tagStr)

		if rt.has("evaluated") {
			tmplOut.EvaluatedFields = append(tmplOut.EvaluatedFields, &EvaluatedField{
				FieldIndex: []int{i},
				FieldName:  field.Name,
				Expression: rt.get("evaluated"),
			})
			continue
		}
		if rt.has("postDecode") || rt.has("postEncode") {
			tmplOut.PostProcessFields = append(tmplOut.PostProcessFields, &PostProcessField{
				FieldIndex: []int{i},
				FieldName:  field.Name,
				DecodeExpr: rt.get("postDecode"),
				EncodeExpr: rt.get("postEncode"),
			})
			continue
		}

		kindStr := rt.get("kind")
		if kindStr == "" {
			return nil, &tmplerr.SchemaError{Type: t.String(), Field: field.Name, Reason: "missing kind"}
		}
		kind := Kind(kindStr)
		if !b.Codecs.HasCodec(kind) {
			return nil, &tmplerr.SchemaError{Type: t.String(), Field: field.Name, Reason: fmt.Sprintf("no codec registered for kind %q", kind)}
		}

		binding, err := b.buildBinding(t, field, kind, rt)
		if err != nil {
			return nil, err
		}
		if !rt.has("byteOrder") {
			binding.ByteOrder = tmplOut.Header.ByteOrder
		}

		if kind == KindSkip {
			pendingSkips = append(pendingSkips, binding)
			continue
		}

		if err := b.validateConverterValidator(t, field, binding); err != nil {
			return nil, err
		}
		if err := b.validateType(t, field, binding); err != nil {
			return nil, err
		}

		bf := &BoundField{
			FieldIndex: []int{i},
			FieldName:  field.Name,
			Declared:   field.Type,
			Binding:    binding,
			Skips:      pendingSkips,
			Condition:  rt.get("condition"),
		}
		pendingSkips = nil
		tmplOut.OrderedFields = append(tmplOut.OrderedFields, bf)
	}

	return tmplOut, nil
}

func headerProviderOf(t reflect.Type) (HeaderProvider, bool) {
	zero := reflect.Zero(t).Interface()
	hp, ok := zero.(HeaderProvider)
	if ok {
		return hp, true
	}
	ptr := reflect.New(t).Interface()
	hp, ok = ptr.(HeaderProvider)
	return hp, ok
}

func headerPrefix(h Header) []byte {
	if len(h.Start) > 0 {
		return h.Start
	}
	return nil
}

func parseByteOrder(s string, def bitio.ByteOrder) bitio.ByteOrder {
	switch strings.ToLower(s) {
	case "big":
		return bitio.BigEndian
	case "little":
		return bitio.LittleEndian
	default:
		return def
	}
}

func (b *Builder) buildBinding(t reflect.Type, field reflect.StructField, kind Kind, rt rawTag) (Binding, error) {
	bind := Binding{
		Kind:      kind,
		Size:      rt.get("size"),
		ByteOrder: parseByteOrder(rt.get("byteOrder"), bitio.BigEndian),
		Charset:   rt.get("charset"),
		Condition: rt.get("condition"),
		Converter: rt.getDefault("converter", convert.IdentityTag),
		Validator: rt.get("validator"),
		Mark:      rt.get("mark"),
	}

	switch kind {
	case KindByteArrayTerminated, KindStringTerminated, KindSkip:
		bind.Terminator = rt.getByte("terminator", 0)
		bind.ConsumeTerminator = rt.getBool("consumeTerminator")
	}

	switch kind {
	case KindString, KindStringTerminated:
		if _, err := charset.Lookup(bind.Charset); err != nil {
			return bind, &tmplerr.SchemaError{Type: t.String(), Field: field.Name, Reason: err.Error()}
		}
	}

	if rt.has("selectConverterFrom") {
		alts, err := parseConverterAlternatives(rt.get("selectConverterFrom"))
		if err != nil {
			return bind, &tmplerr.SchemaError{Type: t.String(), Field: field.Name, Reason: err.Error()}
		}
		bind.SelectConverterFrom = alts
	}

	switch kind {
	case KindObject:
		objType, selectFrom, err := b.resolveObjectType(t, field, rt)
		if err != nil {
			return bind, err
		}
		bind.ObjectType = objType
		bind.SelectFrom = selectFrom

	case KindList:
		elemType, err := b.resolveElementType(t, field, rt)
		if err != nil {
			return bind, err
		}
		bind.ElementType = elemType
		if rt.has("terminatorObject") {
			tt, ok := b.Resolve(rt.get("terminatorObject"))
			if !ok {
				return bind, &tmplerr.SchemaError{Type: t.String(), Field: field.Name, Reason: "unknown terminatorObject type " + rt.get("terminatorObject")}
			}
			bind.TerminatorObject = tt
		}
		if rt.has("selectFrom") || rt.has("alternatives") {
			_, sf, err := b.resolveObjectType(t, field, rt)
			if err != nil {
				return bind, err
			}
			bind.SelectFrom = sf
		}

	case KindChecksum:
		bind.Algorithm = rt.get("algorithm")
		bind.StartMark = rt.get("startMark")
		bind.EndMark = rt.get("endMark")
	}

	return bind, nil
}

func (b *Builder) resolveObjectType(t reflect.Type, field reflect.StructField, rt rawTag) (reflect.Type, *SelectFrom, error) {
	if typeName := rt.get("type"); typeName != "" {
		rtype, ok := b.Resolve(typeName)
		if !ok {
			return nil, nil, &tmplerr.SchemaError{Type: t.String(), Field: field.Name, Reason: "unknown type " + typeName}
		}
		return rtype, nil, nil
	}
	if rt.has("alternatives") || rt.has("conditions") || rt.has("selectFrom") {
		sf := &SelectFrom{
			PrefixSize: rt.getInt("selectFrom.prefixSize", 0),
			ByteOrder:  parseByteOrder(rt.get("selectFrom.byteOrder"), bitio.BigEndian),
		}
		if alts := rt.get("alternatives"); alts != "" {
			for _, entry := range strings.Split(alts, ";") {
				entry = strings.TrimSpace(entry)
				if entry == "" {
					continue
				}
				parts := strings.SplitN(entry, ":", 2)
				if len(parts) != 2 {
					return nil, nil, &tmplerr.SchemaError{Type: t.String(), Field: field.Name, Reason: "malformed alternative " + entry}
				}
				prefixVal, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 0, 64)
				if err != nil {
					return nil, nil, &tmplerr.SchemaError{Type: t.String(), Field: field.Name, Reason: "malformed alternative prefix " + parts[0]}
				}
				rtype, ok := b.Resolve(strings.TrimSpace(parts[1]))
				if !ok {
					return nil, nil, &tmplerr.SchemaError{Type: t.String(), Field: field.Name, Reason: "unknown alternative type " + parts[1]}
				}
				sf.Alternatives = append(sf.Alternatives, Alternative{Prefix: prefixVal, HasPrefix: true, Type: rtype})
			}
		}
		if conds := rt.get("conditions"); conds != "" {
			for _, entry := range strings.Split(conds, ";") {
				entry = strings.TrimSpace(entry)
				if entry == "" {
					continue
				}
				parts := strings.SplitN(entry, ":", 2)
				if len(parts) != 2 {
					return nil, nil, &tmplerr.SchemaError{Type: t.String(), Field: field.Name, Reason: "malformed condition " + entry}
				}
				rtype, ok := b.Resolve(strings.TrimSpace(parts[1]))
				if !ok {
					return nil, nil, &tmplerr.SchemaError{Type: t.String(), Field: field.Name, Reason: "unknown alternative type " + parts[1]}
				}
				sf.Alternatives = append(sf.Alternatives, Alternative{Condition: strings.TrimSpace(parts[0]), Type: rtype})
			}
		}
		if def := rt.get("default"); def != "" {
			rtype, ok := b.Resolve(def)
			if !ok {
				return nil, nil, &tmplerr.SchemaError{Type: t.String(), Field: field.Name, Reason: "unknown default type " + def}
			}
			sf.DefaultType = rtype
			sf.HasDefault = true
		}
		return nil, sf, nil
	}
	// Fall back to the field's own declared Go type: the common case of a
	// single, statically known nested record type.
	ft := field.Type
	for ft.Kind() == reflect.Ptr {
		ft = ft.Elem()
	}
	return ft, nil, nil
}

func (b *Builder) resolveElementType(t reflect.Type, field reflect.StructField, rt rawTag) (reflect.Type, error) {
	if typeName := rt.get("type"); typeName != "" {
		rtype, ok := b.Resolve(typeName)
		if !ok {
			return nil, &tmplerr.SchemaError{Type: t.String(), Field: field.Name, Reason: "unknown element type " + typeName}
		}
		return rtype, nil
	}
	if field.Type.Kind() == reflect.Slice {
		elem := field.Type.Elem()
		for elem.Kind() == reflect.Ptr {
			elem = elem.Elem()
		}
		return elem, nil
	}
	return nil, &tmplerr.SchemaError{Type: t.String(), Field: field.Name, Reason: "list field must be a slice or declare an explicit element type"}
}

func parseConverterAlternatives(s string) ([]convert.ConverterAlternative, error) {
	var out []convert.ConverterAlternative
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed converter alternative %q", entry)
		}
		out = append(out, convert.ConverterAlternative{Condition: strings.TrimSpace(parts[0]), Tag: strings.TrimSpace(parts[1])})
	}
	return out, nil
}

func (rt rawTag) getInt(key string, def int) int {
	v, ok := rt.values[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func (b *Builder) validateConverterValidator(t reflect.Type, field reflect.StructField, bind Binding) error {
	if bind.Converter != "" {
		if _, ok := b.Converters.Get(bind.Converter); !ok {
			return &tmplerr.SchemaError{Type: t.String(), Field: field.Name, Reason: "unknown converter tag " + bind.Converter}
		}
	}
	if bind.Validator != "" {
		if _, ok := b.Validators.Get(bind.Validator); !ok {
			return &tmplerr.SchemaError{Type: t.String(), Field: field.Name, Reason: "unknown validator tag " + bind.Validator}
		}
	}
	for _, alt := range bind.SelectConverterFrom {
		if _, ok := b.Converters.Get(alt.Tag); !ok {
			return &tmplerr.SchemaError{Type: t.String(), Field: field.Name, Reason: "unknown converter tag " + alt.Tag}
		}
	}
	return nil
}

// validateType checks a declared field type against its binding: direct
// assignment, List element-type extraction, or primitive/wrapper
// equivalence.
func (b *Builder) validateType(t reflect.Type, field reflect.StructField, bind Binding) error {
	switch bind.Kind {
	case KindObject:
		if bind.ObjectType == nil {
			return nil // resolved dynamically via SelectFrom; nothing static to check
		}
		ft := field.Type
		for ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}
		if ft != bind.ObjectType && !bind.ObjectType.ConvertibleTo(ft) {
			return &tmplerr.SchemaError{Type: t.String(), Field: field.Name, Reason: fmt.Sprintf("declared type %s incompatible with object type %s", ft, bind.ObjectType)}
		}
	case KindList:
		if field.Type.Kind() != reflect.Slice {
			return &tmplerr.SchemaError{Type: t.String(), Field: field.Name, Reason: "list binding requires a slice-typed field"}
		}
		elem := field.Type.Elem()
		for elem.Kind() == reflect.Ptr {
			elem = elem.Elem()
		}
		if bind.ElementType != nil && elem != bind.ElementType && !bind.ElementType.ConvertibleTo(elem) {
			return &tmplerr.SchemaError{Type: t.String(), Field: field.Name, Reason: fmt.Sprintf("slice element type %s incompatible with list element type %s", elem, bind.ElementType)}
		}
	}
	return nil
}
