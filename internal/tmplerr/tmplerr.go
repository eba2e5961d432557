// Package tmplerr defines the template-engine error taxonomy as concrete
// Go types, shared by internal/tmpl, internal/codec, and the top-level
// boxon package so that none of them needs to import the others just to
// construct or match an error.
package tmplerr

import "fmt"

// SchemaError reports a fatal, template-build-time defect: a missing
// codec, an unregistered converter/validator tag, or an incompatible
// declared type.
type SchemaError struct {
	Type   string
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("schema error in %s: %s", e.Type, e.Reason)
	}
	return fmt.Sprintf("schema error in %s.%s: %s", e.Type, e.Field, e.Reason)
}

// AmbiguousPrefixError reports two sibling templates in a registry whose
// header prefixes cannot be distinguished by a fixed-length prefix read.
type AmbiguousPrefixError struct {
	TypeA, TypeB string
	Prefix       []byte
}

func (e *AmbiguousPrefixError) Error() string {
	return fmt.Sprintf("ambiguous header prefix %x shared by %s and %s", e.Prefix, e.TypeA, e.TypeB)
}

// FieldError annotates a recoverable, per-message error with the record
// type and field name in which it occurred: any recoverable error aborts
// the current field and is annotated with {recordType, fieldName} before
// bubbling to the engine.
type FieldError struct {
	RecordType string
	FieldName  string
	Err        error
}

func (e *FieldError) Error() string {
	if e.FieldName == "" {
		return fmt.Sprintf("%s: %v", e.RecordType, e.Err)
	}
	return fmt.Sprintf("%s.%s: %v", e.RecordType, e.FieldName, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// WithField wraps err, if non-nil, in a *FieldError. It is a no-op on nil.
func WithField(recordType, fieldName string, err error) error {
	if err == nil {
		return nil
	}
	return &FieldError{RecordType: recordType, FieldName: fieldName, Err: err}
}

// OffsetError annotates a message-level decode failure with the bit
// position at which the message started and the raw bytes spanned by the
// failed attempt.
type OffsetError struct {
	BitOffset int
	Payload   []byte
	Err       error
}

func (e *OffsetError) Error() string {
	return fmt.Sprintf("at bit offset %d: %v", e.BitOffset, e.Err)
}

func (e *OffsetError) Unwrap() error { return e.Err }

// WithOffset wraps err, if non-nil, in an *OffsetError.
func WithOffset(bitOffset int, payload []byte, err error) error {
	if err == nil {
		return nil
	}
	return &OffsetError{BitOffset: bitOffset, Payload: payload, Err: err}
}

// HeaderMismatchError signals that a message's declared start-of-header
// bytes did not match the bytes on the wire.
type HeaderMismatchError struct {
	Want, Got []byte
}

func (e *HeaderMismatchError) Error() string {
	return fmt.Sprintf("header mismatch: want %x, got %x", e.Want, e.Got)
}

// TrailerMismatchError signals that a message's declared end-of-header
// bytes did not match the bytes on the wire.
type TrailerMismatchError struct {
	Want, Got []byte
}

func (e *TrailerMismatchError) Error() string {
	return fmt.Sprintf("trailer mismatch: want %x, got %x", e.Want, e.Got)
}

// UnknownMessageError signals that no registered template's header prefix
// matched the bytes at the current reader position.
type UnknownMessageError struct {
	Prefix []byte
}

func (e *UnknownMessageError) Error() string {
	return fmt.Sprintf("unknown message, prefix %x matches no registered template", e.Prefix)
}

// ConversionError signals that a converter's Decode/Encode function
// returned an error.
type ConversionError struct {
	Tag   string
	Value any
	Err   error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("converter %q failed on value %v: %v", e.Tag, e.Value, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// ValidationError signals that a validator rejected a value, carrying the
// rejected value. Computed is populated only by the checksum codec, which
// has a second value (the value it computed off the wire bytes) worth
// reporting alongside the one actually read; it is left zero-valued by the
// generic converter/validator path.
type ValidationError struct {
	Tag      string
	Value    any
	Computed any
}

func (e *ValidationError) Error() string {
	if e.Computed != nil {
		return fmt.Sprintf("validator %q rejected value %v (computed %v)", e.Tag, e.Value, e.Computed)
	}
	return fmt.Sprintf("validator %q rejected value %v", e.Tag, e.Value)
}

// ExpressionError signals that an expression failed to parse or evaluate.
type ExpressionError struct {
	Expr string
	Err  error
}

func (e *ExpressionError) Error() string {
	return fmt.Sprintf("expression %q: %v", e.Expr, e.Err)
}

func (e *ExpressionError) Unwrap() error { return e.Err }

// RemainingBytesError is the driver-level diagnostic appended after a
// successful parse loop when bytes remain unconsumed. It is non-fatal: it
// never aborts a prior successful Response.
type RemainingBytesError struct {
	Count int
}

func (e *RemainingBytesError) Error() string {
	return fmt.Sprintf("%d trailing bytes remain unparsed", e.Count)
}
