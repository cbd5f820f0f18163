package errors

import (
	"fmt"
	"strconv"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseEncode    Phase = "encode"    // Go value to wire text
	PhaseDecode    Phase = "decode"    // wire text to Go value
	PhaseForeign   Phase = "foreign"   // call into the foreign library
	PhaseLifecycle Phase = "lifecycle" // container ownership
	PhaseLoad      Phase = "load"      // library loading
	PhaseConfig    Phase = "config"    // configuration
)

// Kind categorizes the error
type Kind string

const (
	KindEncoding        Kind = "encoding"
	KindDecode          Kind = "decode"
	KindForeignCall     Kind = "foreign_call"
	KindUseAfterRelease Kind = "use_after_release"
	KindNotFound        Kind = "not_found"
	KindSignature       Kind = "signature"
	KindUnsupported     Kind = "unsupported"
	KindInvalidInput    Kind = "invalid_input"
	KindInstantiation   Kind = "instantiation"
	KindInvalidConfig   Kind = "invalid_config"
)

// Kind sentinels for errors.Is. They carry no phase, so they match any
// error of the same kind.
var (
	ErrEncoding        = &Error{Kind: KindEncoding}
	ErrDecode          = &Error{Kind: KindDecode}
	ErrForeignCall     = &Error{Kind: KindForeignCall}
	ErrUseAfterRelease = &Error{Kind: KindUseAfterRelease}
)

// Error is the structured error type used throughout jsonffi
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Op     string
	Detail string
	Handle uint64
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Op != "" {
		b.WriteString(" in ")
		b.WriteString(e.Op)
	}

	if e.Handle != 0 {
		b.WriteString(" (handle 0x")
		b.WriteString(strconv.FormatUint(e.Handle, 16))
		b.WriteByte(')')
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target without a phase matches on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return e.Kind == t.Kind
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Op sets the foreign entry point or host operation name
func (b *Builder) Op(op string) *Builder {
	b.err.Op = op
	return b
}

// Handle sets the container handle involved
func (b *Builder) Handle(h uint64) *Builder {
	b.err.Handle = h
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Encoding creates an error for a value that cannot be serialized
func Encoding(goType string, cause error) *Error {
	return &Error{
		Phase:  PhaseEncode,
		Kind:   KindEncoding,
		Detail: fmt.Sprintf("cannot encode %s", goType),
		Cause:  cause,
	}
}

// EmbeddedNUL creates an encoding error for text that contains a terminator
func EmbeddedNUL(offset int) *Error {
	return &Error{
		Phase:  PhaseEncode,
		Kind:   KindEncoding,
		Detail: fmt.Sprintf("text contains NUL at offset %d", offset),
		Value:  offset,
	}
}

// Decode creates an error for bytes that are not valid JSON text
func Decode(cause error, data []byte) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindDecode,
		Detail: "invalid JSON text " + preview(data),
		Cause:  cause,
	}
}

// InvalidUTF8 creates a decode error for bytes that are not UTF-8 text
func InvalidUTF8(data []byte) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindDecode,
		Detail: fmt.Sprintf("invalid UTF-8 sequence: %x", previewBytes(data)),
	}
}

// ForeignCall wraps a failure reported by a foreign entry point
func ForeignCall(op string, h uint64, cause error) *Error {
	return &Error{
		Phase:  PhaseForeign,
		Kind:   KindForeignCall,
		Op:     op,
		Handle: h,
		Cause:  cause,
	}
}

// Status creates an error for a negative status code from a foreign call
func Status(op string, h uint64, status int32) *Error {
	return &Error{
		Phase:  PhaseForeign,
		Kind:   KindForeignCall,
		Op:     op,
		Handle: h,
		Detail: fmt.Sprintf("status %d", status),
		Value:  status,
	}
}

// NullHandle creates an error for a foreign call that returned no container
func NullHandle(op string) *Error {
	return &Error{
		Phase:  PhaseForeign,
		Kind:   KindForeignCall,
		Op:     op,
		Detail: "null handle",
	}
}

// ShortWrite creates an error for a populate call that did not write the
// reported length
func ShortWrite(op string, h uint64, want, got uint32) *Error {
	return &Error{
		Phase:  PhaseForeign,
		Kind:   KindForeignCall,
		Op:     op,
		Handle: h,
		Detail: fmt.Sprintf("wrote %d bytes, length reported %d", got, want),
		Value:  got,
	}
}

// UseAfterRelease creates the error raised when a released container is used
func UseAfterRelease(op string, h uint64) *Error {
	return &Error{
		Phase:  PhaseLifecycle,
		Kind:   KindUseAfterRelease,
		Op:     op,
		Handle: h,
		Detail: "container already released",
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Signature creates an error for an entry point with the wrong core signature
func Signature(name, want, got string) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindSignature,
		Op:     name,
		Detail: fmt.Sprintf("expected %s, got %s", want, got),
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInstantiation,
		Detail: "instantiate library",
		Cause:  cause,
	}
}

// Load creates a library loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInstantiation,
		Detail: detail,
		Cause:  cause,
	}
}

// InvalidConfig creates a configuration error
func InvalidConfig(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseConfig,
		Kind:   KindInvalidConfig,
		Detail: detail,
		Cause:  cause,
	}
}

// MissingExportsError is returned when a foreign library lacks entry points
type MissingExportsError struct {
	Module  string
	Exports []string
}

// NewMissingExportsError creates an error listing absent entry points
func NewMissingExportsError(module string, exports []string) *MissingExportsError {
	return &MissingExportsError{
		Module:  module,
		Exports: exports,
	}
}

func (e *MissingExportsError) Error() string {
	if len(e.Exports) == 0 {
		return "[load] not_found: no exports specified"
	}

	var b strings.Builder
	name := e.Module
	if name == "" {
		name = "library"
	}
	b.WriteString(fmt.Sprintf("%s is missing %d entry point(s):", name, len(e.Exports)))
	for _, exp := range e.Exports {
		b.WriteString("\n  - ")
		b.WriteString(exp)
	}
	return b.String()
}

// Is reports whether target matches this error type
func (e *MissingExportsError) Is(target error) bool {
	_, ok := target.(*MissingExportsError)
	return ok
}

func previewBytes(data []byte) []byte {
	if len(data) > 32 {
		return data[:32]
	}
	return data
}

func preview(data []byte) string {
	if len(data) == 0 {
		return "(empty)"
	}
	p := previewBytes(data)
	if len(p) < len(data) {
		return strconv.Quote(string(p)) + "..."
	}
	return strconv.Quote(string(p))
}
