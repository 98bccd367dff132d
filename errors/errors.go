package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseValidate   Phase = "validate"   // argument and shape checks before engine calls
	PhaseEngine     Phase = "engine"     // native return codes and traps
	PhaseFilesystem Phase = "filesystem" // virtual file and descriptor calls
	PhaseMarshal    Phase = "marshal"    // slot transfers across linear memory
	PhaseView       Phase = "view"       // ndarray construction and packing
	PhaseDispatch   Phase = "dispatch"   // background task transport
	PhaseConstruct  Phase = "construct"  // factory-only construction
	PhaseLoad       Phase = "load"       // module compile and instantiate
	PhaseConfig     Phase = "config"     // configuration loading
)

// Kind categorizes the error
type Kind string

const (
	KindShapeMismatch      Kind = "shape_mismatch"
	KindInvalidParameter   Kind = "invalid_parameter"
	KindBadDescriptor      Kind = "bad_descriptor"
	KindInvalidArgument    Kind = "invalid_argument"
	KindDecode             Kind = "decode"
	KindEncode             Kind = "encode"
	KindExit               Kind = "exit"
	KindIllegalConstructor Kind = "illegal_constructor"
	KindNotFound           Kind = "not_found"
	KindOutOfBounds        Kind = "out_of_bounds"
	KindUnsupported        Kind = "unsupported"
	KindTransport          Kind = "transport"
	KindInvalidSlot        Kind = "invalid_slot"
	KindInvalidInput       Kind = "invalid_input"
	KindInstantiation      Kind = "instantiation"
	KindClosed             Kind = "closed"
)

// Error is the structured error type used throughout the module
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	DType  string
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.DType != "" {
		b.WriteString(": dtype ")
		b.WriteString(e.DType)
	}

	if e.Detail != "" {
		if e.DType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
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

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
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

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// DType sets the element type name
func (b *Builder) DType(t string) *Builder {
	b.err.DType = t
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

// ShapeMismatch creates a shape validation error raised before any engine call
func ShapeMismatch(path []string, detail string, args ...any) *Error {
	return &Error{
		Phase:  PhaseValidate,
		Kind:   KindShapeMismatch,
		Path:   path,
		Detail: fmt.Sprintf(detail, args...),
	}
}

// InvalidParameter creates the generic error for a negative native return code
func InvalidParameter(export string, code int32) *Error {
	return &Error{
		Phase:  PhaseEngine,
		Kind:   KindInvalidParameter,
		Path:   []string{export},
		Detail: fmt.Sprintf("invalid parameter (code %d)", code),
		Value:  code,
	}
}

// IllegalConstructor creates an error for values not produced by their factory
func IllegalConstructor(typeName string) *Error {
	return &Error{
		Phase:  PhaseConstruct,
		Kind:   KindIllegalConstructor,
		Detail: fmt.Sprintf("illegal constructor: %s must be created by its factory", typeName),
	}
}

// BadDescriptor creates an error for a descriptor absent from the table
func BadDescriptor(fd uint32) *Error {
	return &Error{
		Phase:  PhaseFilesystem,
		Kind:   KindBadDescriptor,
		Detail: fmt.Sprintf("bad file descriptor %d", fd),
		Value:  fd,
	}
}

// InvalidArgument creates a filesystem invalid-argument error
func InvalidArgument(detail string, args ...any) *Error {
	return &Error{
		Phase:  PhaseFilesystem,
		Kind:   KindInvalidArgument,
		Detail: fmt.Sprintf(detail, args...),
	}
}

// Decode creates a container decode failure carrying the engine's diagnostic text
func Decode(diagnostic string) *Error {
	if diagnostic == "" {
		diagnostic = "unknown error"
	}
	return &Error{
		Phase:  PhaseFilesystem,
		Kind:   KindDecode,
		Detail: diagnostic,
	}
}

// Encode creates a container encode failure carrying the engine's diagnostic text
func Encode(diagnostic string) *Error {
	if diagnostic == "" {
		diagnostic = "unknown error"
	}
	return &Error{
		Phase:  PhaseFilesystem,
		Kind:   KindEncode,
		Detail: diagnostic,
	}
}

// Exit creates the fatal error raised when the engine calls proc_exit
func Exit(code uint32) *Error {
	return &Error{
		Phase:  PhaseEngine,
		Kind:   KindExit,
		Detail: fmt.Sprintf("exit with exit code %d", code),
		Value:  code,
	}
}

// InvalidSlot creates a marshaling error for a rejected slot access
func InvalidSlot(handle uint32, detail string, args ...any) *Error {
	return &Error{
		Phase:  PhaseMarshal,
		Kind:   KindInvalidSlot,
		Path:   []string{fmt.Sprintf("slot[%d]", handle)},
		Detail: fmt.Sprintf(detail, args...),
		Value:  handle,
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

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Transport creates a dispatch transport error
func Transport(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseDispatch,
		Kind:   KindTransport,
		Detail: detail,
		Cause:  cause,
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

// Closed creates an error for use after Close
func Closed(what string) *Error {
	return &Error{
		Phase:  PhaseEngine,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s is closed", what),
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// Load creates a module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidInput,
		Detail: detail,
		Cause:  cause,
	}
}

// MissingExportsError is returned when a module lacks entry points the engine ABI requires
type MissingExportsError struct {
	Exports []string
}

// NewMissingExportsError creates an error listing the absent export names
func NewMissingExportsError(names []string) *MissingExportsError {
	return &MissingExportsError{Exports: append([]string(nil), names...)}
}

func (e *MissingExportsError) Error() string {
	if len(e.Exports) == 0 {
		return "[load] not_found: no exports specified"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("module is missing %d export(s):", len(e.Exports)))
	for _, name := range e.Exports {
		b.WriteString("\n  - ")
		b.WriteString(name)
	}
	return b.String()
}

// Is reports whether target matches this error type
func (e *MissingExportsError) Is(target error) bool {
	_, ok := target.(*MissingExportsError)
	return ok
}
