package dispatch

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"reflect"

	"github.com/wippyai/world-wasm/errors"
)

// FailureForm says how a task failure was carried across.
type FailureForm string

const (
	FormString FailureForm = "string"
	FormError  FailureForm = "error"
	FormValue  FailureForm = "value"
	FormRemote FailureForm = "remote"
	FormOpaque FailureForm = "opaque"
)

const opaqueMessage = "task failed with a value that cannot be transmitted"

// WireError is the transmissible form of *errors.Error. The cause chain
// is flattened to its message.
type WireError struct {
	Phase  errors.Phase `json:"phase"`
	Kind   errors.Kind  `json:"kind"`
	Detail string       `json:"detail,omitempty"`
	Path   []string     `json:"path,omitempty"`
	DType  string       `json:"dtype,omitempty"`
	Cause  string       `json:"cause,omitempty"`
}

// Failure is a normalized task failure.
type Failure struct {
	Form    FailureForm     `json:"form"`
	Text    string          `json:"text,omitempty"`
	Error   *WireError      `json:"err,omitempty"`
	Value   json.RawMessage `json:"value,omitempty"`
	Name    string          `json:"name,omitempty"`
	Message string          `json:"message,omitempty"`
	Stack   string          `json:"stack,omitempty"`
}

// RemoteError is an error rebuilt from a failure that had no structured form.
type RemoteError struct {
	Name    string
	Message string
	Stack   string
	Value   json.RawMessage
}

func (e *RemoteError) Error() string {
	if e.Name == "" {
		return e.Message
	}
	return e.Name + ": " + e.Message
}

// normalize converts a returned error or recovered panic value. stack may
// be nil for returned errors.
func normalize(v any, stack []byte) *Failure {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return &Failure{Form: FormString, Text: x}
	case error:
		if e, ok := x.(*errors.Error); ok && e != nil {
			return &Failure{Form: FormError, Error: wireOf(e)}
		}
		return &Failure{Form: FormRemote, Name: typeName(x), Message: x.Error(), Stack: string(stack)}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return &Failure{Form: FormOpaque, Message: opaqueMessage}
	}
	return &Failure{Form: FormValue, Value: raw}
}

func wireOf(e *errors.Error) *WireError {
	w := &WireError{
		Phase:  e.Phase,
		Kind:   e.Kind,
		Detail: e.Detail,
		Path:   append([]string(nil), e.Path...),
		DType:  e.DType,
	}
	if e.Cause != nil {
		w.Cause = e.Cause.Error()
	}
	return w
}

func typeName(v any) string {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return t.String()
	}
	return t.Name()
}

// Err rebuilds the caller-side error.
func (f *Failure) Err() error {
	if f == nil {
		return nil
	}
	switch f.Form {
	case FormString:
		return stderrors.New(f.Text)
	case FormError:
		e := &errors.Error{
			Phase:  f.Error.Phase,
			Kind:   f.Error.Kind,
			Detail: f.Error.Detail,
			Path:   f.Error.Path,
			DType:  f.Error.DType,
		}
		if f.Error.Cause != "" {
			e.Cause = &RemoteError{Message: f.Error.Cause}
		}
		return e
	case FormValue:
		return &RemoteError{Name: "value", Message: string(f.Value), Value: f.Value}
	case FormRemote:
		return &RemoteError{Name: f.Name, Message: f.Message, Stack: f.Stack}
	}
	return errors.Transport(f.Message, nil)
}

func (f *Failure) String() string {
	if f == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s: %v", f.Form, f.Err())
}
