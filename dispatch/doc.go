// Package dispatch runs WORLD operations off the caller's goroutine.
//
// Each task gets its own goroutine and a fresh engine instance with its own
// linear memory; the instance is closed when the task ends. Requests name
// one of a closed set of operations and carry their arrays in packed form.
// Arrays listed in Request.Transfer are moved to the worker, detaching the
// sender's copy; the rest are cloned. Result arrays always move back and are
// adopted without copying.
//
// Failures inside a task are normalized before they cross back:
//
//	string panic          -> error with the same message
//	*errors.Error         -> *errors.Error with the same phase and kind
//	JSON-encodable value  -> *RemoteError carrying the encoded value
//	any other error       -> *RemoteError{Name, Message, Stack}
//	anything else         -> a generic transport error
package dispatch
