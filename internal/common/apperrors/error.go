// Package apperrors provides the application error type used across the
// activation server. It implements the standard error interface and adds
// error chaining and HTTP status code management so that a handler can map
// any error it receives to a transport response without inspecting internals.
package apperrors

// Error is the interface implemented by all application errors. Methods that
// derive a new error return Error to support chaining; none of them mutate
// the receiver.
type Error interface {
	error
	Unwrap() error // support for errors.Is / errors.As

	New(msg string) Error                  // creates a fresh error using current as template
	Msg(msg string) Error                  // creates a new error with message and wraps original
	MsgErr(msg string, err ...error) Error // creates error with message and wraps extra errors
	Err(err ...error) Error                // attaches additional errors to current error
	SetStatusCode(int) Error               // sets HTTP status code for the error
	StatusCode() int                       // returns the current status code
	ErrorAll() string                      // returns full message including wrapped errors
	UnwrapAll() []error                    // returns all wrapped errors
}
