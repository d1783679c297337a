package domain

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrorKind classifies invocation failures.
type ErrorKind string

const (
	KindConfiguration    ErrorKind = "configuration"
	KindContent          ErrorKind = "content"
	KindNotSupported     ErrorKind = "not_supported"
	KindInputValidation  ErrorKind = "input_validation"
	KindOutputValidation ErrorKind = "output_validation"
	KindAuthentication   ErrorKind = "authentication"
	KindRemote           ErrorKind = "remote"
	KindInternal         ErrorKind = "internal"
)

// Sentinels usable with errors.Is against any *Error of the same kind.
var (
	ErrConfiguration    = &Error{Kind: KindConfiguration}
	ErrContent          = &Error{Kind: KindContent}
	ErrNotSupported     = &Error{Kind: KindNotSupported}
	ErrInputValidation  = &Error{Kind: KindInputValidation}
	ErrOutputValidation = &Error{Kind: KindOutputValidation}
	ErrAuthentication   = &Error{Kind: KindAuthentication}
	ErrRemote           = &Error{Kind: KindRemote}
	ErrInternal         = &Error{Kind: KindInternal}
)

// Stable error codes.
const (
	CodeNoHost           = "REST-CLIENT-1"
	CodeNoPath           = "REST-CLIENT-2"
	CodeInvalidContent   = "REST-CLIENT-3"
	CodeNotSupported     = "REST-CLIENT-4"
	CodeInvalidInput     = "REST-CLIENT-5"
	CodeInvalidOutput    = "REST-CLIENT-6"
	CodeAuthentication   = "REST-CLIENT-7"
	CodeInternal         = "REST-CLIENT-0"
	remoteCodePrefix     = "REST-CLIENT-"
	remoteMessagePattern = "An error occurred on the remote server: [%d] %s"
)

// Error is the single failure value surfaced by an invocation.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	// StatusCode and Body are set for remote failures.
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind, and also the same code when the target has one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// KindOf returns the kind of the first *Error in the chain, KindInternal otherwise.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the code of the first *Error in the chain, CodeInternal otherwise.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	return CodeInternal
}

// NoHostError is returned when neither the configuration nor the call supplies a host.
func NoHostError(operation string) *Error {
	return &Error{Kind: KindConfiguration, Code: CodeNoHost, Message: "No host configured for: " + operation}
}

// NoPathError is returned when neither the configuration nor the call supplies a path.
func NoPathError(operation string) *Error {
	return &Error{Kind: KindConfiguration, Code: CodeNoPath, Message: "No path configured for: " + operation}
}

// ContentError reports an unsupported or undecodable body.
func ContentError(message string, err error) *Error {
	if message == "" {
		message = "Invalid content"
	}
	return &Error{Kind: KindContent, Code: CodeInvalidContent, Message: message, Err: err}
}

// NotSupportedError reports a structured value where only scalars are allowed.
func NotSupportedError(message string) *Error {
	return &Error{Kind: KindNotSupported, Code: CodeNotSupported, Message: message}
}

// InputValidationError wraps the violations found in the caller's content.
func InputValidationError(err error) *Error {
	return &Error{Kind: KindInputValidation, Code: CodeInvalidInput, Message: "The input provided to the rest client is invalid", Err: err}
}

// OutputValidationError wraps the violations found in the decoded response.
func OutputValidationError(err error) *Error {
	return &Error{Kind: KindOutputValidation, Code: CodeInvalidOutput, Message: "The returned content from the server is invalid", Err: err}
}

// AuthenticationError reports a security provider that declined or failed.
func AuthenticationError(err error) *Error {
	return &Error{Kind: KindAuthentication, Code: CodeAuthentication, Message: "Could not authenticate the request", Err: err}
}

// RemoteError reports a non-2xx response. body is the full response text, possibly empty.
func RemoteError(statusCode int, statusText, body string) *Error {
	msg := fmt.Sprintf(remoteMessagePattern, statusCode, statusText)
	if body != "" {
		msg += "\n" + body
	}
	return &Error{
		Kind:       KindRemote,
		Code:       remoteCodePrefix + strconv.Itoa(statusCode),
		Message:    msg,
		StatusCode: statusCode,
		Body:       body,
	}
}

// Internal wraps any other failure. Errors that are already *Error pass through unchanged.
func Internal(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: "Unexpected failure", Err: err}
}
