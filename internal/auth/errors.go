package auth

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for the transport layer.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindThrottled
	KindConflict
	// KindUnprocessable is a well-formed request whose content fails domain rules.
	KindUnprocessable
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindThrottled:
		return "throttled"
	case KindConflict:
		return "conflict"
	case KindUnprocessable:
		return "unprocessable"
	}
	return "unknown"
}

// FieldError is one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is an expected, client-facing failure. Anything that is not an *Error
// is treated as a server error by the handlers.
type Error struct {
	Kind        Kind
	Message     string
	SecondsLeft int
	Fields      []FieldError
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// AsError extracts an *Error from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	e, ok := AsError(err)
	return ok && e.Kind == k
}

// NewError builds a client-facing error for other packages.
func NewError(k Kind, msg string, fields ...FieldError) *Error {
	return &Error{Kind: k, Message: msg, Fields: fields}
}

func validationErr(msg string, fields ...FieldError) *Error {
	return NewError(KindValidation, msg, fields...)
}

func unauthorizedErr(msg string) *Error { return &Error{Kind: KindUnauthorized, Message: msg} }
func forbiddenErr(msg string) *Error    { return &Error{Kind: KindForbidden, Message: msg} }
func notFoundErr(msg string) *Error     { return &Error{Kind: KindNotFound, Message: msg} }
func conflictErr(msg string) *Error     { return &Error{Kind: KindConflict, Message: msg} }

// ThrottledErr reports that a live OTP blocks a new one.
func ThrottledErr(secondsLeft int) *Error {
	return &Error{
		Kind:        KindThrottled,
		Message:     fmt.Sprintf("Please wait %ds before requesting a new OTP", secondsLeft),
		SecondsLeft: secondsLeft,
	}
}

// Shared messages.
const (
	MsgInvalidCredentials = "Invalid credentials"
	MsgInvalidOTP         = "OTP is invalid or expired"
	MsgUserNotFound       = "User not found"
	MsgEmailNotVerified   = "Email not verified"
	MsgUserExists         = "User already exists"
	MsgInvalidToken       = "Invalid token"
	MsgNoToken            = "No token provided"
)
