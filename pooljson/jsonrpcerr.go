package pooljson

import "errors"

var (
	// ErrMalformedMessage is returned when a line is not a JSON object.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrInvalidParams is returned when a message has missing or mistyped
	// params.
	ErrInvalidParams = errors.New("invalid params")

	// ErrUnexpectedMethod is returned when a message is decoded as a
	// command it is not.
	ErrUnexpectedMethod = errors.New("unexpected method")
)
