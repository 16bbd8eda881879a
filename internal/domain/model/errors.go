package model

import "errors"

var (
	ErrInvalidSymbolFormat = errors.New("invalid symbol format")
	ErrInvalidTrade        = errors.New("invalid trade")
	ErrMalformedEntry      = errors.New("malformed log entry")
	ErrNotFound            = errors.New("not found")

	// ErrValidation marks caller errors in query parameters. Handlers map it
	// to a client error.
	ErrValidation = errors.New("validation error")
)
