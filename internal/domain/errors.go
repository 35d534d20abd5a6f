package domain

import "errors"

var (
	// ErrNotFound is returned when a query scope contains no data.
	ErrNotFound = errors.New("not found")

	// ErrInvalidParam is returned for malformed caller-supplied parameters
	// before any store query is issued.
	ErrInvalidParam = errors.New("invalid parameter")
)
