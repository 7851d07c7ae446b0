package models

import "errors"

var (
	// ErrValidation marks input rejected before any engine call.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a missing entity or relation that the operation required.
	ErrNotFound = errors.New("not found")
	// ErrZoneNotFound marks a zone that does not exist where one was required.
	ErrZoneNotFound = errors.New("zone does not exist")
)
