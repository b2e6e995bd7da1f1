package domain

import "errors"

var (
	// ErrInvalidDate is returned when DD/MM/YYYY do not form a calendar date.
	ErrInvalidDate = errors.New("invalid event date")

	// ErrMissingField is returned when a point or row lacks a required field.
	ErrMissingField = errors.New("missing required field")
)
