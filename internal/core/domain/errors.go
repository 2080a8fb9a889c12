package domain

import "errors"

var (
	ErrInvalidParkID       = errors.New("invalid park id")
	ErrParkNotFound        = errors.New("park not found")
	ErrLocationUnavailable = errors.New("user location unavailable")
	ErrSessionNotFound     = errors.New("session not found")
	ErrUnknownCategory     = errors.New("unknown feature category")
	ErrUnknownLookupKind   = errors.New("unknown lookup kind")
	ErrInvalidCoordinate   = errors.New("invalid coordinate")
)
