package config

import "errors"

var (
	// ErrInvalid wraps every validation failure so callers can match
	// the class without parsing messages.
	ErrInvalid = errors.New("config: invalid value")

	// ErrAlreadyWatching is returned by a second Reloader.Start.
	ErrAlreadyWatching = errors.New("config: reloader already watching")
)
