package registry

import "errors"

var (
	// ErrNilProvider indicates Config.Provider was not set.
	ErrNilProvider = errors.New("registry: identity provider is required")

	// ErrNilDial indicates Config.Dial was not set.
	ErrNilDial = errors.New("registry: dial function is required")
)
