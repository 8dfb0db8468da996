package resource

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors classifying why a connection open failed. Dial
// implementations wrap their underlying cause with exactly one of these, so
// callers can branch with errors.Is and telemetry can label by kind.
var (
	// ErrTimeout indicates server selection did not complete in time.
	ErrTimeout = errors.New("resource: server selection timed out")

	// ErrConnectionFailure indicates a transport-level failure.
	ErrConnectionFailure = errors.New("resource: connection failed")

	// ErrInvalidURI indicates a malformed connection string.
	ErrInvalidURI = errors.New("resource: invalid connection URI")

	// ErrConfiguration indicates invalid or missing client configuration.
	ErrConfiguration = errors.New("resource: invalid configuration")
)

// ErrNoClient indicates an operation on a Managed that holds no open client.
var ErrNoClient = errors.New("resource: no open client")

// Kind is the classification of an open failure.
type Kind int

const (
	// KindNone means the error is nil or carries no known classification.
	KindNone Kind = iota
	KindTimeout
	KindConnectionFailure
	KindInvalidURI
	KindConfiguration
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindConnectionFailure:
		return "connection_failure"
	case KindInvalidURI:
		return "invalid_uri"
	case KindConfiguration:
		return "configuration"
	default:
		return "none"
	}
}

// Classified wraps cause with the sentinel for kind, preserving both for
// errors.Is checks.
func Classified(kind Kind, cause error) error {
	sentinel := sentinelFor(kind)
	if sentinel == nil {
		return cause
	}
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, cause)
}

func sentinelFor(kind Kind) error {
	switch kind {
	case KindTimeout:
		return ErrTimeout
	case KindConnectionFailure:
		return ErrConnectionFailure
	case KindInvalidURI:
		return ErrInvalidURI
	case KindConfiguration:
		return ErrConfiguration
	default:
		return nil
	}
}

// KindOf returns the classification of err. Context deadline expiry counts as
// a timeout even when the dialer did not classify it.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrInvalidURI):
		return KindInvalidURI
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrConnectionFailure):
		return KindConnectionFailure
	default:
		return KindNone
	}
}
