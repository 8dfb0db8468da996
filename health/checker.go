package health

import (
	"context"
	"time"
)

// Status ranks the outcome of a connectivity sweep.
type Status int

const (
	// StatusHealthy means every probed connection answered its ping.
	StatusHealthy Status = iota
	// StatusDegraded means some, but not all, probed connections failed.
	StatusDegraded
	// StatusUnhealthy means no probed connection answered.
	StatusUnhealthy
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// Result is the outcome of one sweep over a registry's live connections.
type Result struct {
	Status  Status
	Message string

	// Entries counts live connections at sweep time, Probed the subset
	// whose client exposes a ping, Failed the probes that errored.
	// Connections without a ping count as live but are never probed.
	Entries int
	Probed  int
	Failed  int

	// Duration is the wall time of the sweep, pings included.
	Duration time.Duration

	// Err is the first probe failure, when any probe failed.
	Err error
}

// Checker reports connectivity of a registry's connections.
//
// Check must be safe for concurrent use and must honor the context deadline;
// a sweep is read-only and never releases entries.
type Checker interface {
	Name() string
	Check(ctx context.Context) Result
}
