package health

import (
	"context"
	"fmt"
	"time"

	"github.com/nivwer/mdb-singleton/resource"
)

// Entries is the slice of the registry a checker inspects. Satisfied by
// *registry.Registry.
type Entries interface {
	Entries() []*resource.Managed
}

// RegistryChecker pings every live connection in a registry. Connections
// whose client does not implement resource.Pinger are counted as live without
// being probed.
type RegistryChecker struct {
	name        string
	registry    Entries
	pingTimeout time.Duration
}

// NewRegistryChecker creates a checker for the given registry.
// A zero timeout defaults to 5 seconds per ping.
func NewRegistryChecker(name string, reg Entries, pingTimeout time.Duration) *RegistryChecker {
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}
	return &RegistryChecker{
		name:        name,
		registry:    reg,
		pingTimeout: pingTimeout,
	}
}

// Name returns the name of this checker.
func (c *RegistryChecker) Name() string {
	return c.name
}

// Check pings each live connection. All reachable: healthy. Some unreachable:
// degraded. None reachable while entries exist: unhealthy. An empty registry
// is healthy: nothing has been acquired yet.
func (c *RegistryChecker) Check(ctx context.Context) Result {
	start := time.Now()

	entries := c.registry.Entries()
	res := Result{Entries: len(entries)}
	if len(entries) == 0 {
		res.Message = "no live connections"
		res.Duration = time.Since(start)
		return res
	}

	var firstErr error
	for _, m := range entries {
		pinger, ok := m.Client().(resource.Pinger)
		if !ok {
			continue
		}
		res.Probed++

		pingCtx, cancel := context.WithTimeout(ctx, c.pingTimeout)
		err := pinger.Ping(pingCtx)
		cancel()

		if err != nil {
			res.Failed++
			if firstErr == nil {
				firstErr = fmt.Errorf("ping %s: %w", m.Key(), err)
			}
		}
	}
	res.Duration = time.Since(start)

	switch {
	case res.Failed == 0:
		res.Message = "all connections reachable"
	case res.Failed < res.Probed:
		res.Status = StatusDegraded
		res.Message = "some connections unreachable"
		res.Err = firstErr
	default:
		res.Status = StatusUnhealthy
		res.Message = "no connection reachable"
		res.Err = firstErr
	}
	return res
}

// Ensure RegistryChecker implements Checker
var _ Checker = (*RegistryChecker)(nil)
