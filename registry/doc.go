// Package registry caches one external client handle per execution context.
//
// A Registry maps context identity keys (see the identity package) to managed
// connections (see the resource package). Acquire returns the caller's
// existing handle or creates one under a process-wide creation lock with a
// double-checked existence test; Release and ReleaseAll tear handles down,
// removing the map entry before closing so no caller can observe a handle
// whose close is in flight.
//
// Failed opens are classified, logged, and counted but never cached: the next
// Acquire for the same context retries creation. Nothing in this package
// terminates the host process.
package registry
