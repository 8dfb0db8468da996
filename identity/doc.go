// Package identity derives stable keys for units of concurrent execution.
//
// A Provider mints an identity for "the current worker" and carries it through
// context.Context. Thread mode uses a monotonic counter assigned at spawn;
// task mode uses a UUID token threaded through asynchronous call chains. Keys
// are mode-prefixed, so the two key spaces never overlap.
//
// Providers are pure identity functions: they never open resources and never
// touch the registry.
package identity
