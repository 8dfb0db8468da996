// Package health reports connectivity of the registry's live connections.
//
// The registry itself trusts an entry until it is released; health checks are
// the out-of-band way for a host to notice broken connections and decide to
// release them.
package health
