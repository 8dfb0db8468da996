// Package resource wraps a single external client handle with its owning
// context identity and open/close lifecycle.
//
// A Managed value owns exactly one Client. Open dials the client through an
// injected DialFunc and classifies failures into the taxonomy in errors.go;
// Close disconnects at most once regardless of how many callers race it.
package resource
