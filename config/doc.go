// Package config supplies the connection string for the registry.
//
// The registry reads its URI through a Source. EnvSource resolves an
// environment variable (MONGO_URI by default) lazily at first use, expanding
// ${VAR} references strictly, and caches only successful reads. A missing or
// broken environment surfaces as a classified open failure, not a startup
// crash, and a corrected environment is picked up on the next acquire.
package config
