package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/nivwer/mdb-singleton/resource"
)

// DefaultEnvVar is the environment variable holding the connection string.
const DefaultEnvVar = "MONGO_URI"

// Source supplies the connection string for opening clients.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors must be classified with the resource package sentinels.
type Source interface {
	URI() (string, error)
}

// Static is a fixed connection string.
type Static string

// URI returns the string itself.
func (s Static) URI() (string, error) {
	return string(s), nil
}

// EnvSource reads the connection string from the process environment. The
// value is resolved on first use and cached only once a read succeeds, so a
// host that fixes its environment after a failed acquire does not need to
// restart.
type EnvSource struct {
	envVar string

	mu     sync.Mutex
	cached string
	ok     bool
}

// NewEnvSource creates an EnvSource for the given variable.
// An empty name selects DefaultEnvVar.
func NewEnvSource(envVar string) *EnvSource {
	if envVar == "" {
		envVar = DefaultEnvVar
	}
	return &EnvSource{envVar: envVar}
}

// URI resolves the connection string.
func (s *EnvSource) URI() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ok {
		return s.cached, nil
	}

	raw, found := os.LookupEnv(s.envVar)
	if !found || raw == "" {
		return "", resource.Classified(resource.KindConfiguration,
			fmt.Errorf("environment variable %s is not set", s.envVar))
	}

	expanded, err := ExpandEnvStrict(raw)
	if err != nil {
		return "", resource.Classified(resource.KindConfiguration, err)
	}

	s.cached = expanded
	s.ok = true
	return s.cached, nil
}

// Ensure sources implement Source
var (
	_ Source = Static("")
	_ Source = (*EnvSource)(nil)
)
