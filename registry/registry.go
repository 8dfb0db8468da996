package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nivwer/mdb-singleton/config"
	"github.com/nivwer/mdb-singleton/identity"
	"github.com/nivwer/mdb-singleton/observe"
	"github.com/nivwer/mdb-singleton/resource"
)

// Config holds the collaborators of a Registry.
type Config struct {
	// Provider derives the identity key of the calling context. Required.
	Provider identity.Provider

	// Dial opens the external client. Required.
	Dial resource.DialFunc

	// Source supplies the connection string. Defaults to reading MONGO_URI
	// from the environment at first use.
	Source config.Source

	// Logger receives diagnostic events. Defaults to a no-op logger.
	Logger observe.Logger

	// Metrics records acquire/open/close activity. Defaults to no-op.
	Metrics observe.Metrics

	// Tracer spans registry operations. Defaults to no-op.
	Tracer observe.Tracer
}

// Registry is a concurrency-safe cache of managed connections keyed by
// context identity. Construct one per process (or per identity scheme) and
// pass it by reference; each test builds its own.
type Registry struct {
	provider identity.Provider
	dial     resource.DialFunc
	source   config.Source
	logger   observe.Logger
	metrics  observe.Metrics
	tracer   observe.Tracer

	// createMu serializes entry creation across all keys. The open step is
	// rare relative to lookups, so one coarse lock beats a per-key table.
	createMu sync.Mutex

	mu      sync.RWMutex
	entries map[string]*resource.Managed
}

// New creates a Registry, applying defaults for optional collaborators.
func New(cfg Config) (*Registry, error) {
	if cfg.Provider == nil {
		return nil, ErrNilProvider
	}
	if cfg.Dial == nil {
		return nil, ErrNilDial
	}
	if cfg.Source == nil {
		cfg.Source = config.NewEnvSource("")
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NewNopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.NewNopMetrics()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observe.NewNopTracer()
	}

	return &Registry{
		provider: cfg.Provider,
		dial:     cfg.Dial,
		source:   cfg.Source,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		tracer:   cfg.Tracer,
		entries:  make(map[string]*resource.Managed),
	}, nil
}

// Mode returns the identity scheme this registry is keyed by.
func (r *Registry) Mode() identity.Mode {
	return r.provider.Mode()
}

// Acquire returns the connection owned by the calling context, creating it on
// first use. An existing entry is trusted and returned without a connectivity
// check. A failed open is returned as a classified error and leaves no entry,
// so the same context retries creation on its next call.
func (r *Registry) Acquire(ctx context.Context) (m *resource.Managed, err error) {
	key, err := r.provider.CurrentKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: resolve context key: %w", err)
	}
	meta := observe.ResourceMeta{Key: key, Mode: r.provider.Mode().String()}

	ctx, span := r.tracer.StartSpan(ctx, "acquire", meta)
	defer func() { r.tracer.EndSpan(span, err) }()

	// Fast path: entry already exists.
	r.mu.RLock()
	m, ok := r.entries[key]
	r.mu.RUnlock()
	if ok {
		r.metrics.RecordAcquire(ctx, meta, true)
		return m, nil
	}

	r.createMu.Lock()
	defer r.createMu.Unlock()

	// Double-check: another caller may have created the entry while we
	// queued on the creation lock.
	r.mu.RLock()
	m, ok = r.entries[key]
	r.mu.RUnlock()
	if ok {
		r.metrics.RecordAcquire(ctx, meta, true)
		return m, nil
	}

	m, err = r.open(ctx, key, meta)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.entries[key] = m
	r.mu.Unlock()

	r.metrics.RecordAcquire(ctx, meta, false)
	return m, nil
}

// open dials a new connection for key. Called with createMu held.
func (r *Registry) open(ctx context.Context, key string, meta observe.ResourceMeta) (*resource.Managed, error) {
	uri, err := r.source.URI()
	if err != nil {
		r.logger.WithResource(meta).Error(ctx, "connection string unavailable",
			observe.Field{Key: "error", Value: err.Error()},
		)
		r.metrics.RecordOpen(ctx, meta, 0, resource.KindOf(err).String())
		return nil, err
	}

	m := resource.NewManaged(key, r.provider.Mode(), r.dial, r.logger)

	start := time.Now()
	err = m.Open(ctx, uri)
	duration := time.Since(start)

	if err != nil {
		r.metrics.RecordOpen(ctx, meta, duration, resource.KindOf(err).String())
		return nil, err
	}

	r.metrics.RecordOpen(ctx, meta, duration, "")
	return m, nil
}

// Release tears down the entry for key. The entry is removed from the map
// before its client is closed, so a concurrent Acquire for the same key can
// never retrieve a handle whose close is in flight. Unknown keys are a no-op;
// Release never fails from the caller's point of view.
func (r *Registry) Release(ctx context.Context, key string) {
	r.mu.Lock()
	m, ok := r.entries[key]
	if ok {
		delete(r.entries, key)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	r.close(ctx, m)
}

// ReleaseAll tears down every current entry. Entries added by concurrent
// Acquire calls after the snapshot are out of scope for this sweep. Close
// errors are logged, never surfaced; safe to call repeatedly, including as a
// host shutdown step.
func (r *Registry) ReleaseAll(ctx context.Context) {
	r.mu.Lock()
	snapshot := make([]*resource.Managed, 0, len(r.entries))
	for _, m := range r.entries {
		snapshot = append(snapshot, m)
	}
	r.entries = make(map[string]*resource.Managed)
	r.mu.Unlock()

	var g errgroup.Group
	for _, m := range snapshot {
		g.Go(func() error {
			r.close(ctx, m)
			return nil
		})
	}
	_ = g.Wait()
}

// Shutdown releases every entry. Intended for the host's graceful shutdown
// sequence; idempotent.
func (r *Registry) Shutdown(ctx context.Context) {
	r.ReleaseAll(ctx)
}

func (r *Registry) close(ctx context.Context, m *resource.Managed) {
	meta := observe.ResourceMeta{Key: m.Key(), Mode: m.Mode().String()}

	ctx, span := r.tracer.StartSpan(ctx, "close", meta)
	defer r.tracer.EndSpan(span, nil)

	m.Close(ctx)
	r.metrics.RecordClose(ctx, meta)
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Keys returns a snapshot of the current context keys, in no particular order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.entries))
	for key := range r.entries {
		keys = append(keys, key)
	}
	return keys
}

// Entries returns a snapshot of the current managed connections, in no
// particular order. Used by health checks.
func (r *Registry) Entries() []*resource.Managed {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]*resource.Managed, 0, len(r.entries))
	for _, m := range r.entries {
		entries = append(entries, m)
	}
	return entries
}
