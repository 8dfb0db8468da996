package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/nivwer/mdb-singleton/config"
	"github.com/nivwer/mdb-singleton/identity"
	"github.com/nivwer/mdb-singleton/resource"
)

// fakeClient counts Disconnect invocations.
type fakeClient struct {
	disconnects atomic.Int32
}

func (c *fakeClient) Disconnect(ctx context.Context) error {
	c.disconnects.Add(1)
	return nil
}

// fakeDialer counts dials and hands out fresh fakeClients.
type fakeDialer struct {
	dials   atomic.Int32
	err     error
	mu      sync.Mutex
	clients []*fakeClient
}

func (d *fakeDialer) Dial(ctx context.Context, uri string) (resource.Client, error) {
	d.dials.Add(1)
	if d.err != nil {
		return nil, d.err
	}
	c := &fakeClient{}
	d.mu.Lock()
	d.clients = append(d.clients, c)
	d.mu.Unlock()
	return c, nil
}

// swappableSource lets a test correct the connection source mid-flight.
type swappableSource struct {
	mu  sync.Mutex
	src config.Source
}

func (s *swappableSource) URI() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.URI()
}

func (s *swappableSource) swap(src config.Source) {
	s.mu.Lock()
	s.src = src
	s.mu.Unlock()
}

func newTestRegistry(t *testing.T, dialer *fakeDialer) (*Registry, identity.Provider) {
	t.Helper()
	provider := identity.NewThreadProvider()
	r, err := New(Config{
		Provider: provider,
		Dial:     dialer.Dial,
		Source:   config.Static("mongodb://localhost:27017"),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return r, provider
}

// TestNew_Validation verifies required collaborators are enforced.
func TestNew_Validation(t *testing.T) {
	dialer := &fakeDialer{}

	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{"missing provider", Config{Dial: dialer.Dial}, ErrNilProvider},
		{"missing dial", Config{Provider: identity.NewThreadProvider()}, ErrNilDial},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); !errors.Is(err, tt.wantErr) {
				t.Errorf("New() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// TestAcquire_SameContextSingleEntry verifies repeated acquires from one
// context return the same instance and dial once.
func TestAcquire_SameContextSingleEntry(t *testing.T) {
	dialer := &fakeDialer{}
	r, provider := newTestRegistry(t, dialer)
	ctx, _ := provider.Bind(context.Background())

	first, err := r.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	for i := 0; i < 5; i++ {
		m, err := r.Acquire(ctx)
		if err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
		if m != first {
			t.Fatal("Acquire() returned a different instance for the same context")
		}
	}

	if got := r.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1", got)
	}
	if got := dialer.dials.Load(); got != 1 {
		t.Errorf("dial count = %d, want 1", got)
	}
}

// TestAcquire_UnboundContext verifies acquiring without a bound identity
// fails with ErrNoKey.
func TestAcquire_UnboundContext(t *testing.T) {
	r, _ := newTestRegistry(t, &fakeDialer{})

	_, err := r.Acquire(context.Background())
	if !errors.Is(err, identity.ErrNoKey) {
		t.Fatalf("Acquire() error = %v, want ErrNoKey", err)
	}
	if got := r.Len(); got != 0 {
		t.Errorf("Len() = %d, want 0", got)
	}
}

// TestAcquire_DistinctContextsDistinctEntries runs 3 workers making 3
// acquires each: exactly 3 entries and 3 dials.
func TestAcquire_DistinctContextsDistinctEntries(t *testing.T) {
	const (
		workers        = 3
		callsPerWorker = 3
	)

	dialer := &fakeDialer{}
	r, provider := newTestRegistry(t, dialer)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, _ := provider.Bind(context.Background())

			var first *resource.Managed
			for j := 0; j < callsPerWorker; j++ {
				m, err := r.Acquire(ctx)
				if err != nil {
					t.Errorf("Acquire() error = %v", err)
					return
				}
				if first == nil {
					first = m
				} else if m != first {
					t.Error("worker observed two different instances")
					return
				}
			}
		}()
	}
	wg.Wait()

	if got := r.Len(); got != workers {
		t.Errorf("Len() = %d, want %d", got, workers)
	}
	if got := dialer.dials.Load(); got != workers {
		t.Errorf("dial count = %d, want %d", got, workers)
	}
}

// TestAcquire_ConcurrentSameKeyDialsOnce verifies racing acquires for one key
// queue on the creation lock and only the first dials.
func TestAcquire_ConcurrentSameKeyDialsOnce(t *testing.T) {
	const callers = 50

	dialer := &fakeDialer{}
	r, provider := newTestRegistry(t, dialer)
	ctx, _ := provider.Bind(context.Background())

	var wg sync.WaitGroup
	results := make([]*resource.Managed, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := r.Acquire(ctx)
			if err != nil {
				t.Errorf("Acquire() error = %v", err)
				return
			}
			results[i] = m
		}(i)
	}
	wg.Wait()

	if got := dialer.dials.Load(); got != 1 {
		t.Errorf("dial count = %d, want 1", got)
	}
	for i := 1; i < callers; i++ {
		if results[i] != results[0] {
			t.Fatal("racing callers observed different instances")
		}
	}
}

// TestRelease_RemovesExactlyOne verifies release semantics.
func TestRelease_RemovesExactlyOne(t *testing.T) {
	dialer := &fakeDialer{}
	r, provider := newTestRegistry(t, dialer)

	ctx, key := provider.Bind(context.Background())
	if _, err := r.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	otherCtx, _ := provider.Bind(context.Background())
	if _, err := r.Acquire(otherCtx); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	r.Release(context.Background(), key)

	if got := r.Len(); got != 1 {
		t.Errorf("Len() after release = %d, want 1", got)
	}
	if got := dialer.clients[0].disconnects.Load(); got != 1 {
		t.Errorf("disconnect count = %d, want 1", got)
	}

	// Unknown and already-released keys are no-ops.
	r.Release(context.Background(), key)
	r.Release(context.Background(), "never-seen")

	if got := r.Len(); got != 1 {
		t.Errorf("Len() after no-op releases = %d, want 1", got)
	}
	if got := dialer.clients[0].disconnects.Load(); got != 1 {
		t.Errorf("disconnect count after repeat release = %d, want 1", got)
	}
}

// TestRelease_ConcurrentSameKeyNoDoubleClose verifies racing releases close
// the client at most once.
func TestRelease_ConcurrentSameKeyNoDoubleClose(t *testing.T) {
	dialer := &fakeDialer{}
	r, provider := newTestRegistry(t, dialer)

	ctx, key := provider.Bind(context.Background())
	if _, err := r.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Release(context.Background(), key)
		}()
	}
	wg.Wait()

	if got := r.Len(); got != 0 {
		t.Errorf("Len() = %d, want 0", got)
	}
	if got := dialer.clients[0].disconnects.Load(); got > 1 {
		t.Errorf("disconnect count = %d, want <= 1", got)
	}
}

// TestReleaseAll_ClosesEverythingOnce verifies the sweep closes each client
// exactly once and empties the registry, and that repeating it is safe.
func TestReleaseAll_ClosesEverythingOnce(t *testing.T) {
	const workers = 5

	dialer := &fakeDialer{}
	r, provider := newTestRegistry(t, dialer)

	for i := 0; i < workers; i++ {
		ctx, _ := provider.Bind(context.Background())
		if _, err := r.Acquire(ctx); err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
	}
	if got := r.Len(); got != workers {
		t.Fatalf("Len() = %d, want %d", got, workers)
	}

	r.ReleaseAll(context.Background())

	if got := r.Len(); got != 0 {
		t.Errorf("Len() after ReleaseAll = %d, want 0", got)
	}
	for i, c := range dialer.clients {
		if got := c.disconnects.Load(); got != 1 {
			t.Errorf("client %d disconnect count = %d, want 1", i, got)
		}
	}

	// Idempotent: a second sweep (the shutdown path) changes nothing.
	r.Shutdown(context.Background())
	for i, c := range dialer.clients {
		if got := c.disconnects.Load(); got != 1 {
			t.Errorf("client %d disconnect count after Shutdown = %d, want 1", i, got)
		}
	}
}

// TestReleaseAll_Empty verifies sweeping an empty registry is a no-op.
func TestReleaseAll_Empty(t *testing.T) {
	r, _ := newTestRegistry(t, &fakeDialer{})
	r.ReleaseAll(context.Background())
	if got := r.Len(); got != 0 {
		t.Errorf("Len() = %d, want 0", got)
	}
}

// TestReleaseAll_ToleratesConcurrentAcquire verifies entries added during the
// sweep survive for a later sweep.
func TestReleaseAll_ToleratesConcurrentAcquire(t *testing.T) {
	dialer := &fakeDialer{}
	r, provider := newTestRegistry(t, dialer)

	ctx, _ := provider.Bind(context.Background())
	if _, err := r.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.ReleaseAll(context.Background())
	}()
	go func() {
		defer wg.Done()
		newCtx, _ := provider.Bind(context.Background())
		if _, err := r.Acquire(newCtx); err != nil {
			t.Errorf("Acquire() during sweep error = %v", err)
		}
	}()
	wg.Wait()

	// The racing acquire may or may not have landed in the first sweep's
	// snapshot; a second sweep must leave nothing behind either way.
	r.ReleaseAll(context.Background())

	if got := r.Len(); got != 0 {
		t.Errorf("Len() after final sweep = %d, want 0", got)
	}
	for i, c := range dialer.clients {
		if got := c.disconnects.Load(); got != 1 {
			t.Errorf("client %d disconnect count = %d, want 1", i, got)
		}
	}
}

// TestAcquire_FailedOpenNotCached verifies policy: a failed open leaves no
// entry and the next acquire retries creation.
func TestAcquire_FailedOpenNotCached(t *testing.T) {
	dialer := &fakeDialer{err: resource.Classified(resource.KindInvalidURI, errors.New("bad uri"))}
	r, provider := newTestRegistry(t, dialer)
	ctx, _ := provider.Bind(context.Background())

	_, err := r.Acquire(ctx)
	if !errors.Is(err, resource.ErrInvalidURI) {
		t.Fatalf("Acquire() error = %v, want ErrInvalidURI", err)
	}
	if got := r.Len(); got != 0 {
		t.Fatalf("Len() after failed open = %d, want 0", got)
	}

	// Same context retries and succeeds once the dialer recovers.
	dialer.err = nil
	m, err := r.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() after recovery error = %v", err)
	}
	if m.Client() == nil {
		t.Error("recovered entry has no client")
	}
	if got := r.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1", got)
	}
	if got := dialer.dials.Load(); got != 2 {
		t.Errorf("dial count = %d, want 2", got)
	}
}

// TestAcquire_ConfigSourceFailureIsolated verifies a broken connection source
// reports a configuration failure and a corrected source succeeds.
func TestAcquire_ConfigSourceFailureIsolated(t *testing.T) {
	dialer := &fakeDialer{}
	provider := identity.NewThreadProvider()
	source := &swappableSource{src: config.NewEnvSource("MDB_TEST_REGISTRY_UNSET")}

	r, err := New(Config{
		Provider: provider,
		Dial:     dialer.Dial,
		Source:   source,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, _ := provider.Bind(context.Background())

	_, err = r.Acquire(ctx)
	if !errors.Is(err, resource.ErrConfiguration) {
		t.Fatalf("Acquire() error = %v, want ErrConfiguration", err)
	}
	if got := dialer.dials.Load(); got != 0 {
		t.Errorf("dial count = %d, want 0 (no dial without a URI)", got)
	}

	source.swap(config.Static("mongodb://localhost:27017"))

	if _, err := r.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() after corrected source error = %v", err)
	}
	if got := r.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1", got)
	}
}

// TestKeysAndEntries verifies the diagnostic snapshots.
func TestKeysAndEntries(t *testing.T) {
	dialer := &fakeDialer{}
	r, provider := newTestRegistry(t, dialer)

	ctx, key := provider.Bind(context.Background())
	if _, err := r.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	keys := r.Keys()
	if len(keys) != 1 || keys[0] != key {
		t.Errorf("Keys() = %v, want [%s]", keys, key)
	}

	entries := r.Entries()
	if len(entries) != 1 || entries[0].Key() != key {
		t.Errorf("Entries() returned wrong snapshot")
	}

	if r.Mode() != identity.ModeThread {
		t.Errorf("Mode() = %v, want ModeThread", r.Mode())
	}
}

// TestTaskModeRegistry verifies the same registry works keyed by task tokens.
func TestTaskModeRegistry(t *testing.T) {
	dialer := &fakeDialer{}
	provider := identity.NewTaskProvider()
	r, err := New(Config{
		Provider: provider,
		Dial:     dialer.Dial,
		Source:   config.Static("mongodb://localhost:27017"),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	const tasks = 4
	var wg sync.WaitGroup
	for i := 0; i < tasks; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, _ := provider.Bind(context.Background())
			if _, err := r.Acquire(ctx); err != nil {
				t.Errorf("Acquire() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if got := r.Len(); got != tasks {
		t.Errorf("Len() = %d, want %d", got, tasks)
	}

	r.ReleaseAll(context.Background())
	if got := r.Len(); got != 0 {
		t.Errorf("Len() after ReleaseAll = %d, want 0", got)
	}
}
