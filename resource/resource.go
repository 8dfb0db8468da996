package resource

import (
	"context"
	"sync/atomic"

	"github.com/nivwer/mdb-singleton/identity"
	"github.com/nivwer/mdb-singleton/observe"
)

// Client is the opaque external handle a Managed owns. Implementations hold
// one live connection (or connection pool) to the external system.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Disconnect must release the underlying connection; it is called at most
//   once per Client by the owning Managed.
type Client interface {
	Disconnect(ctx context.Context) error
}

// Pinger is optionally implemented by Clients that can verify connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DialFunc constructs and connects a Client for the given connection string.
// Failures must be wrapped with one of the classification sentinels in this
// package (see Classified).
type DialFunc func(ctx context.Context, uri string) (Client, error)

// Managed owns one external client handle plus the identity of the context
// that acquired it.
//
// A Managed is unopened until Open succeeds, open while it holds a client,
// and closed after Close ran. Close is safe to race: the underlying client
// is disconnected at most once.
type Managed struct {
	key    string
	mode   identity.Mode
	dial   DialFunc
	logger observe.Logger

	client Client
	closed atomic.Bool
}

// NewManaged creates an unopened Managed for the given context identity.
// A nil logger is replaced with a no-op logger.
func NewManaged(key string, mode identity.Mode, dial DialFunc, logger observe.Logger) *Managed {
	if logger == nil {
		logger = observe.NewNopLogger()
	}
	return &Managed{
		key:    key,
		mode:   mode,
		dial:   dial,
		logger: logger.WithResource(observe.ResourceMeta{Key: key, Mode: mode.String()}),
	}
}

// Key returns the identity of the owning execution context.
func (m *Managed) Key() string {
	return m.key
}

// Mode returns the identity scheme that produced the key.
func (m *Managed) Mode() identity.Mode {
	return m.mode
}

// Client returns the open client handle, or nil before a successful Open.
func (m *Managed) Client() Client {
	return m.client
}

// Open dials the external client. On failure the Managed keeps no client and
// the classified error is returned; the caller may retry with a fresh Open.
// Open is not safe to race with itself; the registry serializes creation.
func (m *Managed) Open(ctx context.Context, uri string) error {
	client, err := m.dial(ctx, uri)
	if err != nil {
		m.logger.Error(ctx, "connection open failed",
			observe.Field{Key: "error.kind", Value: KindOf(err).String()},
			observe.Field{Key: "error", Value: err.Error()},
		)
		return err
	}

	m.client = client
	m.logger.Info(ctx, "connection established")
	return nil
}

// Close disconnects the client. At most one call reaches the client; later
// calls and calls on a never-opened Managed are no-ops. Disconnect errors are
// logged, never returned.
func (m *Managed) Close(ctx context.Context) {
	if !m.closed.CompareAndSwap(false, true) {
		return
	}
	if m.client == nil {
		return
	}

	if err := m.client.Disconnect(ctx); err != nil {
		m.logger.Warn(ctx, "connection close failed",
			observe.Field{Key: "error", Value: err.Error()},
		)
		return
	}
	m.logger.Info(ctx, "connection closed")
}
