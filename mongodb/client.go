package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/nivwer/mdb-singleton/resource"
)

// DefaultSelectionTimeout bounds server selection during dial and ping.
const DefaultSelectionTimeout = 10 * time.Second

// Client wraps one connected *mongo.Client. The registry owns its lifecycle;
// consumers use Mongo or Database for queries and never disconnect it
// themselves.
type Client struct {
	mc *mongo.Client
}

// Mongo returns the underlying driver client.
func (c *Client) Mongo() *mongo.Client {
	return c.mc
}

// Database returns a handle to the named database.
func (c *Client) Database(name string) *mongo.Database {
	return c.mc.Database(name)
}

// Ping verifies connectivity to a primary.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.mc.Ping(ctx, readpref.Primary()); err != nil {
		return classifyConnect(err)
	}
	return nil
}

// Disconnect releases the underlying client.
func (c *Client) Disconnect(ctx context.Context) error {
	return c.mc.Disconnect(ctx)
}

// Dialer opens MongoDB clients.
type Dialer struct {
	// SelectionTimeout bounds server selection. Zero selects
	// DefaultSelectionTimeout.
	SelectionTimeout time.Duration

	// SkipVerify disables the connectivity ping after connect. Without the
	// ping, transport failures surface on first query instead of at open.
	SkipVerify bool
}

// NewDialer creates a Dialer with default settings.
func NewDialer() *Dialer {
	return &Dialer{SelectionTimeout: DefaultSelectionTimeout}
}

// Dial connects a client for the given connection string. Failures are
// classified with the resource package sentinels.
func (d *Dialer) Dial(ctx context.Context, uri string) (resource.Client, error) {
	timeout := d.SelectionTimeout
	if timeout <= 0 {
		timeout = DefaultSelectionTimeout
	}

	opts, err := clientOptions(uri, timeout)
	if err != nil {
		return nil, err
	}

	mc, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, classifyConnect(err)
	}

	client := &Client{mc: mc}

	if !d.SkipVerify {
		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if err := client.Ping(pingCtx); err != nil {
			// Ping failures leave a connected topology behind; release it
			// before reporting so a retried open starts clean.
			_ = mc.Disconnect(context.WithoutCancel(ctx))
			return nil, err
		}
	}

	return client, nil
}

func clientOptions(uri string, timeout time.Duration) (*options.ClientOptions, error) {
	if uri == "" {
		return nil, resource.Classified(resource.KindConfiguration, errEmptyURI)
	}
	if !hasMongoScheme(uri) {
		return nil, resource.Classified(resource.KindInvalidURI, errBadScheme)
	}

	opts := options.Client().ApplyURI(uri).SetServerSelectionTimeout(timeout)
	if err := opts.Validate(); err != nil {
		return nil, classifyOptions(err)
	}
	return opts, nil
}

// Ensure the dialer and client satisfy the resource contracts
var (
	_ resource.DialFunc = NewDialer().Dial
	_ resource.Client   = (*Client)(nil)
	_ resource.Pinger   = (*Client)(nil)
)
