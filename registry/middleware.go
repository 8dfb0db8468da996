package registry

import (
	"context"
	"net/http"

	"github.com/nivwer/mdb-singleton/observe"
	"github.com/nivwer/mdb-singleton/resource"
)

// Context key for the per-request managed connection.
type contextKey int

const managedKey contextKey = iota

// FromContext retrieves the managed connection a Middleware attached to the
// request context. Returns nil if acquisition failed or no middleware ran.
func FromContext(ctx context.Context) *resource.Managed {
	m, _ := ctx.Value(managedKey).(*resource.Managed)
	return m
}

// Middleware acquires a connection once per inbound request and attaches it
// to the request context. The request is the unit of work: a fresh identity
// key is bound at entry and its entry is released after the handler returns.
// A key bound upstream is reused instead, and its entry is left alone; the
// upstream owner decides when to release it.
//
// A failed open never fails the request here; the handler observes a nil
// FromContext and decides how to degrade.
func (r *Registry) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ctx := req.Context()

		key, err := r.provider.CurrentKey(ctx)
		minted := err != nil
		if minted {
			ctx, key = r.provider.Bind(ctx)
		}

		m, err := r.Acquire(ctx)
		if err != nil {
			r.logger.Error(ctx, "request connection unavailable",
				observe.Field{Key: "resource.key", Value: key},
				observe.Field{Key: "error", Value: err.Error()},
			)
			next.ServeHTTP(w, req.WithContext(ctx))
			return
		}

		if minted {
			defer r.Release(ctx, key)
		}
		next.ServeHTTP(w, req.WithContext(context.WithValue(ctx, managedKey, m)))
	})
}
