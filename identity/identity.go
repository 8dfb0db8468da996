package identity

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// Sentinel errors for identity resolution.
var (
	// ErrNoKey indicates the context carries no bound identity key.
	ErrNoKey = errors.New("identity: no key bound to context")
)

// Mode identifies the scheme that produced a context key.
type Mode int

const (
	// ModeThread keys identify worker goroutines spawned with an explicit
	// counter-assigned identity.
	ModeThread Mode = iota
	// ModeTask keys identify cooperative tasks carrying a token through
	// their call chain.
	ModeTask
)

func (m Mode) String() string {
	switch m {
	case ModeThread:
		return "thread"
	case ModeTask:
		return "task"
	default:
		return "unknown"
	}
}

// Provider derives the identity key of the current unit of execution.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Uniqueness: keys returned to concurrently live contexts must be distinct;
//   reuse after a context ends is acceptable.
// - Purity: implementations must not allocate external resources.
type Provider interface {
	// Mode returns the identity scheme of this provider.
	Mode() Mode

	// Bind attaches a fresh identity key to ctx and returns it. Call once
	// at worker spawn or task start; nested Bind calls replace the key.
	Bind(ctx context.Context) (context.Context, string)

	// CurrentKey returns the key bound to ctx, or ErrNoKey if the context
	// was never bound.
	CurrentKey(ctx context.Context) (string, error)
}

// provider mints keys with an injected generator and stores them in context.
type provider struct {
	mode Mode
	mint func() string
}

// NewThreadProvider returns a Provider for worker goroutines. Keys are minted
// from a monotonically increasing counter, so two live workers can never
// share an identity.
func NewThreadProvider() Provider {
	var seq atomic.Uint64
	return &provider{
		mode: ModeThread,
		mint: func() string {
			return "thread-" + strconv.FormatUint(seq.Add(1), 10)
		},
	}
}

// NewTaskProvider returns a Provider for cooperative tasks. Keys are UUID
// tokens, safe to mint from any goroutine without coordination.
func NewTaskProvider() Provider {
	return &provider{
		mode: ModeTask,
		mint: func() string {
			return "task-" + uuid.NewString()
		},
	}
}

func (p *provider) Mode() Mode {
	return p.mode
}

func (p *provider) Bind(ctx context.Context) (context.Context, string) {
	key := p.mint()
	return WithKey(ctx, p.mode, key), key
}

func (p *provider) CurrentKey(ctx context.Context) (string, error) {
	key := KeyFromContext(ctx, p.mode)
	if key == "" {
		return "", ErrNoKey
	}
	return key, nil
}

// Ensure provider implements Provider
var _ Provider = (*provider)(nil)
