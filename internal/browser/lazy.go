package browser

import (
	"context"
	"sync"
)

// Lazy launches its session on first use and remembers a failed launch, so
// callers that only sometimes need a browser pay for it at most once.
type Lazy struct {
	session *Session
	opts    LaunchOptions

	mu  sync.Mutex
	err error
}

// NewLazy wraps an unlaunched session.
func NewLazy(session *Session, opts LaunchOptions) *Lazy {
	return &Lazy{session: session, opts: opts}
}

// Get returns the launched session, launching it if needed. A launch that
// failed for reasons other than ctx cancellation is not retried.
func (l *Lazy) Get(ctx context.Context) (*Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	if err := l.session.Launch(ctx, l.opts); err != nil {
		if ctx.Err() == nil {
			l.err = err
		}
		return nil, err
	}
	return l.session, nil
}

// Close closes the underlying session.
func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err == nil {
		l.err = ErrClosed
	}
	return l.session.Close()
}
