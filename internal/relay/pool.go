// ABOUTME: Explicit relay pool owning one lazily dialed connection per relay URL.
// ABOUTME: Constructed once and passed to the discovery engine; dials are coalesced per URL.
package relay

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"
)

// DefaultDialTimeout bounds a single relay dial.
const DefaultDialTimeout = 4 * time.Second

// Pool manages connections to a fixed set of relays.
type Pool struct {
	urls        []string
	dialTimeout time.Duration
	logger      *log.Logger

	mu    sync.Mutex
	conns map[string]*Conn
	dials singleflight.Group
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithDialTimeout sets the per-relay dial timeout.
func WithDialTimeout(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.dialTimeout = d
		}
	}
}

// WithLogger sets the pool logger.
func WithLogger(logger *log.Logger) PoolOption {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPool creates a pool for the given relay URLs. No connection is opened
// until the first subscription.
func NewPool(urls []string, opts ...PoolOption) *Pool {
	p := &Pool{
		urls:        append([]string(nil), urls...),
		dialTimeout: DefaultDialTimeout,
		logger:      log.New(io.Discard),
		conns:       make(map[string]*Conn),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Relays returns the configured relay URLs.
func (p *Pool) Relays() []string {
	return append([]string(nil), p.urls...)
}

// Subscribe runs one subscription against url, dialing it first if needed.
func (p *Pool) Subscribe(ctx context.Context, url string, filter Filter, out chan<- Event) error {
	conn, err := p.conn(ctx, url)
	if err != nil {
		return err
	}
	return conn.Subscribe(ctx, filter, out)
}

func (p *Pool) conn(ctx context.Context, url string) (*Conn, error) {
	p.mu.Lock()
	if c, ok := p.conns[url]; ok && !c.Closed() {
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	ch := p.dials.DoChan(url, func() (any, error) {
		dialCtx, cancel := context.WithTimeout(context.Background(), p.dialTimeout)
		defer cancel()
		c, err := Dial(dialCtx, url, p.logger)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.conns[url] = c
		p.mu.Unlock()
		p.logger.Debug("connected", "relay", url)
		return c, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Conn), nil
	case <-ctx.Done():
		return nil, &DialError{URL: url, Err: ctx.Err()}
	}
}

// Close closes every open connection.
func (p *Pool) Close() error {
	p.mu.Lock()
	conns := p.conns
	p.conns = make(map[string]*Conn)
	p.mu.Unlock()

	for url, c := range conns {
		if err := c.Close(); err != nil {
			p.logger.Debug("close relay", "relay", url, "err", err)
		}
	}
	return nil
}
