package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// ErrPoolClosed is returned by Acquire after CloseAll.
var ErrPoolClosed = errors.New("connection pool closed")

// Pool keeps a shared free list of dedicated connections. A request binds one
// of them through a lease; while bound, the connection is used only by that
// request. Connections are closed only by Invalidate and CloseAll.
type Pool struct {
	db *sql.DB

	mu     sync.Mutex
	idle   []*sql.Conn
	open   int
	leased int
	closed bool
}

// PoolStats is a point-in-time view of the pool.
type PoolStats struct {
	Idle   int
	Leased int
	Open   int
}

type lease struct {
	conn *sql.Conn
}

type leaseKey struct{}

func leaseFrom(ctx context.Context) *lease {
	l, _ := ctx.Value(leaseKey{}).(*lease)
	return l
}

// NewPool wraps db; every pooled connection is obtained with db.Conn.
func NewPool(db *sql.DB) *Pool {
	return &Pool{db: db}
}

// Lease binds an empty connection slot to ctx. The first Acquire on the
// returned context fills it; later calls reuse the same connection until the
// release func hands it back to the free list. A lease must not be shared
// between goroutines.
func (p *Pool) Lease(ctx context.Context) (context.Context, func()) {
	l := &lease{}
	return context.WithValue(ctx, leaseKey{}, l), func() { p.release(l) }
}

// HasLease reports whether ctx already carries a lease.
func (p *Pool) HasLease(ctx context.Context) bool {
	return leaseFrom(ctx) != nil
}

// Acquire returns the connection bound to ctx's lease, or checks one out of
// the free list (opening a new one if it is empty). Without a lease the caller
// owns the connection and must hand it back with Put.
func (p *Pool) Acquire(ctx context.Context) (*sql.Conn, error) {
	l := leaseFrom(ctx)
	if l != nil && l.conn != nil {
		return l.conn, nil
	}
	conn, err := p.checkout(ctx)
	if err != nil {
		return nil, err
	}
	if l != nil {
		l.conn = conn
	}
	return conn, nil
}

// Release returns the connection bound to ctx's lease to the free list and
// clears the binding. It is a no-op when nothing is bound.
func (p *Pool) Release(ctx context.Context) {
	if l := leaseFrom(ctx); l != nil {
		p.release(l)
	}
}

// Put returns a connection obtained without a lease.
func (p *Pool) Put(conn *sql.Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.leased--
	if p.closed {
		p.open--
		_ = conn.Close()
		return
	}
	p.idle = append(p.idle, conn)
}

// Invalidate closes the connection bound to ctx's lease instead of returning
// it, so the next Acquire on ctx gets a different connection.
func (p *Pool) Invalidate(ctx context.Context) error {
	l := leaseFrom(ctx)
	if l == nil || l.conn == nil {
		return nil
	}
	conn := l.conn
	l.conn = nil

	p.mu.Lock()
	p.leased--
	p.open--
	p.mu.Unlock()
	return conn.Close()
}

// CloseAll drains and closes every idle connection plus the one bound to
// ctx's lease. Connections still leased elsewhere are closed when returned.
func (p *Pool) CloseAll(ctx context.Context) error {
	var errs []error
	if err := p.Invalidate(ctx); err != nil {
		errs = append(errs, err)
	}

	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.open -= len(idle)
	p.closed = true
	p.mu.Unlock()

	for _, conn := range idle {
		if err := conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stats returns the current pool counters.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{Idle: len(p.idle), Leased: p.leased, Open: p.open}
}

func (p *Pool) checkout(ctx context.Context) (*sql.Conn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if n := len(p.idle); n > 0 {
		conn := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.leased++
		p.mu.Unlock()
		return conn, nil
	}
	p.mu.Unlock()

	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("open connection: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		_ = conn.Close()
		return nil, ErrPoolClosed
	}
	p.open++
	p.leased++
	return conn, nil
}

func (p *Pool) release(l *lease) {
	if l.conn == nil {
		return
	}
	conn := l.conn
	l.conn = nil
	p.Put(conn)
}
