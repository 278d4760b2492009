package postgresdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool is a bounded set of reusable connections. Every connection handed out
// by Acquire, directly or through Exec, Query, QueryRow, Begin or WithConn,
// goes back to the pool exactly once. Connections that broke while in use are
// destroyed on release instead of being reused.
type Pool struct {
	pool           *pgxpool.Pool
	acquireTimeout time.Duration
	log            *slog.Logger
}

// Acquire waits for a free connection. It fails with ErrPoolExhausted when
// none became free within the acquire timeout, and with the context's error
// when ctx ends first. Callers must Release the connection.
func (p *Pool) Acquire(ctx context.Context) (*pgxpool.Conn, error) {
	actx, cancel := context.WithTimeoutCause(ctx, p.acquireTimeout, ErrPoolExhausted)
	defer cancel()

	conn, err := p.pool.Acquire(actx)
	if err == nil {
		return conn, nil
	}

	if ctx.Err() == nil && errors.Is(context.Cause(actx), ErrPoolExhausted) {
		stat := p.pool.Stat()
		p.log.WarnContext(ctx, "connection pool exhausted",
			slog.Int("acquired", int(stat.AcquiredConns())),
			slog.Int("max_conns", int(stat.MaxConns())),
			slog.Duration("waited", p.acquireTimeout),
		)
		return nil, fmt.Errorf("%w: %d of %d connections in use after %s",
			ErrPoolExhausted, stat.AcquiredConns(), stat.MaxConns(), p.acquireTimeout)
	}

	return nil, fmt.Errorf("acquiring connection: %w", err)
}

// WithConn runs fn on a dedicated connection and releases it afterwards.
func (p *Pool) WithConn(ctx context.Context, fn func(conn *pgxpool.Conn) error) error {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	return fn(conn)
}

// Exec runs sql on a pooled connection.
func (p *Pool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	defer conn.Release()

	return conn.Exec(ctx, sql, args...)
}

// Query runs sql on a pooled connection. The connection is released when the
// rows are closed or fully read.
func (p *Pool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return errRows{err: err}, err
	}

	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		conn.Release()
		return errRows{err: err}, err
	}

	return &connRows{Rows: rows, conn: conn}, nil
}

// QueryRow runs sql on a pooled connection. The connection is released by
// Scan, which must be called.
func (p *Pool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return errRow{err: err}
	}

	return &connRow{row: conn.QueryRow(ctx, sql, args...), conn: conn}
}

// Begin starts a transaction on a pooled connection. The connection is
// released by Commit or Rollback.
func (p *Pool) Begin(ctx context.Context) (pgx.Tx, error) {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		conn.Release()
		return nil, err
	}

	return &connTx{Tx: tx, conn: conn}, nil
}

// Ping checks a pooled connection.
func (p *Pool) Ping(ctx context.Context) error {
	return p.WithConn(ctx, func(conn *pgxpool.Conn) error {
		return conn.Ping(ctx)
	})
}

// Stat returns a snapshot of the pool counters.
func (p *Pool) Stat() *pgxpool.Stat {
	return p.pool.Stat()
}

// Database returns the name of the database the pool connects to.
func (p *Pool) Database() string {
	return p.pool.Config().ConnConfig.Database
}

// LogStats writes the pool counters at info level.
func (p *Pool) LogStats(ctx context.Context) {
	stat := p.pool.Stat()
	p.log.InfoContext(ctx, "database pool stats",
		slog.Int("total", int(stat.TotalConns())),
		slog.Int("acquired", int(stat.AcquiredConns())),
		slog.Int("idle", int(stat.IdleConns())),
		slog.Int("max", int(stat.MaxConns())),
		slog.Int64("empty_acquires", stat.EmptyAcquireCount()),
		slog.Int64("idle_destroyed", stat.MaxIdleDestroyCount()),
		slog.Duration("acquire_wait", stat.AcquireDuration()),
	)
}

// Close closes all connections. It waits for acquired connections to be
// released.
func (p *Pool) Close() {
	p.pool.Close()
}

type connRow struct {
	row  pgx.Row
	conn *pgxpool.Conn
}

func (r *connRow) Scan(dest ...any) error {
	defer r.conn.Release()
	return r.row.Scan(dest...)
}

type connRows struct {
	pgx.Rows
	conn *pgxpool.Conn
	once sync.Once
}

func (r *connRows) Next() bool {
	if r.Rows.Next() {
		return true
	}
	r.release()
	return false
}

func (r *connRows) Close() {
	r.release()
}

func (r *connRows) release() {
	r.once.Do(func() {
		r.Rows.Close()
		r.conn.Release()
	})
}

type connTx struct {
	pgx.Tx
	conn *pgxpool.Conn
	once sync.Once
}

func (t *connTx) Commit(ctx context.Context) error {
	err := t.Tx.Commit(ctx)
	t.release()
	return err
}

func (t *connTx) Rollback(ctx context.Context) error {
	err := t.Tx.Rollback(ctx)
	t.release()
	return err
}

func (t *connTx) release() {
	t.once.Do(t.conn.Release)
}

type errRow struct {
	err error
}

func (r errRow) Scan(...any) error { return r.err }

type errRows struct {
	err error
}

func (errRows) Close()                                       {}
func (e errRows) Err() error                                 { return e.err }
func (errRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (errRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (errRows) Next() bool                                   { return false }
func (e errRows) Scan(...any) error                          { return e.err }
func (e errRows) Values() ([]any, error)                     { return nil, e.err }
func (errRows) RawValues() [][]byte                          { return nil }
func (errRows) Conn() *pgx.Conn                              { return nil }
