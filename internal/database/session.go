package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrSessionClosed is returned by every Session method after Close.
var ErrSessionClosed = errors.New("session is closed")

// SessionFactory produces independent sessions bound to one engine.
// By default sessions neither auto-commit nor auto-flush.
type SessionFactory struct {
	engine     *Engine
	autoCommit bool
	autoFlush  bool
}

// SessionOption configures a SessionFactory.
type SessionOption func(*SessionFactory)

// WithAutoCommit runs every statement directly on the pool instead of in a
// session transaction.
func WithAutoCommit(enabled bool) SessionOption {
	return func(f *SessionFactory) {
		f.autoCommit = enabled
	}
}

// WithAutoFlush sends pending statements before each Exec, Query or QueryRow.
func WithAutoFlush(enabled bool) SessionOption {
	return func(f *SessionFactory) {
		f.autoFlush = enabled
	}
}

// NewSessionFactory binds a factory to engine.
func NewSessionFactory(engine *Engine, opts ...SessionOption) *SessionFactory {
	f := &SessionFactory{engine: engine}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// New returns a fresh session. No connection is acquired until first use.
func (f *SessionFactory) New() *Session {
	return &Session{
		engine:     f.engine,
		autoCommit: f.autoCommit,
		autoFlush:  f.autoFlush,
	}
}

// Engine returns the engine every session of this factory is bound to.
func (f *SessionFactory) Engine() *Engine {
	return f.engine
}

// AutoCommit reports the factory's autocommit policy.
func (f *SessionFactory) AutoCommit() bool {
	return f.autoCommit
}

// AutoFlush reports the factory's autoflush policy.
func (f *SessionFactory) AutoFlush() bool {
	return f.autoFlush
}

// Scope runs fn inside a new session. The session is committed when fn
// returns nil and rolled back when it returns an error or panics. It is
// always closed.
func (f *SessionFactory) Scope(ctx context.Context, fn func(*Session) error) error {
	s := f.New()

	defer func() {
		if p := recover(); p != nil {
			_ = s.Close(ctx)
			panic(p)
		}
	}()

	if err := fn(s); err != nil {
		return errors.Join(err, s.Close(ctx))
	}

	if err := s.Commit(ctx); err != nil {
		return errors.Join(err, s.Close(ctx))
	}

	return s.Close(ctx)
}

// Session is a unit of work. Reads and writes run inside one transaction
// that begins on first use and must be finished with Commit or Rollback.
// Statements queued with Add are held until Flush or Commit.
//
// A Session is not safe for concurrent use.
type Session struct {
	engine     *Engine
	autoCommit bool
	autoFlush  bool

	tx      pgx.Tx
	pending *pgx.Batch
	closed  bool
}

// Engine returns the engine the session is bound to.
func (s *Session) Engine() *Engine {
	return s.engine
}

// InTransaction reports whether a transaction is currently open.
func (s *Session) InTransaction() bool {
	return s.tx != nil
}

// Pending returns the number of queued statements not yet flushed.
func (s *Session) Pending() int {
	if s.pending == nil {
		return 0
	}
	return s.pending.Len()
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	return s.closed
}

func (s *Session) conn(ctx context.Context) (batchSender, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}

	if s.autoCommit {
		return s.engine.db, nil
	}

	if s.tx == nil {
		tx, err := s.engine.db.Begin(ctx)
		if err != nil {
			return nil, fmt.Errorf("unable to begin transaction: %w", err)
		}
		s.tx = tx
	}

	return s.tx, nil
}

// prepare returns the connection for a statement, flushing first when
// autoflush is on.
func (s *Session) prepare(ctx context.Context) (batchSender, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	if s.autoFlush {
		if err := s.flush(ctx, db); err != nil {
			return nil, err
		}
	}

	return db, nil
}

// Exec runs sql immediately within the session.
func (s *Session) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db, err := s.prepare(ctx)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	return db.Exec(ctx, sql, args...)
}

// Query runs sql within the session.
func (s *Session) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	db, err := s.prepare(ctx)
	if err != nil {
		return nil, err
	}
	return db.Query(ctx, sql, args...)
}

// QueryRow runs sql within the session. Session errors are reported by Scan.
func (s *Session) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	db, err := s.prepare(ctx)
	if err != nil {
		return errRow{err: err}
	}
	return db.QueryRow(ctx, sql, args...)
}

// Add queues a write to be sent on the next Flush or Commit.
func (s *Session) Add(sql string, args ...any) error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.pending == nil {
		s.pending = &pgx.Batch{}
	}
	s.pending.Queue(sql, args...)
	return nil
}

// Flush sends queued writes inside the session transaction without
// committing it.
func (s *Session) Flush(ctx context.Context) error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.Pending() == 0 {
		return nil
	}

	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return s.flush(ctx, db)
}

func (s *Session) flush(ctx context.Context, db batchSender) error {
	if s.Pending() == 0 {
		return nil
	}

	b := s.pending
	s.pending = nil

	br := db.SendBatch(ctx, b)
	for i := range b.Len() {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("unable to flush statement %d of %d: %w", i+1, b.Len(), err)
		}
	}

	if err := br.Close(); err != nil {
		return fmt.Errorf("unable to flush pending statements: %w", err)
	}

	return nil
}

// Commit flushes queued writes and commits the transaction. The session
// stays usable; the next statement begins a new transaction. If the flush
// fails the transaction is rolled back.
func (s *Session) Commit(ctx context.Context) error {
	if s.closed {
		return ErrSessionClosed
	}

	if err := s.Flush(ctx); err != nil {
		s.discard(ctx)
		return err
	}

	if s.tx == nil {
		return nil
	}

	tx := s.tx
	s.tx = nil
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("unable to commit transaction: %w", err)
	}

	return nil
}

// Rollback discards queued writes and rolls back the transaction. The
// session stays usable.
func (s *Session) Rollback(ctx context.Context) error {
	if s.closed {
		return ErrSessionClosed
	}

	s.pending = nil
	if s.tx == nil {
		return nil
	}

	tx := s.tx
	s.tx = nil
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("unable to rollback transaction: %w", err)
	}

	return nil
}

func (s *Session) discard(ctx context.Context) {
	s.pending = nil
	if s.tx != nil {
		_ = s.tx.Rollback(ctx)
		s.tx = nil
	}
}

// Close rolls back anything not committed and ends the session. Calling
// Close more than once is a no-op.
func (s *Session) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}

	err := s.Rollback(ctx)
	s.closed = true
	return err
}

type errRow struct {
	err error
}

func (r errRow) Scan(...any) error {
	return r.err
}
