package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeBackend records calls made by sessions in place of a pgx pool.
type fakeBackend struct {
	beginErr error
	begun    []*fakeTx
	execs    []string
	batches  []*pgx.Batch
	batchErr error
}

func (f *fakeBackend) Begin(context.Context) (pgx.Tx, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	tx := &fakeTx{backend: f}
	f.begun = append(f.begun, tx)
	return tx, nil
}

func (f *fakeBackend) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	return pgconn.NewCommandTag("SELECT 1"), nil
}

func (f *fakeBackend) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	f.execs = append(f.execs, sql)
	return nil, nil
}

func (f *fakeBackend) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	f.execs = append(f.execs, sql)
	return fakeRow{}
}

func (f *fakeBackend) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	f.batches = append(f.batches, b)
	return &fakeBatchResults{n: b.Len(), err: f.batchErr}
}

// fakeTx embeds pgx.Tx so that only the methods sessions use need bodies.
type fakeTx struct {
	pgx.Tx

	backend     *fakeBackend
	execs       []string
	batches     []*pgx.Batch
	committed   bool
	rolledBack  bool
	commitErr   error
	rollbackErr error
}

func (t *fakeTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	t.execs = append(t.execs, sql)
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (t *fakeTx) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	t.execs = append(t.execs, sql)
	return nil, nil
}

func (t *fakeTx) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	t.execs = append(t.execs, sql)
	return fakeRow{}
}

func (t *fakeTx) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	t.batches = append(t.batches, b)
	return &fakeBatchResults{n: b.Len(), err: t.backend.batchErr}
}

func (t *fakeTx) Commit(context.Context) error {
	if t.committed || t.rolledBack {
		return pgx.ErrTxClosed
	}
	t.committed = true
	return t.commitErr
}

func (t *fakeTx) Rollback(context.Context) error {
	if t.committed || t.rolledBack {
		return pgx.ErrTxClosed
	}
	t.rolledBack = true
	return t.rollbackErr
}

type fakeBatchResults struct {
	pgx.BatchResults

	n      int
	read   int
	err    error
	closed bool
}

func (r *fakeBatchResults) Exec() (pgconn.CommandTag, error) {
	if r.read >= r.n {
		return pgconn.CommandTag{}, errors.New("no more results")
	}
	r.read++
	if r.err != nil {
		return pgconn.CommandTag{}, r.err
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (r *fakeBatchResults) Close() error {
	r.closed = true
	return nil
}

type fakeRow struct{}

func (fakeRow) Scan(dest ...any) error {
	for _, d := range dest {
		if p, ok := d.(*int); ok {
			*p = 1
		}
	}
	return nil
}

func newFakeEngine() (*Engine, *fakeBackend) {
	backend := &fakeBackend{}
	return &Engine{db: backend, prePing: true}, backend
}
