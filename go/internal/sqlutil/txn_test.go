package sqlutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// txLog records what the fake driver was asked to do with each transaction.
type txLog struct {
	mu          sync.Mutex
	commits     int
	rollbacks   int
	rollbackErr error
}

func (l *txLog) counts() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.commits, l.rollbacks
}

type fakeConnector struct{ log *txLog }

func (c fakeConnector) Connect(context.Context) (driver.Conn, error) { return fakeConn(c), nil }
func (c fakeConnector) Driver() driver.Driver                       { return fakeDriver(c) }

type fakeDriver struct{ log *txLog }

func (d fakeDriver) Open(string) (driver.Conn, error) { return fakeConn(d), nil }

type fakeConn struct{ log *txLog }

func (c fakeConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not supported") }
func (c fakeConn) Close() error                        { return nil }
func (c fakeConn) Begin() (driver.Tx, error)           { return fakeTx(c), nil }

type fakeTx struct{ log *txLog }

func (t fakeTx) Commit() error {
	t.log.mu.Lock()
	defer t.log.mu.Unlock()
	t.log.commits++
	return nil
}

func (t fakeTx) Rollback() error {
	t.log.mu.Lock()
	defer t.log.mu.Unlock()
	t.log.rollbacks++
	return t.log.rollbackErr
}

type boundQueries struct{ tx *sql.Tx }

func bindQueries(tx *sql.Tx) *boundQueries { return &boundQueries{tx: tx} }

func openFake(t *testing.T) (*sql.DB, *txLog) {
	t.Helper()
	l := &txLog{}
	db := sql.OpenDB(fakeConnector{log: l})
	t.Cleanup(func() { db.Close() })
	return db, l
}

func TestRun_CommitsOnSuccess(t *testing.T) {
	db, l := openFake(t)

	var bound *sql.Tx
	err := Run(context.Background(), db, bindQueries, func(q *boundQueries) error {
		bound = q.tx
		return nil
	})
	require.NoError(t, err)
	assert.NotNil(t, bound)

	commits, rollbacks := l.counts()
	assert.Equal(t, 1, commits)
	assert.Zero(t, rollbacks)
}

func TestRun_RollsBackAndKeepsSentinel(t *testing.T) {
	db, l := openFake(t)
	errConflict := errors.New("version conflict")

	err := Run(context.Background(), db, bindQueries, func(*boundQueries) error { return errConflict })
	assert.ErrorIs(t, err, errConflict)

	commits, rollbacks := l.counts()
	assert.Zero(t, commits)
	assert.Equal(t, 1, rollbacks)
}

func TestRun_FailedRollbackIsJoined(t *testing.T) {
	db, l := openFake(t)
	l.rollbackErr = errors.New("connection lost")
	errConflict := errors.New("version conflict")

	err := Run(context.Background(), db, bindQueries, func(*boundQueries) error { return errConflict })
	assert.ErrorIs(t, err, errConflict)
	assert.ErrorIs(t, err, l.rollbackErr)
}

func TestRun_RollsBackOnPanic(t *testing.T) {
	db, l := openFake(t)

	assert.Panics(t, func() {
		_ = Run(context.Background(), db, bindQueries, func(*boundQueries) error { panic("boom") })
	})
	commits, rollbacks := l.counts()
	assert.Zero(t, commits)
	assert.Equal(t, 1, rollbacks)
}
