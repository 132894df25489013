// Package session owns the live connection of an adapter and its transaction state.
//
// A session pins the pool to one connection so that everything an adapter runs, including
// the statements inside an open transaction, is seen by the same backend session. While a
// transaction is open every Exec/Select/Get is routed through it.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/burugo/schemaforge/common"
)

// Session is a single-connection handle plus the active transaction, if any.
type Session struct {
	engine string

	mu         sync.Mutex
	db         *sqlx.DB
	tx         *sqlx.Tx
	logEnabled atomic.Bool
}

// Open connects with driverName/dsn and verifies the connection. engine is only used in
// log lines and errors ("PostgreSQL", "MySQL", "SQLite").
func Open(ctx context.Context, engine, driverName, dsn string) (*Session, error) {
	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, &common.ConnectionError{Adapter: engine, Err: err}
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &common.ConnectionError{Adapter: engine, Err: err}
	}
	log.Printf("%s session opened.", engine)
	s := &Session{engine: engine, db: db}
	s.logEnabled.Store(true)
	return s, nil
}

// EnableLog turns statement logging on or off.
func (s *Session) EnableLog(enable bool) {
	s.logEnabled.Store(enable)
}

func (s *Session) logf(format string, args ...any) {
	if s.logEnabled.Load() {
		log.Printf(format, args...)
	}
}

// DB exposes the underlying handle. It is nil once the session is closed.
func (s *Session) DB() *sqlx.DB {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db
}

// Connected reports whether the session still holds a connection.
func (s *Session) Connected() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db != nil
}

// Close rolls back any open transaction and releases the connection. Closing twice is a no-op.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	if s.tx != nil {
		if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			log.Printf("%s: rollback on close failed: %v", s.engine, err)
		}
		s.tx = nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return fmt.Errorf("%s: close: %w", s.engine, err)
	}
	log.Printf("%s session closed.", s.engine)
	return nil
}

// InTransaction reports whether a transaction is open.
func (s *Session) InTransaction() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx != nil
}

// Begin opens a transaction. Nesting is rejected.
func (s *Session) Begin(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return &common.NotConnectedError{Op: "begin transaction"}
	}
	if s.tx != nil {
		return common.ErrTransactionInProgress
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return &common.StatementExecutionError{SQL: "BEGIN", Err: err}
	}
	s.tx = tx
	s.logf("DB Tx Begin (%s)", s.engine)
	return nil
}

// Commit commits the open transaction.
func (s *Session) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx == nil {
		return common.ErrNoTransaction
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Commit(); err != nil {
		return &common.StatementExecutionError{SQL: "COMMIT", Err: err}
	}
	s.logf("DB Tx Commit (%s)", s.engine)
	return nil
}

// Rollback discards the open transaction.
func (s *Session) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx == nil {
		return common.ErrNoTransaction
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Rollback(); err != nil {
		return &common.StatementExecutionError{SQL: "ROLLBACK", Err: err}
	}
	s.logf("DB Tx Rollback (%s)", s.engine)
	return nil
}

// handle returns the transaction when one is open, the pool otherwise.
func (s *Session) handle(op string) (sqlx.ExtContext, error) {
	if s == nil {
		return nil, &common.NotConnectedError{Op: op}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, &common.NotConnectedError{Op: op}
	}
	if s.tx != nil {
		return s.tx, nil
	}
	return s.db, nil
}

// Exec runs a statement. Driver errors come back wrapped in StatementExecutionError.
func (s *Session) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	h, err := s.handle("exec")
	if err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := h.ExecContext(ctx, query, args...)
	duration := time.Since(start)
	if err != nil {
		s.logf("DB Exec Error (%s): %s [%v] (%s) - %v", s.engine, query, args, duration, err)
		return nil, &common.StatementExecutionError{SQL: query, Err: err}
	}
	s.logf("DB Exec (%s): %s [%v] (%s)", s.engine, query, args, duration)
	return res, nil
}

// Select scans all rows of query into dest, a pointer to a slice.
func (s *Session) Select(ctx context.Context, dest any, query string, args ...any) error {
	h, err := s.handle("select")
	if err != nil {
		return err
	}
	start := time.Now()
	err = sqlx.SelectContext(ctx, h, dest, query, args...)
	duration := time.Since(start)
	if err != nil {
		s.logf("DB Select Error (%s): %s [%v] (%s) - %v", s.engine, query, args, duration, err)
		return &common.StatementExecutionError{SQL: query, Err: err}
	}
	s.logf("DB Select (%s): %s [%v] (%s)", s.engine, query, args, duration)
	return nil
}

// Get scans a single row into dest. sql.ErrNoRows is returned as-is.
func (s *Session) Get(ctx context.Context, dest any, query string, args ...any) error {
	h, err := s.handle("get")
	if err != nil {
		return err
	}
	start := time.Now()
	err = sqlx.GetContext(ctx, h, dest, query, args...)
	duration := time.Since(start)
	if errors.Is(err, sql.ErrNoRows) {
		s.logf("DB Get (No Rows - %s): %s [%v] (%s)", s.engine, query, args, duration)
		return sql.ErrNoRows
	}
	if err != nil {
		s.logf("DB Get Error (%s): %s [%v] (%s) - %v", s.engine, query, args, duration, err)
		return &common.StatementExecutionError{SQL: query, Err: err}
	}
	s.logf("DB Get (%s): %s [%v] (%s)", s.engine, query, args, duration)
	return nil
}

// Exists runs a query returning a single count-like value and reports whether it is > 0.
func (s *Session) Exists(ctx context.Context, query string, args ...any) (bool, error) {
	var n int64
	if err := s.Get(ctx, &n, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return n > 0, nil
}
