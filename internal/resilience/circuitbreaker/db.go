package circuitbreaker

import (
	"context"
	"database/sql"
	"time"

	"github.com/sony/gobreaker"
)

// DBCircuitBreaker wraps a database handle with circuit breaker protection.
// It satisfies the DBTX interface of the sqlite store so that repositories
// can run through it outside of transactions.
type DBCircuitBreaker struct {
	cb *CircuitBreaker
	db *sql.DB
}

// DBConfig returns configuration for the database circuit breaker.
// SQLite failures are local (disk full, locked file), so the circuit only
// trips when every request in the window fails.
func DBConfig() Config {
	return Config{
		Name:             "database",
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 1.0,
		MinRequests:      5,
	}
}

// NewDBCircuitBreaker wraps db with DBConfig. benign reports errors that are
// part of normal operation (constraint violations, cancelled requests) and
// must not trip the circuit. It may be nil.
func NewDBCircuitBreaker(db *sql.DB, benign func(error) bool) *DBCircuitBreaker {
	cfg := DBConfig()
	if benign != nil {
		cfg.IsSuccessful = func(err error) bool { return err == nil || benign(err) }
	}
	return NewDBCircuitBreakerWithConfig(db, cfg)
}

// NewDBCircuitBreakerWithConfig creates a database circuit breaker with custom configuration.
func NewDBCircuitBreakerWithConfig(db *sql.DB, cfg Config) *DBCircuitBreaker {
	return &DBCircuitBreaker{
		cb: New(cfg),
		db: db,
	}
}

// QueryContext executes a query with circuit breaker protection.
// If the circuit is open, it returns gobreaker.ErrOpenState without hitting the database.
func (dcb *DBCircuitBreaker) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	result, err := dcb.cb.Execute(func() (interface{}, error) {
		return dcb.db.QueryContext(ctx, query, args...)
	})
	if err != nil {
		return nil, err
	}
	return result.(*sql.Rows), nil
}

// ExecContext executes a statement with circuit breaker protection.
func (dcb *DBCircuitBreaker) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	result, err := dcb.cb.Execute(func() (interface{}, error) {
		return dcb.db.ExecContext(ctx, query, args...)
	})
	if err != nil {
		return nil, err
	}
	return result.(sql.Result), nil
}

// QueryRowContext bypasses the breaker: *sql.Row defers its error until Scan.
func (dcb *DBCircuitBreaker) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return dcb.db.QueryRowContext(ctx, query, args...)
}

// Name returns the breaker name.
func (dcb *DBCircuitBreaker) Name() string {
	return dcb.cb.Name()
}

// State returns the current state of the circuit breaker.
func (dcb *DBCircuitBreaker) State() gobreaker.State {
	return dcb.cb.State()
}

// Counts returns the request and failure counts of the current window.
func (dcb *DBCircuitBreaker) Counts() gobreaker.Counts {
	return dcb.cb.Counts()
}

// IsOpen returns true if the circuit breaker is in the open state.
func (dcb *DBCircuitBreaker) IsOpen() bool {
	return dcb.cb.IsOpen()
}

// DB returns the underlying database handle. Transactions start here.
func (dcb *DBCircuitBreaker) DB() *sql.DB {
	return dcb.db
}
