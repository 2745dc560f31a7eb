// Package sqlite implements the repository contracts on top of an SQLite
// database opened with the modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"seriesbell/internal/repository"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store owns the database handle and hands out repositories bound to it
// or to a transaction.
type Store struct {
	db   *sql.DB
	exec DBTX
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, exec: db}
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// WithExecutor routes auto-commit statements through exec, typically a
// circuit breaker wrapping the same handle. Transactions still begin on db.
func (s *Store) WithExecutor(exec DBTX) *Store {
	s.exec = exec
	return s
}

// Repositories returns repositories that auto-commit each statement.
func (s *Store) Repositories() repository.Repositories {
	return bind(s.exec)
}

// WithinTx implements repository.Transactor.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("WithinTx: BeginTx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(ctx, bind(tx)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("WithinTx: Commit: %w", err)
	}
	return nil
}

func bind(db DBTX) repository.Repositories {
	return repository.Repositories{
		Feeds:         NewFeedRepo(db),
		Items:         NewFeedItemRepo(db),
		Subscribers:   NewSubscriberRepo(db),
		Subscriptions: NewSubscriptionRepo(db),
		Settings:      NewServerSettingsRepo(db),
		Voice:         NewVoiceSessionRepo(db),
		Meta:          NewMetaRepo(db),
	}
}

// wrapWriteErr annotates err with op and maps SQLite uniqueness failures
// onto repository.ErrUniqueViolation.
func wrapWriteErr(op string, err error) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w: %w", op, repository.ErrUniqueViolation, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsBenignError reports errors that belong to normal operation and say
// nothing about database health.
func IsBenignError(err error) bool {
	return isUniqueViolation(err) ||
		errors.Is(err, sql.ErrNoRows) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func isUniqueViolation(err error) bool {
	var serr *sqlitedrv.Error
	if !errors.As(err, &serr) {
		return false
	}
	switch serr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

// Timestamps are stored as UTC unix seconds.
func toUnix(t time.Time) int64 { return t.UTC().Unix() }

func fromUnix(v int64) time.Time { return time.Unix(v, 0).UTC() }
