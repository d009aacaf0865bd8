package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
)

// dbtx is the query surface shared by *sql.DB, *sql.Tx and the
// infrastructure database wrapper.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Conn is a database handle that can start transactions.
type Conn interface {
	dbtx
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Repos groups the repositories bound to one transaction.
type Repos struct {
	Users         *UserRepository
	Roles         *RoleRepository
	Organizations *OrganizationRepository
	Sessions      *SessionLedger
	Resets        *ResetLedger
}

func newRepos(q dbtx) Repos {
	return Repos{
		Users:         &UserRepository{db: q},
		Roles:         &RoleRepository{db: q},
		Organizations: &OrganizationRepository{db: q},
		Sessions:      &SessionLedger{db: q},
		Resets:        &ResetLedger{db: q},
	}
}

// Store owns the database handle and hands out transaction-scoped
// repositories.
type Store struct {
	conn Conn
}

// NewStore wraps conn.
func NewStore(conn Conn) *Store {
	return &Store{conn: conn}
}

// InTx runs fn inside one transaction. The transaction commits when fn
// returns nil and rolls back on error, panic or context cancellation.
//
// fn must only touch the database through the Repos it is given; the
// pool holds a single connection, so reaching for the Store from inside
// fn blocks forever.
func (s *Store) InTx(ctx context.Context, fn func(Repos) error) (err error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback() //nolint:errcheck // re-panicking
			panic(p)
		}
		if err != nil {
			tx.Rollback() //nolint:errcheck // original error wins
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = fmt.Errorf("committing transaction: %w", cerr)
		}
	}()

	return fn(newRepos(tx))
}

// Read returns repositories bound to the pool for single-statement reads.
func (s *Store) Read() Repos {
	return newRepos(s.conn)
}

// Helper functions.

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s) //nolint:errcheck // format is controlled
	return t
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation checks if a SQLite error is a UNIQUE or PRIMARY KEY
// constraint violation.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// isForeignKeyViolation checks if a SQLite error is a FOREIGN KEY violation.
// ON DELETE RESTRICT failures surface as SQLITE_CONSTRAINT_TRIGGER.
func isForeignKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintTrigger
}
