package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Queryer is the subset of sqlx used by repositories.
// Both *sqlx.DB and *sqlx.Tx satisfy it, so a repository method can run
// standalone or as one step of a larger transaction.
type Queryer interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// WithTx begins a transaction, runs fn with it, and commits on success.
// Any error or panic from fn rolls the transaction back; panics are rethrown.
func WithTx(ctx context.Context, db *sqlx.DB, fn func(ctx context.Context, tx Queryer) error) (err error) {
	return withTx(ctx, db, nil, fn)
}

// WithReadTx is WithTx with a read-only transaction, used for consistent snapshots.
func WithReadTx(ctx context.Context, db *sqlx.DB, fn func(ctx context.Context, tx Queryer) error) error {
	return withTx(ctx, db, &sql.TxOptions{ReadOnly: db.DriverName() == DriverPostgres}, fn)
}

func withTx(ctx context.Context, db *sqlx.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx Queryer) error) (err error) {
	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}

// IsUniqueViolation reports whether err is a unique constraint failure on either backend.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			(code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(liteErr.Error(), "UNIQUE"))
	}
	return false
}
