// Package dbtest opens throwaway, fully migrated SQLite databases for tests.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/khatabook/creditbook/internal/pkg/database"
)

// NewSQLite returns a migrated database backed by a file in t.TempDir().
func NewSQLite(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := database.NewSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })

	require.NoError(t, database.Migrate(context.Background(), db))
	return db
}

// Count returns the number of rows in table matching the optional where clause.
func Count(t *testing.T, db *sqlx.DB, table, where string, args ...interface{}) int {
	t.Helper()

	query := "SELECT COUNT(*) FROM " + table
	if where != "" {
		query += " WHERE " + where
	}
	var n int
	require.NoError(t, db.Get(&n, db.Rebind(query), args...))
	return n
}
