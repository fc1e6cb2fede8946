package database

import (
	"context"
	"embed"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrations embed.FS

// goose keeps its dialect and filesystem in package globals.
var migrateMu sync.Mutex

func init() {
	// modernc registers itself as "sqlite", which sqlx does not know about.
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Open connects to PostgreSQL for postgres:// URLs and treats anything else as a SQLite file path.
func Open(databaseURL string) (*sqlx.DB, error) {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		return NewPostgres(databaseURL)
	}
	return NewSQLite(databaseURL)
}

// NewPostgres creates a new PostgreSQL connection pool
func NewPostgres(databaseURL string) (*sqlx.DB, error) {
	db, err := sqlx.Connect(DriverPostgres, databaseURL)
	if err != nil {
		return nil, err
	}

	// Single-writer batch tool: a small pool is plenty.
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	log.Debug().Msg("Connected to PostgreSQL")
	return db, nil
}

// NewSQLite opens (creating if needed) a SQLite database file.
func NewSQLite(path string) (*sqlx.DB, error) {
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_time_format=sqlite"

	db, err := sqlx.Connect(DriverSQLite, dsn)
	if err != nil {
		return nil, err
	}
	// One writer at a time; a second connection would only wait on the file lock.
	db.SetMaxOpenConns(1)

	log.Debug().Str("path", path).Msg("Opened SQLite database")
	return db, nil
}

// Close closes the database connection
func Close(db *sqlx.DB) {
	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing database connection")
	}
}

// Migrate applies the embedded schema for the driver db was opened with.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	dialect, dir := "sqlite3", "migrations/sqlite"
	if db.DriverName() == DriverPostgres {
		dialect, dir = "postgres", "migrations/postgres"
	}

	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{})
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db.DB, dir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Version returns the applied schema version.
func Version(ctx context.Context, db *sqlx.DB) (int64, error) {
	dialect := "sqlite3"
	if db.DriverName() == DriverPostgres {
		dialect = "postgres"
	}

	migrateMu.Lock()
	defer migrateMu.Unlock()

	if err := goose.SetDialect(dialect); err != nil {
		return 0, fmt.Errorf("set goose dialect: %w", err)
	}
	return goose.GetDBVersionContext(ctx, db.DB)
}

type gooseLogger struct{}

func (gooseLogger) Printf(format string, v ...interface{}) {
	log.Debug().Str("component", "goose").Msgf(strings.TrimSpace(format), v...)
}

func (gooseLogger) Fatalf(format string, v ...interface{}) {
	log.Fatal().Str("component", "goose").Msgf(strings.TrimSpace(format), v...)
}
