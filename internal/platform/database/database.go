package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"tasker/internal/platform/config"
	"tasker/internal/platform/database/migrations"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "postgres"
)

type DB struct {
	*sql.DB
	Dialect Dialect
}

// Open connects to Postgres for postgres:// URLs and to SQLite otherwise
// ("file:tasker.db", ":memory:").
func Open(cfg config.DatabaseConfig) (*DB, error) {
	driver, dialect, dsn := resolve(cfg.URL)

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	maxConns := cfg.MaxConnections
	if dialect == DialectSQLite && strings.Contains(dsn, ":memory:") {
		// every pooled connection would get its own empty in-memory database
		maxConns = 1
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{DB: db, Dialect: dialect}, nil
}

func resolve(url string) (driver string, dialect Dialect, dsn string) {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return "pgx", DialectPostgres, url
	}

	dsn = url
	if strings.HasPrefix(dsn, "file:") && !strings.Contains(dsn, "?") {
		dsn = strings.TrimPrefix(dsn, "file:")
	}
	if dsn == "" {
		dsn = ":memory:"
	}
	if !strings.Contains(dsn, "_foreign_keys") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_foreign_keys=on"
	}
	return "sqlite3", DialectSQLite, dsn
}

// Migrate applies the embedded goose migrations in the given direction
// ("up", "down" or "status").
func Migrate(ctx context.Context, db *DB, direction string) error {
	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(string(db.Dialect)); err != nil {
		return err
	}

	switch direction {
	case "up":
		return goose.UpContext(ctx, db.DB, ".")
	case "down":
		return goose.DownContext(ctx, db.DB, ".")
	case "status":
		return goose.StatusContext(ctx, db.DB, ".")
	default:
		return fmt.Errorf("unknown migration direction %q", direction)
	}
}

// IsUniqueViolation reports whether err is a unique-constraint failure
// from either supported driver.
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
