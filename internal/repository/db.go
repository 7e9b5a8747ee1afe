package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/RealZimboGuy/newsflow/internal/config"
	"github.com/RealZimboGuy/newsflow/internal/migrations"
)

// Target says where the database lives. For SQLite, URL is the file name.
type Target struct {
	Dialect Dialect
	URL     string
}

// TargetFromSettings reads the NEWSFLOW_DATABASE_* settings.
func TargetFromSettings() (Target, error) {
	d, err := ParseDialect(config.GetSystemSettingString(config.DATABASE_TYPE))
	if err != nil {
		return Target{}, err
	}
	if d == SQLite {
		return Target{Dialect: d, URL: config.GetSystemSettingString(config.DATABASE_SQLITE_FILE_NAME)}, nil
	}
	return Target{Dialect: d, URL: config.GetSystemSettingString(config.DATABASE_URL)}, nil
}

// MigrateURL is the golang-migrate form of the target.
func (t Target) MigrateURL() (string, error) {
	switch t.Dialect {
	case SQLite:
		if t.URL == "" {
			return "", errors.New(config.DATABASE_SQLITE_FILE_NAME + " must be set")
		}
		return "sqlite3://" + t.URL, nil
	case MySQL:
		if !strings.HasPrefix(t.URL, "mysql://") {
			return "", errors.New(config.DATABASE_URL + " must start with 'mysql://' for MySQL")
		}
		if !strings.Contains(t.URL, "parseTime=true") {
			return "", errors.New(config.DATABASE_URL + " must contain 'parseTime=true' for MySQL")
		}
		return t.URL, nil
	case Postgres:
		if t.URL == "" {
			return "", errors.New(config.DATABASE_URL + " must be set when using the POSTGRES database type")
		}
		return t.URL, nil
	}
	return "", fmt.Errorf("unknown database type %q", t.Dialect)
}

func (t Target) driver() (string, string) {
	switch t.Dialect {
	case MySQL:
		return "mysql", strings.Replace(t.URL, "mysql://", "", 1)
	case Postgres:
		return "postgres", t.URL
	}
	sep := "?"
	if strings.Contains(t.URL, "?") {
		sep = "&"
	}
	return "sqlite3", t.URL + sep + "_busy_timeout=5000"
}

func Migrate(t Target) error {
	url, err := t.MigrateURL()
	if err != nil {
		return err
	}
	slog.Info("Running migrations", "dialect", t.Dialect)
	return migrations.Up(t.Dialect.MigrationsDir(), url)
}

// Open runs pending migrations then opens and pings the database.
func Open(ctx context.Context, t Target) (*sql.DB, error) {
	if err := Migrate(t); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	name, dsn := t.driver()
	slog.Info("Opening database", "dialect", t.Dialect)
	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, err
	}
	if t.Dialect == SQLite {
		// a single writer avoids "database is locked" under the worker pool
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", t.Dialect, err)
	}
	return db, nil
}
