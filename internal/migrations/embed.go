package migrations

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// one sub directory per dialect, embeddings do not allow ../ so everything lives here
//
//go:embed sqlite3 postgres mysql
var FS embed.FS

const (
	DirSQLite   = "sqlite3"
	DirPostgres = "postgres"
	DirMySQL    = "mysql"
)

// Up applies every pending migration in dir against dbURL, a golang-migrate
// database URL such as sqlite3://newsflow.db or postgres://...
func Up(dir string, dbURL string) error {
	m, err := open(dir, dbURL)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up %s: %w", dir, err)
	}
	return nil
}

// Down reverts every migration. Only the migrate command uses it.
func Down(dir string, dbURL string) error {
	m, err := open(dir, dbURL)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate down %s: %w", dir, err)
	}
	return nil
}

// Version reports the applied schema version and whether it is dirty.
func Version(dir string, dbURL string) (uint, bool, error) {
	m, err := open(dir, dbURL)
	if err != nil {
		return 0, false, err
	}
	defer m.Close()
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

func open(dir string, dbURL string) (*migrate.Migrate, error) {
	sub, err := fs.Sub(FS, dir)
	if err != nil {
		return nil, err
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return nil, err
	}
	return migrate.NewWithSourceInstance("iofs", source, dbURL)
}
