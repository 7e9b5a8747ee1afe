package testsupport

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/RealZimboGuy/newsflow/internal/migrations"
)

// OpenSQLite returns a migrated SQLite database in a temp dir that is closed
// when the test ends.
func OpenSQLite(t testing.TB) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "newsflow-test.db")
	if err := migrations.Up(migrations.DirSQLite, "sqlite3://"+path); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}
