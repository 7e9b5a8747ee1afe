package repository

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/RealZimboGuy/newsflow/internal/config"
	"github.com/RealZimboGuy/newsflow/internal/migrations"
)

// Dialect is one of the database types from NEWSFLOW_DATABASE_TYPE.
type Dialect string

const (
	Postgres Dialect = config.DATABASE_TYPE_POSTGRES
	MySQL    Dialect = config.DATABASE_TYPE_MYSQL
	SQLite   Dialect = config.DATABASE_TYPE_SQLITE
)

func ParseDialect(v string) (Dialect, error) {
	switch d := Dialect(strings.ToUpper(strings.TrimSpace(v))); d {
	case Postgres, MySQL, SQLite:
		return d, nil
	}
	return "", fmt.Errorf("unknown database type %q", v)
}

func (d Dialect) MigrationsDir() string {
	switch d {
	case Postgres:
		return migrations.DirPostgres
	case MySQL:
		return migrations.DirMySQL
	}
	return migrations.DirSQLite
}

// placeholder returns the correct bind variable for the given index.
// Postgres uses $1, $2... while MySQL and SQLite use ?
func (d Dialect) placeholder(i int) string {
	if d == Postgres {
		return "$" + strconv.Itoa(i)
	}
	return "?"
}

// rebind rewrites ? bind variables for the dialect. Queries must not contain
// literal question marks.
func (d Dialect) rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(d.placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d Dialect) supportsReturning() bool {
	return d == Postgres
}

// formatTime converts t to what the driver stores reliably. SQLite and MySQL
// get a UTC string, Postgres takes time.Time directly.
func (d Dialect) formatTime(t time.Time) any {
	switch d {
	case SQLite:
		return t.UTC().Format("2006-01-02 15:04:05.000")
	case MySQL:
		return t.UTC().Format("2006-01-02 15:04:05.000000")
	}
	return t.UTC()
}

func (d Dialect) formatNullTime(t sql.NullTime) any {
	if !t.Valid {
		return nil
	}
	return d.formatTime(t.Time)
}

// notAfter returns a predicate that column <= the next bind variable. SQLite
// compares via julianday so stored text timestamps order correctly.
func (d Dialect) notAfter(column string) string {
	if d == SQLite {
		return "julianday(" + column + ") <= julianday(?)"
	}
	return column + " <= ?"
}

// before returns a predicate that column < the next bind variable.
func (d Dialect) before(column string) string {
	if d == SQLite {
		return "julianday(" + column + ") < julianday(?)"
	}
	return column + " < ?"
}

// after returns a predicate that column > the next bind variable.
func (d Dialect) after(column string) string {
	if d == SQLite {
		return "julianday(" + column + ") > julianday(?)"
	}
	return column + " > ?"
}
