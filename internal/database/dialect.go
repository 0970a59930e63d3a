package database

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Dialect describes the SQL flavour of a target database.
type Dialect struct {
	// Name is the canonical dialect name ("mysql", "postgres", "sqlite").
	Name string

	// DriverName is the database/sql driver registered for the dialect.
	DriverName string

	// TransactionalDDL reports whether schema changes roll back with the
	// surrounding transaction. MySQL commits implicitly on most DDL.
	TransactionalDDL bool

	// Placeholder is the bind parameter style for generated queries.
	Placeholder sq.PlaceholderFormat
}

var (
	// MySQL is the dialect for MySQL and MariaDB servers.
	MySQL = Dialect{Name: "mysql", DriverName: "mysql", TransactionalDDL: false, Placeholder: sq.Question}

	// Postgres is the dialect for PostgreSQL servers, driven through pgx.
	Postgres = Dialect{Name: "postgres", DriverName: "pgx", TransactionalDDL: true, Placeholder: sq.Dollar}

	// SQLite is the dialect for SQLite database files.
	SQLite = Dialect{Name: "sqlite", DriverName: "sqlite", TransactionalDDL: true, Placeholder: sq.Question}
)

// DialectByName resolves a dialect from its name or a common alias.
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mysql", "mariadb":
		return MySQL, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "sqlite", "sqlite3", "file":
		return SQLite, nil
	}
	return Dialect{}, fmt.Errorf("%w: %q", ErrUnsupportedDialect, name)
}

// QuoteIdent quotes a table or column identifier for the dialect.
func (d Dialect) QuoteIdent(name string) string {
	if d.Name == "mysql" {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Builder returns a squirrel statement builder bound to the dialect's
// placeholder format.
func (d Dialect) Builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(d.Placeholder)
}
