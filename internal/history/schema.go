package history

import (
	"fmt"

	"github.com/example/schema-migrator/internal/database"
)

var entryColumns = []string{
	"installed_rank",
	"version",
	"description",
	"type",
	"script",
	"checksum",
	"installed_by",
	"installed_on",
	"execution_time",
	"success",
}

func createHistoryTableSQL(d database.Dialect, table string) string {
	name := d.QuoteIdent(table)
	switch d.Name {
	case database.MySQL.Name:
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	installed_rank INT NOT NULL,
	version VARCHAR(50) NOT NULL,
	description VARCHAR(200) NOT NULL,
	type VARCHAR(20) NOT NULL,
	script VARCHAR(1000) NOT NULL,
	checksum VARCHAR(160) NOT NULL DEFAULT '',
	installed_by VARCHAR(100) NOT NULL,
	installed_on DATETIME(3) NOT NULL,
	execution_time INT NOT NULL,
	success BOOL NOT NULL,
	PRIMARY KEY (installed_rank)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`, name)
	case database.Postgres.Name:
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	installed_rank INTEGER NOT NULL PRIMARY KEY,
	version VARCHAR(50) NOT NULL,
	description VARCHAR(200) NOT NULL,
	type VARCHAR(20) NOT NULL,
	script VARCHAR(1000) NOT NULL,
	checksum VARCHAR(160) NOT NULL DEFAULT '',
	installed_by VARCHAR(100) NOT NULL,
	installed_on TIMESTAMPTZ NOT NULL,
	execution_time INTEGER NOT NULL,
	success BOOLEAN NOT NULL
)`, name)
	default:
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	installed_rank INTEGER NOT NULL PRIMARY KEY,
	version VARCHAR(50) NOT NULL,
	description VARCHAR(200) NOT NULL,
	type VARCHAR(20) NOT NULL,
	script VARCHAR(1000) NOT NULL,
	checksum VARCHAR(160) NOT NULL DEFAULT '',
	installed_by VARCHAR(100) NOT NULL,
	installed_on TIMESTAMP NOT NULL,
	execution_time INTEGER NOT NULL,
	success BOOLEAN NOT NULL
)`, name)
	}
}

func createLockTableSQL(d database.Dialect, table string) string {
	name := d.QuoteIdent(table)
	switch d.Name {
	case database.MySQL.Name:
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	lock_name VARCHAR(64) NOT NULL,
	owner VARCHAR(64) NOT NULL,
	acquired_at DATETIME(3) NOT NULL,
	PRIMARY KEY (lock_name)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`, name)
	case database.Postgres.Name:
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	lock_name VARCHAR(64) NOT NULL PRIMARY KEY,
	owner VARCHAR(64) NOT NULL,
	acquired_at TIMESTAMPTZ NOT NULL
)`, name)
	default:
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	lock_name VARCHAR(64) NOT NULL PRIMARY KEY,
	owner VARCHAR(64) NOT NULL,
	acquired_at TIMESTAMP NOT NULL
)`, name)
	}
}

// tableExistsSQL returns a query counting tables with the bound name in the
// current schema.
func tableExistsSQL(d database.Dialect) string {
	switch d.Name {
	case database.MySQL.Name:
		return `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?`
	case database.Postgres.Name:
		return `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1`
	default:
		return `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
	}
}
