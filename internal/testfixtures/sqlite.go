package testfixtures

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/example/schema-migrator/internal/database"
)

// SQLiteURL returns a sqlite: URL for a fresh database file inside a
// temporary directory owned by tb.
func SQLiteURL(tb testing.TB) string {
	tb.Helper()
	return "sqlite:" + filepath.Join(tb.TempDir(), "migrator.db")
}

// NewSQLiteDB opens a temporary file-backed SQLite database and closes it
// when the test finishes.
func NewSQLiteDB(tb testing.TB) *database.DB {
	tb.Helper()

	db, err := database.Open(context.Background(), database.Settings{URL: SQLiteURL(tb)})
	if err != nil {
		tb.Fatalf("failed to open sqlite database: %v", err)
	}
	tb.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

// WriteMigrations creates dir (when empty, a temporary directory) and writes
// one file per entry of files, keyed by path relative to dir. It returns dir.
func WriteMigrations(tb testing.TB, dir string, files map[string]string) string {
	tb.Helper()

	if dir == "" {
		dir = tb.TempDir()
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			tb.Fatalf("failed to create %s: %v", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			tb.Fatalf("failed to write %s: %v", path, err)
		}
	}
	return dir
}

// TableExists reports whether table exists in the SQLite database.
func TableExists(tb testing.TB, db *database.DB, table string) bool {
	tb.Helper()

	var count int
	err := db.GetContext(context.Background(), &count,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table)
	if err != nil {
		tb.Fatalf("failed to inspect sqlite_master: %v", err)
	}
	return count > 0
}
