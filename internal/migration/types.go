package migration

import (
	"context"
	"io/fs"

	"github.com/example/schema-migrator/internal/version"
)

// Migration is a versioned schema change discovered in a location.
type Migration struct {
	Version     version.Version // Parsed version token
	Description string          // Human-readable description from the file name
	Script      string          // Path of the file relative to its location
	Location    string          // Location the file was discovered in
	Body        string          // Raw SQL content
	Checksum    string          // "<algorithm>:<hex>" of the normalised body
}

// MigrationSet is a list of migrations ordered by version ascending with no
// duplicate versions.
type MigrationSet []Migration

// Find returns the migration with version v.
func (s MigrationSet) Find(v version.Version) (Migration, bool) {
	for _, m := range s {
		if m.Version.Equal(v) {
			return m, true
		}
	}
	return Migration{}, false
}

// Latest returns the highest discovered version, or the zero version for an
// empty set.
func (s MigrationSet) Latest() version.Version {
	if len(s) == 0 {
		return version.Version{}
	}
	return s[len(s)-1].Version
}

// IgnoredFile is a file found in a location that is not a migration.
type IgnoredFile struct {
	Location string
	Script   string
	Reason   string
}

// Location is a named source of migration files.
type Location struct {
	Name string // as configured, e.g. "filesystem:db/migrations"
	FS   fs.FS
}

// ScanResult is the output of a scan.
type ScanResult struct {
	Migrations MigrationSet
	Ignored    []IgnoredFile
}

// FileScanner discovers migration files
type FileScanner interface {
	// ScanMigrations scans every location and returns the merged migration set
	ScanMigrations(locations []Location) (*ScanResult, error)

	// ValidateFileName checks if a file name follows the naming convention
	ValidateFileName(filename string) error

	// ParseMigrationFile reads and parses a single migration file
	ParseMigrationFile(location Location, path string) (*Migration, error)
}

// Locker serialises writers against one database. Acquire blocks until the
// lock is held or ctx ends and returns the function that releases it.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
