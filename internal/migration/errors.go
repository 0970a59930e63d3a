package migration

import (
	"errors"
	"fmt"
	"strings"

	"github.com/example/schema-migrator/internal/version"
)

// Migration-specific error types for different failure scenarios
var (
	// ErrMigrationFailed indicates that a migration execution failed
	ErrMigrationFailed = errors.New("migration execution failed")

	// ErrInvalidMigrationFile indicates that a migration file is malformed or invalid
	ErrInvalidMigrationFile = errors.New("invalid migration file format")

	// ErrInvalidVersion indicates that a migration version is invalid or malformed
	ErrInvalidVersion = version.ErrInvalid

	// ErrDuplicateVersion indicates that multiple migrations have the same version
	ErrDuplicateVersion = errors.New("duplicate migration version")

	// ErrOutOfOrder indicates unapplied migrations below the current version
	ErrOutOfOrder = errors.New("migration out of order")

	// ErrFailedMigration indicates a failed run recorded in history that must be repaired
	ErrFailedMigration = errors.New("failed migration in schema history")

	// ErrChecksumMismatch indicates an applied migration whose file has changed
	ErrChecksumMismatch = errors.New("migration checksum mismatch")

	// ErrHistoryNotEmpty indicates baseline was requested on a used history table
	ErrHistoryNotEmpty = errors.New("schema history is not empty")

	// ErrUnknownPlaceholder indicates a ${name} reference with no configured value
	ErrUnknownPlaceholder = errors.New("unknown placeholder")

	// ErrUnsupportedChecksum indicates an unknown checksum algorithm
	ErrUnsupportedChecksum = errors.New("unsupported checksum algorithm")
)

// ParseError reports a migration file that could not be discovered.
type ParseError struct {
	Location string // Location the file was found in
	Script   string // Path of the file within its location
	Err      error  // Underlying error
}

// Error implements the error interface
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse migration %s: %v", joinScript(e.Location, e.Script), e.Err)
}

// Unwrap returns the underlying error
func (e *ParseError) Unwrap() error {
	return e.Err
}

// OutOfOrderError lists pending migrations older than the current version.
type OutOfOrderError struct {
	Current  version.Version
	Versions []version.Version
}

// Error implements the error interface
func (e *OutOfOrderError) Error() string {
	parts := make([]string, len(e.Versions))
	for i, v := range e.Versions {
		parts[i] = v.String()
	}
	return fmt.Sprintf("%v: version(s) %s not applied but schema is already at %s",
		ErrOutOfOrder, strings.Join(parts, ", "), e.Current)
}

// Is matches ErrOutOfOrder
func (e *OutOfOrderError) Is(target error) bool {
	return target == ErrOutOfOrder
}

// FailedMigrationError reports a failed run that blocks further migration.
type FailedMigrationError struct {
	Version version.Version
	Script  string
}

// Error implements the error interface
func (e *FailedMigrationError) Error() string {
	return fmt.Sprintf("%v: version %s (%s) failed previously; fix the database and run repair",
		ErrFailedMigration, e.Version, e.Script)
}

// Is matches ErrFailedMigration
func (e *FailedMigrationError) Is(target error) bool {
	return target == ErrFailedMigration
}

// ApplyError reports which migration failed and why. The run stops at the
// first ApplyError.
type ApplyError struct {
	Version   version.Version
	Script    string
	Statement int // 1-based index of the failing statement, 0 if none ran
	Err       error
}

// Error implements the error interface
func (e *ApplyError) Error() string {
	if e.Statement > 0 {
		return fmt.Sprintf("migration %s (%s) failed at statement %d: %v", e.Version, e.Script, e.Statement, e.Err)
	}
	return fmt.Sprintf("migration %s (%s) failed: %v", e.Version, e.Script, e.Err)
}

// Unwrap returns the underlying error
func (e *ApplyError) Unwrap() error {
	return e.Err
}

// Is matches ErrMigrationFailed
func (e *ApplyError) Is(target error) bool {
	return target == ErrMigrationFailed
}

// ChecksumMismatchError reports an applied migration whose file changed.
type ChecksumMismatchError struct {
	Version  version.Version
	Script   string
	Applied  string // checksum recorded in history
	Resolved string // checksum of the file on disk
}

// Error implements the error interface
func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("%v for version %s (%s): applied %s, resolved locally %s",
		ErrChecksumMismatch, e.Version, e.Script, e.Applied, e.Resolved)
}

// Is matches ErrChecksumMismatch
func (e *ChecksumMismatchError) Is(target error) bool {
	return target == ErrChecksumMismatch
}

// FileSystemError wraps file system related errors during migration operations
type FileSystemError struct {
	Path      string // File or directory path
	Operation string // File operation (read, scan, etc.)
	Err       error  // Underlying error
}

// Error implements the error interface
func (e *FileSystemError) Error() string {
	return fmt.Sprintf("filesystem error during %s of %s: %v", e.Operation, e.Path, e.Err)
}

// Unwrap returns the underlying error
func (e *FileSystemError) Unwrap() error {
	return e.Err
}

// NewFileSystemError creates a new FileSystemError
func NewFileSystemError(path, operation string, err error) *FileSystemError {
	return &FileSystemError{
		Path:      path,
		Operation: operation,
		Err:       err,
	}
}

// DatabaseError wraps database-related errors during migration operations
type DatabaseError struct {
	Version   string // Migration version (if applicable)
	Query     string // SQL query that failed (if applicable)
	Operation string // Database operation (execute, query, etc.)
	Err       error  // Underlying error
}

// Error implements the error interface
func (e *DatabaseError) Error() string {
	if e.Version != "" {
		return fmt.Sprintf("database error in migration %s during %s: %v", e.Version, e.Operation, e.Err)
	}
	return fmt.Sprintf("database error during %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error
func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// NewDatabaseError creates a new DatabaseError
func NewDatabaseError(version, query, operation string, err error) *DatabaseError {
	return &DatabaseError{
		Version:   version,
		Query:     query,
		Operation: operation,
		Err:       err,
	}
}

func joinScript(location, script string) string {
	if location == "" {
		return script
	}
	return location + "/" + script
}
