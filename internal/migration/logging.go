package migration

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/schema-migrator/internal/history"
	"github.com/example/schema-migrator/internal/logging"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

// operationLogger prefers the logger carried by ctx so run-scoped attributes
// such as run_id reach every line.
func operationLogger(ctx context.Context, base *slog.Logger, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = defaultLogger(base)
	}

	pairs := []any{"component", "migration"}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if len(attrs) > 0 {
		pairs = append(pairs, attrs...)
	}
	return logger.With(pairs...)
}

// ErrorKind maps migration errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrChecksumMismatch):
		return "checksum_mismatch"
	case errors.Is(err, ErrOutOfOrder):
		return "out_of_order"
	case errors.Is(err, ErrFailedMigration):
		return "failed_migration"
	case errors.Is(err, ErrMigrationFailed):
		return "migration_failed"
	case errors.Is(err, history.ErrLockTimeout):
		return "lock_timeout"
	case errors.Is(err, history.ErrCorrupt):
		return "history_corrupt"
	case errors.Is(err, ErrHistoryNotEmpty):
		return "history_not_empty"
	case errors.Is(err, ErrDuplicateVersion):
		return "duplicate_version"
	case errors.Is(err, ErrInvalidMigrationFile), errors.Is(err, ErrInvalidVersion):
		return "invalid_migration"
	case errors.Is(err, ErrUnknownPlaceholder):
		return "unknown_placeholder"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "cancelled"
	}

	var fsErr *FileSystemError
	if errors.As(err, &fsErr) {
		return "filesystem"
	}
	var dbErr *DatabaseError
	if errors.As(err, &dbErr) {
		return "database"
	}
	return "unexpected"
}
