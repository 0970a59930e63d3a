// Package history persists the schema history ledger inside the target
// database and provides the advisory lock that serialises writers.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"os/user"
	"unicode/utf8"

	"github.com/benbjohnson/clock"
	"github.com/jmoiron/sqlx"

	"github.com/example/schema-migrator/internal/database"
)

// DefaultTable is the name of the history table when none is configured.
const DefaultTable = "schema_history"

const maxDescriptionLength = 200

// StoreOptions configures a Store.
type StoreOptions struct {
	// Table names the history table. Defaults to DefaultTable.
	Table string

	// InstalledBy is written to every appended entry. Defaults to the
	// operating system user.
	InstalledBy string

	Clock  clock.Clock
	Logger *slog.Logger
}

// Store reads and appends schema history entries. Entries are never updated
// or deleted.
type Store struct {
	db          *database.DB
	table       string
	installedBy string
	clock       clock.Clock
	logger      *slog.Logger
}

// NewStore creates a Store for db.
func NewStore(db *database.DB, opts StoreOptions) *Store {
	if opts.Table == "" {
		opts.Table = DefaultTable
	}
	if opts.InstalledBy == "" {
		opts.InstalledBy = currentUser()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Store{
		db:          db,
		table:       opts.Table,
		installedBy: opts.InstalledBy,
		clock:       opts.Clock,
		logger:      opts.Logger,
	}
}

// Table returns the history table name.
func (s *Store) Table() string {
	return s.table
}

// Init creates the history table if it does not exist.
func (s *Store) Init(ctx context.Context) error {
	query := createHistoryTableSQL(s.db.Dialect, s.table)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create history table %s: %w", s.table, err)
	}
	return nil
}

// Exists reports whether the history table has been created.
func (s *Store) Exists(ctx context.Context) (bool, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, tableExistsSQL(s.db.Dialect), s.table); err != nil {
		return false, fmt.Errorf("check history table %s: %w", s.table, err)
	}
	return count > 0, nil
}

// Entries returns every history entry ordered by installed rank. A missing
// history table yields no entries.
func (s *Store) Entries(ctx context.Context) ([]Entry, error) {
	exists, err := s.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return s.entries(ctx, s.db)
}

// Snapshot folds the current history into one record per version.
func (s *Store) Snapshot(ctx context.Context) (*Snapshot, error) {
	entries, err := s.Entries(ctx)
	if err != nil {
		return nil, err
	}
	return Fold(entries)
}

// Append writes e as the next entry. InstalledRank, InstalledBy and
// InstalledOn are assigned by the store.
func (s *Store) Append(ctx context.Context, e Entry) (Entry, error) {
	return s.append(ctx, s.db, e)
}

// AppendTx is like Append but writes within tx, so the entry commits or rolls
// back with the migration it describes.
func (s *Store) AppendTx(ctx context.Context, tx *sqlx.Tx, e Entry) (Entry, error) {
	return s.append(ctx, tx, e)
}

func (s *Store) entries(ctx context.Context, q sqlx.QueryerContext) ([]Entry, error) {
	query, args, err := s.db.Dialect.Builder().
		Select(entryColumns...).
		From(s.db.Dialect.QuoteIdent(s.table)).
		OrderBy("installed_rank").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build history query: %w", err)
	}

	var entries []Entry
	if err := sqlx.SelectContext(ctx, q, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("query history table %s: %w", s.table, err)
	}
	return entries, nil
}

func (s *Store) append(ctx context.Context, ext sqlx.ExtContext, e Entry) (Entry, error) {
	rankQuery, _, err := s.db.Dialect.Builder().
		Select("COALESCE(MAX(installed_rank), 0)").
		From(s.db.Dialect.QuoteIdent(s.table)).
		ToSql()
	if err != nil {
		return Entry{}, fmt.Errorf("build rank query: %w", err)
	}

	var rank int
	if err := sqlx.GetContext(ctx, ext, &rank, rankQuery); err != nil {
		return Entry{}, fmt.Errorf("read installed rank: %w", err)
	}

	e.InstalledRank = rank + 1
	e.InstalledBy = s.installedBy
	e.InstalledOn = s.clock.Now().UTC()
	e.Description = truncate(e.Description, maxDescriptionLength)

	query, args, err := s.db.Dialect.Builder().
		Insert(s.db.Dialect.QuoteIdent(s.table)).
		Columns(entryColumns...).
		Values(
			e.InstalledRank,
			e.Version,
			e.Description,
			string(e.Type),
			e.Script,
			e.Checksum,
			e.InstalledBy,
			e.InstalledOn,
			e.ExecutionTime,
			e.Success,
		).
		ToSql()
	if err != nil {
		return Entry{}, fmt.Errorf("build history insert: %w", err)
	}

	if _, err := ext.ExecContext(ctx, query, args...); err != nil {
		return Entry{}, fmt.Errorf("append history entry for version %s: %w", e.Version, err)
	}

	s.logger.Debug("history entry appended",
		"table", s.table,
		"rank", e.InstalledRank,
		"version", e.Version,
		"type", string(e.Type),
		"success", e.Success)

	return e, nil
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "unknown"
}
