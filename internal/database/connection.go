package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // SQLite driver
)

var (
	// ErrUnsupportedDialect indicates a URL scheme with no matching dialect.
	ErrUnsupportedDialect = errors.New("unsupported database dialect")

	// ErrInvalidURL indicates a database URL that cannot be parsed.
	ErrInvalidURL = errors.New("invalid database url")
)

// Settings holds everything needed to open a target database.
type Settings struct {
	// URL locates the database, e.g. mysql://localhost:3306/app,
	// postgres://localhost/app or sqlite:data/app.db. A leading "jdbc:" is
	// accepted and ignored.
	URL string

	// User and Password override credentials embedded in URL.
	User     string
	Password string

	// BusyTimeout sets how long SQLite waits on a locked database file.
	BusyTimeout time.Duration

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DB is an open target database together with its dialect.
type DB struct {
	*sqlx.DB
	Dialect Dialect
}

// TxFunc runs inside a transaction opened by WithTransaction.
type TxFunc func(tx *sqlx.Tx) error

// Open connects to the database described by settings and verifies the
// connection with a ping.
func Open(ctx context.Context, settings Settings) (*DB, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database settings: %w", err)
	}

	dialect, target, err := splitURL(settings.URL)
	if err != nil {
		return nil, err
	}

	var sqlDB *sql.DB
	switch dialect.Name {
	case MySQL.Name:
		cfg, err := MySQLConfig(target, settings.User, settings.Password)
		if err != nil {
			return nil, err
		}
		connector, err := mysql.NewConnector(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create mysql connector: %w", err)
		}
		sqlDB = sql.OpenDB(connector)
	case Postgres.Name:
		cfg, err := PostgresConfig(target, settings.User, settings.Password)
		if err != nil {
			return nil, err
		}
		sqlDB = stdlib.OpenDB(*cfg)
	case SQLite.Name:
		dsn, err := SQLiteDSN(target, settings.BusyTimeout)
		if err != nil {
			return nil, err
		}
		sqlDB, err = sql.Open(SQLite.DriverName, dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite database: %w", err)
		}
		// Every connection to an in-memory database sees a different database.
		if isSQLiteMemory(target) {
			settings.MaxOpenConns = 1
		}
	}

	if settings.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(settings.MaxOpenConns)
	}
	if settings.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(settings.MaxIdleConns)
	}
	if settings.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(settings.ConnMaxLifetime)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", dialect.Name, err)
	}

	return &DB{DB: sqlx.NewDb(sqlDB, dialect.DriverName), Dialect: dialect}, nil
}

// Wrap adapts an already open *sql.DB. It is mostly useful in tests.
func Wrap(db *sql.DB, dialect Dialect) *DB {
	return &DB{DB: sqlx.NewDb(db, dialect.DriverName), Dialect: dialect}
}

// WithTransaction executes fn within a database transaction. If fn returns an
// error the transaction is rolled back, otherwise it is committed.
func (db *DB) WithTransaction(ctx context.Context, fn TxFunc) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Validate checks the settings without touching the network.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.URL) == "" {
		return fmt.Errorf("URL cannot be empty")
	}
	if s.BusyTimeout < 0 {
		return fmt.Errorf("BusyTimeout cannot be negative")
	}
	if s.MaxOpenConns < 0 {
		return fmt.Errorf("MaxOpenConns cannot be negative")
	}
	if s.MaxIdleConns < 0 {
		return fmt.Errorf("MaxIdleConns cannot be negative")
	}
	if s.ConnMaxLifetime < 0 {
		return fmt.Errorf("ConnMaxLifetime cannot be negative")
	}
	return nil
}

// DialectForURL reports which dialect a database URL refers to.
func DialectForURL(raw string) (Dialect, error) {
	dialect, _, err := splitURL(raw)
	return dialect, err
}

// Redact returns the URL with any embedded password masked, suitable for logs.
func Redact(raw string) string {
	u, err := url.Parse(strings.TrimPrefix(strings.TrimSpace(raw), "jdbc:"))
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}

// MySQLConfig builds a go-sql-driver configuration from a mysql:// URL.
func MySQLConfig(raw, user, password string) (*mysql.Config, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:3306"
	} else if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		cfg.Addr = net.JoinHostPort(cfg.Addr, "3306")
	}
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	if cfg.DBName == "" {
		return nil, fmt.Errorf("%w: mysql url must name a database", ErrInvalidURL)
	}
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
	}
	if user != "" {
		cfg.User = user
	}
	if password != "" {
		cfg.Passwd = password
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	query := u.Query()
	if len(query) > 0 {
		cfg.Params = make(map[string]string, len(query))
		for key := range query {
			cfg.Params[key] = query.Get(key)
		}
	}

	return cfg, nil
}

// PostgresConfig builds a pgx connection configuration from a postgres:// URL.
func PostgresConfig(raw, user, password string) (*pgx.ConnConfig, error) {
	cfg, err := pgx.ParseConfig(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if user != "" {
		cfg.User = user
	}
	if password != "" {
		cfg.Password = password
	}
	return cfg, nil
}

// SQLiteDSN converts a sqlite: URL into a modernc.org/sqlite DSN, creating
// the parent directory of file databases.
func SQLiteDSN(target string, busyTimeout time.Duration) (string, error) {
	path, query, _ := strings.Cut(target, "?")
	if path == "" {
		return "", fmt.Errorf("%w: sqlite url must name a file", ErrInvalidURL)
	}

	if !isSQLiteMemory(target) {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return "", fmt.Errorf("failed to create database directory %s: %w", dir, err)
			}
		}
	}

	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}
	params, err := url.ParseQuery(query)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()))
	params.Add("_pragma", "foreign_keys(1)")

	return path + "?" + params.Encode(), nil
}

func splitURL(raw string) (Dialect, string, error) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "jdbc:")
	scheme, rest, ok := strings.Cut(raw, ":")
	if !ok || scheme == "" {
		return Dialect{}, "", fmt.Errorf("%w: %q has no scheme", ErrInvalidURL, raw)
	}

	dialect, err := DialectByName(scheme)
	if err != nil {
		return Dialect{}, "", err
	}

	switch dialect.Name {
	case SQLite.Name:
		rest = strings.TrimPrefix(rest, "//")
		if rest == ":memory:" || rest == "" {
			rest = ":memory:"
		}
		return dialect, rest, nil
	case Postgres.Name:
		return dialect, "postgres:" + rest, nil
	default:
		return dialect, raw, nil
	}
}

func isSQLiteMemory(target string) bool {
	return strings.HasPrefix(target, ":memory:") || strings.Contains(target, "mode=memory")
}
