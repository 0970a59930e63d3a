// Package config resolves migrator settings from flags, MIGRATOR_*
// environment variables and an optional config file, in that order of
// precedence.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/example/schema-migrator/internal/database"
	"github.com/example/schema-migrator/internal/history"
	"github.com/example/schema-migrator/internal/logging"
	"github.com/example/schema-migrator/internal/migration"
	"github.com/example/schema-migrator/internal/version"
)

// EnvPrefix prefixes every environment variable, e.g. MIGRATOR_URL.
const EnvPrefix = "MIGRATOR"

// Configuration keys. Flags use the same names.
const (
	KeyConfig              = "config"
	KeyURL                 = "url"
	KeyUser                = "user"
	KeyPassword            = "password"
	KeyLocations           = "locations"
	KeyTable               = "table"
	KeyOutOfOrder          = "out-of-order"
	KeyTarget              = "target"
	KeyBaselineVersion     = "baseline-version"
	KeyBaselineDescription = "baseline-description"
	KeyStrictNaming        = "strict-naming"
	KeyChecksum            = "checksum"
	KeyValidateOnMigrate   = "validate-on-migrate"
	KeyLockTimeout         = "lock-timeout"
	KeyLockStaleAfter      = "lock-stale-after"
	KeyMigrationTimeout    = "migration-timeout"
	KeyBusyTimeout         = "busy-timeout"
	KeyPlaceholder         = "placeholder"
	KeyPlaceholders        = "placeholders"
	KeyLogLevel            = "log-level"
	KeyLogFormat           = "log-format"
	KeyMetricsFile         = "metrics-file"
)

// DefaultLocation is scanned when no location is configured.
const DefaultLocation = "filesystem:migrations"

// Config captures the resolved settings of one migrator invocation.
type Config struct {
	Database database.Settings

	Locations           []string
	Table               string
	OutOfOrder          migration.GapPolicy
	Target              version.Version
	BaselineVersion     version.Version
	BaselineDescription string
	StrictNaming        bool
	Checksum            migration.ChecksumAlgorithm
	ValidateOnMigrate   bool
	Placeholders        migration.Placeholders

	LockTimeout      time.Duration
	LockStaleAfter   time.Duration
	MigrationTimeout time.Duration

	LogLevel    slog.Level
	LogFormat   string
	MetricsFile string
}

// ValidationError lists every missing and invalid key found by Load.
type ValidationError struct {
	Missing []string
	Invalid []string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required configuration: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid configuration values: "+strings.Join(e.Invalid, ", "))
	}
	return strings.Join(parts, "; ")
}

// RegisterFlags defines every configuration flag on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String(KeyConfig, "", "path to a YAML, TOML or JSON config file")
	fs.String(KeyURL, "", "database URL: mysql://host:3306/db, postgres://host/db or sqlite:path")
	fs.String(KeyUser, "", "database user (overrides the URL)")
	fs.String(KeyPassword, "", "database password (overrides the URL)")
	fs.StringSlice(KeyLocations, []string{DefaultLocation}, "comma-separated migration locations")
	fs.String(KeyTable, history.DefaultTable, "schema history table")
	fs.String(KeyOutOfOrder, string(migration.GapFail), "policy for unapplied versions below the current one: fail, apply or ignore")
	fs.String(KeyTarget, "", "highest version to migrate to (default latest)")
	fs.String(KeyBaselineVersion, "1", "version recorded by baseline")
	fs.String(KeyBaselineDescription, migration.DefaultBaselineDescription, "description recorded by baseline")
	fs.Bool(KeyStrictNaming, false, "fail on malformed migration file names instead of ignoring them")
	fs.String(KeyChecksum, string(migration.SHA256), "checksum algorithm: sha256 or blake2b")
	fs.Bool(KeyValidateOnMigrate, true, "validate applied checksums before migrating")
	fs.Duration(KeyLockTimeout, time.Minute, "how long to wait for the migration lock")
	fs.Duration(KeyLockStaleAfter, 0, "take over locks older than this (0 disables)")
	fs.Duration(KeyMigrationTimeout, 0, "time limit per migration (0 disables)")
	fs.Duration(KeyBusyTimeout, 5*time.Second, "SQLite busy timeout")
	fs.StringSlice(KeyPlaceholder, nil, "placeholder value as key=value (repeatable)")
	fs.String(KeyLogLevel, "info", "log level: debug, info, warn or error")
	fs.String(KeyLogFormat, logging.FormatText, "log format: text or json")
	fs.String(KeyMetricsFile, "", "write Prometheus metrics to this textfile after the run")
}

// NewViper binds fs to a viper instance reading MIGRATOR_* variables and the
// config file named by --config, if any.
func NewViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	// This normalizes "-" to an underscore in env names.
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	if path := v.GetString(KeyConfig); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}
	return v, nil
}

// Load resolves and validates the configuration held by v. Every missing or
// invalid key is reported in a single ValidationError.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Database: database.Settings{
			URL:         strings.TrimSpace(v.GetString(KeyURL)),
			User:        v.GetString(KeyUser),
			Password:    v.GetString(KeyPassword),
			BusyTimeout: v.GetDuration(KeyBusyTimeout),
		},
		Table:               strings.TrimSpace(v.GetString(KeyTable)),
		BaselineDescription: v.GetString(KeyBaselineDescription),
		StrictNaming:        v.GetBool(KeyStrictNaming),
		ValidateOnMigrate:   v.GetBool(KeyValidateOnMigrate),
		LockTimeout:         v.GetDuration(KeyLockTimeout),
		LockStaleAfter:      v.GetDuration(KeyLockStaleAfter),
		MigrationTimeout:    v.GetDuration(KeyMigrationTimeout),
		LogFormat:           strings.ToLower(strings.TrimSpace(v.GetString(KeyLogFormat))),
		MetricsFile:         v.GetString(KeyMetricsFile),
	}

	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 2)

	if cfg.Database.URL == "" {
		missing = append(missing, KeyURL)
	} else if _, err := database.DialectForURL(cfg.Database.URL); err != nil {
		invalid = append(invalid, KeyURL)
	}

	cfg.Locations = splitList(v.GetStringSlice(KeyLocations))
	if len(cfg.Locations) == 0 {
		cfg.Locations = []string{DefaultLocation}
	}

	if cfg.Table == "" {
		cfg.Table = history.DefaultTable
	}

	if policy, err := migration.ParseGapPolicy(v.GetString(KeyOutOfOrder)); err != nil {
		invalid = append(invalid, KeyOutOfOrder)
	} else {
		cfg.OutOfOrder = policy
	}

	if target := strings.TrimSpace(v.GetString(KeyTarget)); target != "" && !strings.EqualFold(target, "latest") {
		parsed, err := version.Parse(target)
		if err != nil {
			invalid = append(invalid, KeyTarget)
		} else {
			cfg.Target = parsed
		}
	}

	baseline := strings.TrimSpace(v.GetString(KeyBaselineVersion))
	if baseline == "" {
		baseline = "1"
	}
	if parsed, err := version.Parse(baseline); err != nil {
		invalid = append(invalid, KeyBaselineVersion)
	} else {
		cfg.BaselineVersion = parsed
	}

	if algo, err := migration.ParseChecksumAlgorithm(v.GetString(KeyChecksum)); err != nil {
		invalid = append(invalid, KeyChecksum)
	} else {
		cfg.Checksum = algo
	}

	if cfg.LockTimeout < 0 {
		invalid = append(invalid, KeyLockTimeout)
	}
	if cfg.LockStaleAfter < 0 {
		invalid = append(invalid, KeyLockStaleAfter)
	}
	if cfg.MigrationTimeout < 0 {
		invalid = append(invalid, KeyMigrationTimeout)
	}

	placeholders := migration.Placeholders{}
	for key, value := range v.GetStringMapString(KeyPlaceholders) {
		placeholders[key] = value
	}
	var pairs []string
	for _, pair := range v.GetStringSlice(KeyPlaceholder) {
		if strings.TrimSpace(pair) != "" {
			pairs = append(pairs, pair)
		}
	}
	if len(pairs) > 0 {
		fromFlags, err := migration.ParsePlaceholders(pairs)
		if err != nil {
			invalid = append(invalid, KeyPlaceholder)
		}
		for key, value := range fromFlags {
			placeholders[key] = value
		}
	}
	cfg.Placeholders = placeholders

	if level, err := logging.ParseLevel(v.GetString(KeyLogLevel)); err != nil {
		invalid = append(invalid, KeyLogLevel)
	} else {
		cfg.LogLevel = level
	}
	if cfg.LogFormat != logging.FormatText && cfg.LogFormat != logging.FormatJSON {
		invalid = append(invalid, KeyLogFormat)
	}

	if len(missing) > 0 || len(invalid) > 0 {
		return Config{}, &ValidationError{Missing: missing, Invalid: invalid}
	}
	return cfg, nil
}

// splitList flattens comma-separated entries, as environment variables
// carry lists in a single value.
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
