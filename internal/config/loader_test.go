package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/schema-migrator/internal/migration"
)

func load(t *testing.T, args ...string) (Config, error) {
	t.Helper()
	fs := pflag.NewFlagSet("migrator", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))

	v, err := NewViper(fs)
	require.NoError(t, err)
	return Load(v)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(t, "--url", "sqlite:app.db")
	require.NoError(t, err)

	assert.Equal(t, "sqlite:app.db", cfg.Database.URL)
	assert.Equal(t, 5*time.Second, cfg.Database.BusyTimeout)
	assert.Equal(t, []string{DefaultLocation}, cfg.Locations)
	assert.Equal(t, "schema_history", cfg.Table)
	assert.Equal(t, migration.GapFail, cfg.OutOfOrder)
	assert.True(t, cfg.Target.IsZero())
	assert.Equal(t, "1", cfg.BaselineVersion.String())
	assert.Equal(t, migration.DefaultBaselineDescription, cfg.BaselineDescription)
	assert.Equal(t, migration.SHA256, cfg.Checksum)
	assert.True(t, cfg.ValidateOnMigrate)
	assert.False(t, cfg.StrictNaming)
	assert.Equal(t, time.Minute, cfg.LockTimeout)
	assert.Zero(t, cfg.MigrationTimeout)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Empty(t, cfg.Placeholders)
}

func TestLoad_Flags(t *testing.T) {
	cfg, err := load(t,
		"--url", "mysql://db.internal:3306/app",
		"--user", "deploy",
		"--password", "s3cret",
		"--locations", "filesystem:db/core,filesystem:db/tenant",
		"--table", "flyway_schema_history",
		"--out-of-order", "apply",
		"--target", "2.1",
		"--baseline-version", "5",
		"--strict-naming",
		"--checksum", "blake2b",
		"--validate-on-migrate=false",
		"--lock-timeout", "30s",
		"--migration-timeout", "10m",
		"--placeholder", "schema=app",
		"--placeholder", "owner=svc",
		"--log-level", "debug",
		"--log-format", "json",
		"--metrics-file", "/var/lib/node_exporter/migrator.prom",
	)
	require.NoError(t, err)

	assert.Equal(t, "deploy", cfg.Database.User)
	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.Equal(t, []string{"filesystem:db/core", "filesystem:db/tenant"}, cfg.Locations)
	assert.Equal(t, "flyway_schema_history", cfg.Table)
	assert.Equal(t, migration.GapApply, cfg.OutOfOrder)
	assert.Equal(t, "2.1", cfg.Target.String())
	assert.Equal(t, "5", cfg.BaselineVersion.String())
	assert.True(t, cfg.StrictNaming)
	assert.Equal(t, migration.BLAKE2b, cfg.Checksum)
	assert.False(t, cfg.ValidateOnMigrate)
	assert.Equal(t, 30*time.Second, cfg.LockTimeout)
	assert.Equal(t, 10*time.Minute, cfg.MigrationTimeout)
	assert.Equal(t, migration.Placeholders{"schema": "app", "owner": "svc"}, cfg.Placeholders)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "/var/lib/node_exporter/migrator.prom", cfg.MetricsFile)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("MIGRATOR_URL", "postgres://db.internal/app")
	t.Setenv("MIGRATOR_LOCATIONS", "filesystem:a,filesystem:b")
	t.Setenv("MIGRATOR_OUT_OF_ORDER", "ignore")
	t.Setenv("MIGRATOR_LOCK_TIMEOUT", "5s")
	t.Setenv("MIGRATOR_STRICT_NAMING", "true")

	cfg, err := load(t)
	require.NoError(t, err)
	assert.Equal(t, "postgres://db.internal/app", cfg.Database.URL)
	assert.Equal(t, []string{"filesystem:a", "filesystem:b"}, cfg.Locations)
	assert.Equal(t, migration.GapIgnore, cfg.OutOfOrder)
	assert.Equal(t, 5*time.Second, cfg.LockTimeout)
	assert.True(t, cfg.StrictNaming)

	t.Run("flags take precedence", func(t *testing.T) {
		cfg, err := load(t, "--out-of-order", "fail", "--url", "sqlite:local.db")
		require.NoError(t, err)
		assert.Equal(t, migration.GapFail, cfg.OutOfOrder)
		assert.Equal(t, "sqlite:local.db", cfg.Database.URL)
	})
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "migrator.yaml")
	content := `url: sqlite:from-file.db
out-of-order: apply
table: custom_history
locations:
  - filesystem:one
  - filesystem:two
placeholders:
  schema: app
  owner: from_file
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := load(t, "--config", path, "--placeholder", "owner=from_flag")
	require.NoError(t, err)
	assert.Equal(t, "sqlite:from-file.db", cfg.Database.URL)
	assert.Equal(t, migration.GapApply, cfg.OutOfOrder)
	assert.Equal(t, "custom_history", cfg.Table)
	assert.Equal(t, []string{"filesystem:one", "filesystem:two"}, cfg.Locations)
	assert.Equal(t, migration.Placeholders{"schema": "app", "owner": "from_flag"}, cfg.Placeholders)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	fs := pflag.NewFlagSet("migrator", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--config", filepath.Join(t.TempDir(), "absent.yaml")}))

	_, err := NewViper(fs)
	require.Error(t, err)
}

func TestLoad_ReportsAllProblems(t *testing.T) {
	_, err := load(t,
		"--out-of-order", "sometimes",
		"--target", "v2",
		"--checksum", "md5",
		"--log-format", "xml",
		"--lock-timeout", "-1s",
	)
	require.Error(t, err)

	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, []string{KeyURL}, vErr.Missing)
	assert.Equal(t, []string{KeyOutOfOrder, KeyTarget, KeyChecksum, KeyLockTimeout, KeyLogFormat}, vErr.Invalid)
	assert.Equal(t,
		"missing required configuration: url; invalid configuration values: out-of-order, target, checksum, lock-timeout, log-format",
		err.Error())
}

func TestLoad_RejectsUnknownScheme(t *testing.T) {
	_, err := load(t, "--url", "oracle://db/app")

	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Empty(t, vErr.Missing)
	assert.Equal(t, []string{KeyURL}, vErr.Invalid)
}

func TestLoad_TargetLatest(t *testing.T) {
	cfg, err := load(t, "--url", "sqlite:app.db", "--target", "latest")
	require.NoError(t, err)
	assert.True(t, cfg.Target.IsZero())
}
