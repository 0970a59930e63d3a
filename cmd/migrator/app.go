package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/example/schema-migrator/internal/config"
	"github.com/example/schema-migrator/internal/database"
	"github.com/example/schema-migrator/internal/logging"
	"github.com/example/schema-migrator/internal/metrics"
	"github.com/example/schema-migrator/internal/migration"
)

// errReported marks errors already logged by a command.
var errReported = errors.New("command failed")

type app struct {
	stdout io.Writer
	stderr io.Writer
}

// runEnv is everything a command needs once configuration is resolved.
type runEnv struct {
	cfg     config.Config
	logger  *slog.Logger
	db      *database.DB
	manager *migration.Manager
	metrics *metrics.Recorder
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	root := a.newRootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(stderr, "ERROR: %v\n", err)
		}
		return 1
	}
	return 0
}

func (a *app) newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "migrator",
		Short:         "Versioned SQL schema migrations for MySQL, PostgreSQL and SQLite",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		a.newMigrateCommand(),
		a.newInfoCommand(),
		a.newValidateCommand(),
		a.newRepairCommand(),
		a.newBaselineCommand(),
	)
	return root
}

// execute resolves configuration, opens the database and runs fn with a
// run-scoped logger. Errors from fn are logged with their kind and recorded
// in metrics.
func (a *app) execute(cmd *cobra.Command, fn func(ctx context.Context, env *runEnv) error) error {
	v, err := config.NewViper(cmd.Flags())
	if err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	base, err := logging.New(a.stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	logger := base.With("run_id", uuid.NewString(), "command", cmd.Name())
	ctx := logging.ContextWithLogger(cmd.Context(), logger)

	recorder := metrics.New()
	err = a.withDatabase(ctx, cfg, logger, recorder, fn)
	recorder.ObserveRun(cmd.Name(), err)

	if werr := recorder.WriteTextfile(cfg.MetricsFile); werr != nil {
		logger.Warn("failed to write metrics", "path", cfg.MetricsFile, "error", werr)
	}

	if err != nil {
		logger.Error("command failed", "error", err, "error_kind", migration.ErrorKind(err))
		return fmt.Errorf("%w: %v", errReported, err)
	}
	return nil
}

func (a *app) withDatabase(ctx context.Context, cfg config.Config, logger *slog.Logger, recorder *metrics.Recorder, fn func(ctx context.Context, env *runEnv) error) error {
	locations, err := migration.ParseLocations(cfg.Locations)
	if err != nil {
		return err
	}

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			logger.Error("failed to close database", "error", cerr)
		}
	}()
	logger.Debug("connected", "url", database.Redact(cfg.Database.URL), "dialect", db.Dialect.Name)

	manager := migration.NewManager(db, migration.Options{
		Locations: locations,
		Scanner: migration.ScannerOptions{
			StrictNaming: cfg.StrictNaming,
			Checksum:     cfg.Checksum,
		},
		Table:               cfg.Table,
		InstalledBy:         cfg.Database.User,
		Gaps:                cfg.OutOfOrder,
		Target:              cfg.Target,
		BaselineVersion:     cfg.BaselineVersion,
		BaselineDescription: cfg.BaselineDescription,
		ValidateOnMigrate:   cfg.ValidateOnMigrate,
		Placeholders:        cfg.Placeholders,
		MigrationTimeout:    cfg.MigrationTimeout,
		LockTimeout:         cfg.LockTimeout,
		LockStaleAfter:      cfg.LockStaleAfter,
		Logger:              logger,
		Metrics:             recorder,
	})

	return fn(ctx, &runEnv{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		manager: manager,
		metrics: recorder,
	})
}
