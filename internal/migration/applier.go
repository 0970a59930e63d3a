package migration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/go-multierror"
	"github.com/jmoiron/sqlx"

	"github.com/example/schema-migrator/internal/database"
	"github.com/example/schema-migrator/internal/history"
	"github.com/example/schema-migrator/internal/metrics"
)

// ApplierOptions configures an Applier.
type ApplierOptions struct {
	Placeholders Placeholders

	// MigrationTimeout bounds each migration. Zero means no limit.
	MigrationTimeout time.Duration

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

// ApplyResult summarises a run.
type ApplyResult struct {
	Applied  []history.Entry
	Duration time.Duration
}

// Applier executes migrations one transaction at a time and records each
// outcome in the history store.
type Applier struct {
	db      *database.DB
	store   *history.Store
	opts    ApplierOptions
	split   SplitOptions
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Recorder
}

// NewApplier creates an Applier writing history to store.
func NewApplier(db *database.DB, store *history.Store, opts ApplierOptions) *Applier {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Applier{
		db:      db,
		store:   store,
		opts:    opts,
		split:   SplitOptionsFor(db.Dialect),
		clock:   opts.Clock,
		logger:  defaultLogger(opts.Logger),
		metrics: opts.Metrics,
	}
}

// Apply runs pending in order. It stops at the first failure and returns an
// ApplyError; migrations applied before the failure stay applied.
func (a *Applier) Apply(ctx context.Context, pending []Migration) (ApplyResult, error) {
	logger := operationLogger(ctx, a.logger, "apply", "pending", len(pending))
	start := a.clock.Now()

	var result ApplyResult
	for i, m := range pending {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		logger.Info("applying migration",
			"version", m.Version.String(),
			"description", m.Description,
			"script", m.Script,
			"step", i+1)

		entry, err := a.applyOne(ctx, m)
		if err != nil {
			logger.Error("migration failed",
				"version", m.Version.String(),
				"script", m.Script,
				"error", err,
				"error_kind", ErrorKind(err))
			result.Duration = a.clock.Now().Sub(start)
			return result, err
		}

		logger.Info("migration applied",
			"version", m.Version.String(),
			"duration", entry.Duration())
		result.Applied = append(result.Applied, entry)
	}

	result.Duration = a.clock.Now().Sub(start)
	return result, nil
}

func (a *Applier) applyOne(ctx context.Context, m Migration) (history.Entry, error) {
	body, err := a.opts.Placeholders.Expand(m.Body, map[string]string{
		builtinTable:  a.store.Table(),
		builtinScript: m.Script,
	})
	if err != nil {
		return history.Entry{}, &ApplyError{Version: m.Version, Script: m.Script, Err: err}
	}

	statements := SplitStatements(body, a.split)
	if len(statements) == 0 {
		return history.Entry{}, &ApplyError{
			Version: m.Version,
			Script:  m.Script,
			Err:     fmt.Errorf("%w: no SQL statements found", ErrInvalidMigrationFile),
		}
	}

	runCtx := ctx
	if a.opts.MigrationTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, a.opts.MigrationTimeout)
		defer cancel()
	}

	start := a.clock.Now()
	entry := history.Entry{
		Version:     m.Version.String(),
		Description: m.Description,
		Type:        history.TypeSQL,
		Script:      m.Script,
		Checksum:    m.Checksum,
	}

	failedAt := 0
	var recorded history.Entry
	err = a.db.WithTransaction(runCtx, func(tx *sqlx.Tx) error {
		for i, stmt := range statements {
			if _, err := tx.ExecContext(runCtx, stmt); err != nil {
				failedAt = i + 1
				return NewDatabaseError(entry.Version, stmt, fmt.Sprintf("execute statement %d", i+1), err)
			}
		}

		entry.ExecutionTime = a.clock.Now().Sub(start).Milliseconds()
		entry.Success = true
		var err error
		recorded, err = a.store.AppendTx(runCtx, tx, entry)
		return err
	})
	elapsed := a.clock.Now().Sub(start)
	a.metrics.ObserveMigration(elapsed, err)

	if err == nil {
		return recorded, nil
	}

	applyErr := &ApplyError{Version: m.Version, Script: m.Script, Statement: failedAt, Err: err}

	// The transaction is gone; the failure is recorded outside it so it
	// survives the rollback. Use the parent context in case the migration
	// timed out.
	entry.ExecutionTime = elapsed.Milliseconds()
	entry.Success = false
	if _, recordErr := a.store.Append(context.WithoutCancel(ctx), entry); recordErr != nil {
		applyErr.Err = multierror.Append(err, fmt.Errorf("record failed run: %w", recordErr))
	}
	if errors.Is(err, context.DeadlineExceeded) && runCtx.Err() != nil {
		a.logger.Warn("migration timed out", "version", entry.Version, "timeout", a.opts.MigrationTimeout)
	}
	return history.Entry{}, applyErr
}
