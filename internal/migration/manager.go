package migration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/example/schema-migrator/internal/database"
	"github.com/example/schema-migrator/internal/history"
	"github.com/example/schema-migrator/internal/metrics"
	"github.com/example/schema-migrator/internal/version"
)

// DefaultBaselineDescription is recorded when baseline is run without a
// description.
const DefaultBaselineDescription = "<< Baseline >>"

// Options configures a Manager.
type Options struct {
	Locations []Location
	Scanner   ScannerOptions

	// Table names the history table. The lock table is "<Table>_lock".
	Table       string
	InstalledBy string

	Gaps   GapPolicy
	Target version.Version

	BaselineVersion     version.Version
	BaselineDescription string

	// ValidateOnMigrate runs the Validator before planning and refuses to
	// migrate when a checksum differs.
	ValidateOnMigrate bool

	Placeholders     Placeholders
	MigrationTimeout time.Duration

	LockTimeout    time.Duration
	LockStaleAfter time.Duration

	// Locker overrides the lock row in the history store.
	Locker Locker

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

// Manager wires discovery, planning, application and validation for one
// database.
type Manager struct {
	db        *database.DB
	store     *history.Store
	locker    Locker
	scanner   FileScanner
	applier   *Applier
	validator *Validator
	opts      Options
	clock     clock.Clock
	logger    *slog.Logger
	metrics   *metrics.Recorder
}

// NewManager creates a Manager for db.
func NewManager(db *database.DB, opts Options) *Manager {
	if opts.Table == "" {
		opts.Table = history.DefaultTable
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.BaselineVersion.IsZero() {
		opts.BaselineVersion = version.MustParse("1")
	}
	if opts.BaselineDescription == "" {
		opts.BaselineDescription = DefaultBaselineDescription
	}
	logger := defaultLogger(opts.Logger)
	if opts.Scanner.Logger == nil {
		opts.Scanner.Logger = logger
	}

	store := history.NewStore(db, history.StoreOptions{
		Table:       opts.Table,
		InstalledBy: opts.InstalledBy,
		Clock:       opts.Clock,
		Logger:      logger,
	})

	locker := opts.Locker
	if locker == nil {
		locker = history.NewLock(db, history.LockOptions{
			Table:      opts.Table + "_lock",
			Timeout:    opts.LockTimeout,
			StaleAfter: opts.LockStaleAfter,
			Clock:      opts.Clock,
			Logger:     logger,
		})
	}

	return &Manager{
		db:      db,
		store:   store,
		locker:  locker,
		scanner: NewFileScanner(opts.Scanner),
		applier: NewApplier(db, store, ApplierOptions{
			Placeholders:     opts.Placeholders,
			MigrationTimeout: opts.MigrationTimeout,
			Clock:            opts.Clock,
			Logger:           logger,
			Metrics:          opts.Metrics,
		}),
		validator: NewValidator(logger),
		opts:      opts,
		clock:     opts.Clock,
		logger:    logger,
		metrics:   opts.Metrics,
	}
}

// Store returns the history store.
func (m *Manager) Store() *history.Store {
	return m.store
}

// MigrateResult reports the outcome of Migrate.
type MigrateResult struct {
	Initial    version.Version
	Current    version.Version
	Applied    []history.Entry
	OutOfOrder []Migration
	Ignored    []Migration
	Duration   time.Duration
}

// Migrate applies all pending migrations under the migration lock. On
// failure the returned result lists the migrations applied before it.
func (m *Manager) Migrate(ctx context.Context) (*MigrateResult, error) {
	logger := operationLogger(ctx, m.logger, "migrate", "table", m.store.Table())

	scan, err := m.scan()
	if err != nil {
		return nil, err
	}

	release, err := m.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := m.store.Init(ctx); err != nil {
		return nil, NewDatabaseError("", "", "initialize history table", err)
	}

	snap, err := m.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info("current schema version",
		"version", displayVersion(snap.Current()),
		"latest", displayVersion(scan.Migrations.Latest()))
	if len(m.opts.Placeholders) > 0 {
		logger.Debug("placeholders configured", "names", m.opts.Placeholders.Keys())
	}

	if m.opts.ValidateOnMigrate {
		if _, err := m.validator.Validate(scan.Migrations, snap); err != nil {
			return nil, fmt.Errorf("validate before migrate: %w", err)
		}
	}

	planner := NewPlanner(PlanOptions{
		Gaps:        m.opts.Gaps,
		Target:      m.opts.Target,
		RetryFailed: m.db.Dialect.TransactionalDDL,
	})
	plan, err := planner.Plan(scan.Migrations, snap)
	if err != nil {
		return nil, err
	}

	result := &MigrateResult{
		Initial:    plan.Current,
		Current:    plan.Current,
		OutOfOrder: plan.OutOfOrder,
		Ignored:    plan.Ignored,
	}
	for _, ig := range plan.Ignored {
		logger.Warn("skipping out-of-order migration", "version", ig.Version.String(), "script", ig.Script)
	}

	if plan.IsEmpty() {
		logger.Info("schema is up to date", "version", displayVersion(plan.Current))
		m.metrics.SetSchemaVersion(plan.Current.String())
		return result, nil
	}

	logger.Info("pending migrations", "count", len(plan.Pending))
	applied, applyErr := m.applier.Apply(ctx, plan.Pending)
	result.Applied = applied.Applied
	result.Duration = applied.Duration

	for _, e := range applied.Applied {
		if v, err := version.Parse(e.Version); err == nil {
			result.Current = version.Max(result.Current, v)
		}
	}
	m.metrics.SetSchemaVersion(result.Current.String())

	if applyErr != nil {
		return result, applyErr
	}

	logger.Info("migration complete",
		"applied", len(result.Applied),
		"version", displayVersion(result.Current),
		"duration", result.Duration)
	return result, nil
}

// InfoState is the display state of one version.
type InfoState string

const (
	InfoPending       InfoState = "Pending"
	InfoSuccess       InfoState = "Success"
	InfoFailed        InfoState = "Failed"
	InfoBaseline      InfoState = "Baseline"
	InfoBelowBaseline InfoState = "Below Baseline"
	InfoMissing       InfoState = "Missing"
	InfoIgnored       InfoState = "Ignored"
	InfoOutOfOrder    InfoState = "Out of Order"
	InfoAboveTarget   InfoState = "Above Target"
)

// InfoRow describes one version in Info output.
type InfoRow struct {
	Version       string     `json:"version"`
	Description   string     `json:"description"`
	Type          string     `json:"type"`
	Script        string     `json:"script,omitempty"`
	Checksum      string     `json:"checksum,omitempty"`
	State         InfoState  `json:"state"`
	InstalledBy   string     `json:"installed_by,omitempty"`
	InstalledOn   *time.Time `json:"installed_on,omitempty"`
	ExecutionTime int64      `json:"execution_time_ms"`

	version version.Version
}

// InfoReport lists every known version and the current schema version.
type InfoReport struct {
	Current string    `json:"current_version"`
	Pending int       `json:"pending"`
	Rows    []InfoRow `json:"migrations"`
}

// Info reports the state of every discovered or recorded version. It takes
// no lock and never writes.
func (m *Manager) Info(ctx context.Context) (*InfoReport, error) {
	scan, err := m.scan()
	if err != nil {
		return nil, err
	}
	snap, err := m.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	planner := NewPlanner(PlanOptions{Gaps: m.opts.Gaps, Target: m.opts.Target})
	report := &InfoReport{Current: displayVersion(snap.Current())}
	seen := make(map[string]bool)

	for _, item := range planner.classify(scan.Migrations, snap) {
		mig := item.migration
		row := InfoRow{
			Version:     mig.Version.String(),
			Description: mig.Description,
			Type:        string(history.TypeSQL),
			Script:      mig.Script,
			Checksum:    mig.Checksum,
			version:     mig.Version,
		}
		switch item.status {
		case statusPending:
			row.State = InfoPending
			report.Pending++
		case statusOutOfOrder:
			row.State = InfoOutOfOrder
			report.Pending++
		case statusIgnored:
			row.State = InfoIgnored
		case statusBelowBaseline:
			row.State = InfoBelowBaseline
		case statusAboveTarget:
			row.State = InfoAboveTarget
		case statusApplied, statusFailed:
			row = recordRow(*item.record)
		}
		seen[row.Version] = true
		report.Rows = append(report.Rows, row)
	}

	for _, rec := range snap.Records() {
		if seen[rec.Version.String()] {
			continue
		}
		row := recordRow(rec)
		if rec.State == history.StateApplied {
			row.State = InfoMissing
		}
		report.Rows = append(report.Rows, row)
	}

	sort.SliceStable(report.Rows, func(i, j int) bool {
		return report.Rows[i].version.Less(report.Rows[j].version)
	})
	return report, nil
}

func recordRow(rec history.Record) InfoRow {
	row := InfoRow{
		Version:       rec.Version.String(),
		Description:   rec.Description,
		Type:          string(history.TypeSQL),
		Script:        rec.Script,
		Checksum:      rec.Checksum,
		InstalledBy:   rec.InstalledBy,
		ExecutionTime: rec.ExecutionTime.Milliseconds(),
		version:       rec.Version,
	}
	if !rec.InstalledOn.IsZero() {
		on := rec.InstalledOn
		row.InstalledOn = &on
	}
	switch rec.State {
	case history.StateApplied:
		row.State = InfoSuccess
	case history.StateFailed:
		row.State = InfoFailed
	case history.StateBaseline:
		row.State = InfoBaseline
		row.Type = string(history.TypeBaseline)
	}
	return row
}

// Validate compares applied checksums with the files on disk. The error is
// non-nil when any checksum differs. It takes no lock and never writes.
func (m *Manager) Validate(ctx context.Context) (*ValidationReport, error) {
	logger := operationLogger(ctx, m.logger, "validate")

	scan, err := m.scan()
	if err != nil {
		return nil, err
	}
	snap, err := m.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	report, err := m.validator.Validate(scan.Migrations, snap)
	if err != nil {
		logger.Error("validation failed", "mismatches", len(report.Mismatches), "error", err, "error_kind", ErrorKind(err))
		return report, err
	}
	logger.Info("validation succeeded",
		"validated", report.Validated,
		"pending", report.Pending,
		"missing", len(report.Missing))
	return report, nil
}

// Realignment is a checksum or description corrected by Repair.
type Realignment struct {
	Version     version.Version
	Script      string
	OldChecksum string
	NewChecksum string
}

// RepairResult reports what Repair appended.
type RepairResult struct {
	Removed   []history.Record // failed runs voided
	Realigned []Realignment
}

// Repair voids failed runs and realigns recorded checksums and descriptions
// with the files on disk. History is only appended to: failed runs get a
// DELETE entry and realigned versions a CHECKSUM entry.
func (m *Manager) Repair(ctx context.Context) (*RepairResult, error) {
	logger := operationLogger(ctx, m.logger, "repair", "table", m.store.Table())

	scan, err := m.scan()
	if err != nil {
		return nil, err
	}

	release, err := m.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := m.store.Init(ctx); err != nil {
		return nil, NewDatabaseError("", "", "initialize history table", err)
	}
	snap, err := m.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	result := &RepairResult{}
	for _, rec := range snap.Failed() {
		if _, err := m.store.Append(ctx, history.Entry{
			Version:     rec.Version.String(),
			Description: rec.Description,
			Type:        history.TypeDelete,
			Script:      rec.Script,
			Checksum:    rec.Checksum,
			Success:     true,
		}); err != nil {
			return result, NewDatabaseError(rec.Version.String(), "", "void failed migration", err)
		}
		logger.Info("removed failed migration", "version", rec.Version.String(), "script", rec.Script)
		result.Removed = append(result.Removed, rec)
	}

	for _, rec := range snap.Applied() {
		mig, ok := scan.Migrations.Find(rec.Version)
		if !ok {
			continue
		}
		_, match, err := VerifyChecksum(rec.Checksum, []byte(mig.Body))
		if err != nil && !errors.Is(err, ErrUnsupportedChecksum) {
			return result, err
		}
		if match && rec.Description == mig.Description {
			continue
		}

		if _, err := m.store.Append(ctx, history.Entry{
			Version:     rec.Version.String(),
			Description: mig.Description,
			Type:        history.TypeChecksum,
			Script:      mig.Script,
			Checksum:    mig.Checksum,
			Success:     true,
		}); err != nil {
			return result, NewDatabaseError(rec.Version.String(), "", "realign checksum", err)
		}
		logger.Info("realigned checksum",
			"version", rec.Version.String(),
			"old", rec.Checksum,
			"new", mig.Checksum)
		result.Realigned = append(result.Realigned, Realignment{
			Version:     rec.Version,
			Script:      mig.Script,
			OldChecksum: rec.Checksum,
			NewChecksum: mig.Checksum,
		})
	}

	if len(result.Removed) == 0 && len(result.Realigned) == 0 {
		logger.Info("nothing to repair")
	}
	return result, nil
}

// Baseline records the configured baseline version on an empty history so
// that migrations up to it are treated as applied.
func (m *Manager) Baseline(ctx context.Context) (history.Entry, error) {
	logger := operationLogger(ctx, m.logger, "baseline", "table", m.store.Table())

	release, err := m.acquire(ctx)
	if err != nil {
		return history.Entry{}, err
	}
	defer release()

	if err := m.store.Init(ctx); err != nil {
		return history.Entry{}, NewDatabaseError("", "", "initialize history table", err)
	}
	snap, err := m.store.Snapshot(ctx)
	if err != nil {
		return history.Entry{}, err
	}
	if !snap.IsEmpty() {
		return history.Entry{}, fmt.Errorf("%w: table %s has %d entries", ErrHistoryNotEmpty, m.store.Table(), len(snap.Entries))
	}

	entry, err := m.store.Append(ctx, history.Entry{
		Version:     m.opts.BaselineVersion.String(),
		Description: m.opts.BaselineDescription,
		Type:        history.TypeBaseline,
		Script:      m.opts.BaselineDescription,
		Success:     true,
	})
	if err != nil {
		return history.Entry{}, NewDatabaseError(m.opts.BaselineVersion.String(), "", "record baseline", err)
	}
	logger.Info("baseline recorded", "version", entry.Version)
	m.metrics.SetSchemaVersion(entry.Version)
	return entry, nil
}

func (m *Manager) scan() (*ScanResult, error) {
	return m.scanner.ScanMigrations(m.opts.Locations)
}

func (m *Manager) acquire(ctx context.Context) (func(), error) {
	start := m.clock.Now()
	release, err := m.locker.Acquire(ctx, m.store.Table())
	if err != nil {
		return nil, fmt.Errorf("acquire migration lock: %w", err)
	}
	m.metrics.ObserveLockWait(m.clock.Now().Sub(start))
	return release, nil
}

func displayVersion(v version.Version) string {
	if v.IsZero() {
		return "<< Empty Schema >>"
	}
	return v.String()
}
