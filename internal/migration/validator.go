package migration

import (
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"

	"github.com/example/schema-migrator/internal/history"
)

// ValidationReport is the outcome of comparing discovered migrations with
// the schema history.
type ValidationReport struct {
	Validated  int                      // applied versions whose file was checked
	Mismatches []*ChecksumMismatchError // files changed after they were applied
	Missing    []history.Record         // applied versions with no file
	Failed     []history.Record         // versions whose latest run failed
	Pending    int                      // discovered versions not yet applied
}

// OK reports whether no checksum differs.
func (r *ValidationReport) OK() bool {
	return len(r.Mismatches) == 0
}

// Validator detects drift between applied migrations and the files on disk.
// It reads a snapshot and never writes.
type Validator struct {
	logger *slog.Logger
}

// NewValidator creates a Validator.
func NewValidator(logger *slog.Logger) *Validator {
	return &Validator{logger: defaultLogger(logger)}
}

// Validate recomputes the checksum of every discovered migration that has an
// applied history record. The returned error aggregates one
// ChecksumMismatchError per differing file and is nil when all match.
func (v *Validator) Validate(set MigrationSet, snap *history.Snapshot) (*ValidationReport, error) {
	report := &ValidationReport{Failed: snap.Failed()}
	var result *multierror.Error

	for _, rec := range snap.Applied() {
		m, ok := set.Find(rec.Version)
		if !ok {
			report.Missing = append(report.Missing, rec)
			v.logger.Warn("applied migration not found locally",
				"version", rec.Version.String(),
				"script", rec.Script)
			continue
		}

		report.Validated++
		if rec.Checksum == "" {
			continue
		}

		resolved, match, err := VerifyChecksum(rec.Checksum, []byte(m.Body))
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("verify version %s: %w", rec.Version, err))
			continue
		}
		if !match {
			mismatch := &ChecksumMismatchError{
				Version:  rec.Version,
				Script:   m.Script,
				Applied:  rec.Checksum,
				Resolved: resolved,
			}
			report.Mismatches = append(report.Mismatches, mismatch)
			result = multierror.Append(result, mismatch)
		}
	}

	for _, m := range set {
		if _, ok := snap.Lookup(m.Version); ok {
			continue
		}
		if !snap.Baseline.IsZero() && m.Version.Compare(snap.Baseline) <= 0 {
			continue
		}
		report.Pending++
	}

	for _, rec := range report.Failed {
		v.logger.Warn("failed migration recorded in history",
			"version", rec.Version.String(),
			"script", rec.Script)
	}

	return report, result.ErrorOrNil()
}
