package migration

import (
	"fmt"
	"strings"

	"github.com/example/schema-migrator/internal/history"
	"github.com/example/schema-migrator/internal/version"
)

// GapPolicy decides what happens to unapplied migrations whose version is
// below the current schema version.
type GapPolicy string

const (
	// GapFail rejects the plan with an OutOfOrderError.
	GapFail GapPolicy = "fail"

	// GapApply applies gaps before newer migrations.
	GapApply GapPolicy = "apply"

	// GapIgnore leaves gaps unapplied.
	GapIgnore GapPolicy = "ignore"
)

// ParseGapPolicy validates a policy name. Empty selects GapFail.
func ParseGapPolicy(s string) (GapPolicy, error) {
	switch p := GapPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return GapFail, nil
	case GapFail, GapApply, GapIgnore:
		return p, nil
	}
	return "", fmt.Errorf("invalid out-of-order policy %q: expected fail, apply or ignore", s)
}

// PlanOptions configures a Planner.
type PlanOptions struct {
	Gaps GapPolicy

	// Target caps the plan at this version. Zero plans up to the latest.
	Target version.Version

	// RetryFailed re-plans versions whose latest run failed. Only safe when
	// the failed run left no partial changes behind.
	RetryFailed bool
}

// Plan is the ordered list of migrations to apply.
type Plan struct {
	Current    version.Version // schema version before the plan runs
	Pending    []Migration     // in apply order
	OutOfOrder []Migration     // gaps included in Pending
	Ignored    []Migration     // gaps left unapplied
}

// IsEmpty reports whether there is nothing to apply.
func (p *Plan) IsEmpty() bool {
	return len(p.Pending) == 0
}

// Planner computes pending migrations from a migration set and a history
// snapshot.
type Planner struct {
	opts PlanOptions
}

// NewPlanner creates a Planner.
func NewPlanner(opts PlanOptions) *Planner {
	if opts.Gaps == "" {
		opts.Gaps = GapFail
	}
	return &Planner{opts: opts}
}

// Plan returns the pending migrations in ascending version order.
func (p *Planner) Plan(set MigrationSet, snap *history.Snapshot) (*Plan, error) {
	if !p.opts.RetryFailed {
		if failed := snap.Failed(); len(failed) > 0 {
			return nil, &FailedMigrationError{Version: failed[0].Version, Script: failed[0].Script}
		}
	}

	plan := &Plan{Current: snap.Current()}
	var gaps []version.Version

	for _, item := range p.classify(set, snap) {
		switch item.status {
		case statusPending:
			plan.Pending = append(plan.Pending, item.migration)
		case statusOutOfOrder:
			gaps = append(gaps, item.migration.Version)
			plan.Pending = append(plan.Pending, item.migration)
			plan.OutOfOrder = append(plan.OutOfOrder, item.migration)
		case statusIgnored:
			plan.Ignored = append(plan.Ignored, item.migration)
		}
	}

	if p.opts.Gaps == GapFail && len(gaps) > 0 {
		return nil, &OutOfOrderError{Current: plan.Current, Versions: gaps}
	}
	return plan, nil
}

type planStatus int

const (
	statusPending planStatus = iota
	statusOutOfOrder
	statusIgnored
	statusApplied
	statusFailed
	statusBelowBaseline
	statusAboveTarget
)

type planItem struct {
	migration Migration
	status    planStatus
	record    *history.Record
}

// classify assigns every discovered migration a status. Gaps are reported
// as statusOutOfOrder unless the policy ignores them.
func (p *Planner) classify(set MigrationSet, snap *history.Snapshot) []planItem {
	current := snap.Current()
	items := make([]planItem, 0, len(set))

	for _, m := range set {
		item := planItem{migration: m}
		if rec, ok := snap.Lookup(m.Version); ok {
			item.record = &rec
			if rec.State != history.StateFailed {
				item.status = statusApplied
				items = append(items, item)
				continue
			}
			if !p.opts.RetryFailed {
				item.status = statusFailed
				items = append(items, item)
				continue
			}
		}

		switch {
		case !snap.Baseline.IsZero() && m.Version.Compare(snap.Baseline) <= 0:
			item.status = statusBelowBaseline
		case !p.opts.Target.IsZero() && p.opts.Target.Less(m.Version):
			item.status = statusAboveTarget
		case m.Version.Less(current):
			item.status = statusOutOfOrder
			if p.opts.Gaps == GapIgnore {
				item.status = statusIgnored
			}
		default:
			item.status = statusPending
		}
		items = append(items, item)
	}
	return items
}
