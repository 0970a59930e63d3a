package history

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/example/schema-migrator/internal/version"
)

// ErrCorrupt indicates that the history table holds rows that cannot be
// interpreted, such as an unparsable version.
var ErrCorrupt = errors.New("schema history table is corrupted")

// EntryType classifies a history row.
type EntryType string

const (
	// TypeSQL records a run of a versioned SQL migration.
	TypeSQL EntryType = "SQL"

	// TypeBaseline marks the version below which migrations count as applied.
	TypeBaseline EntryType = "BASELINE"

	// TypeDelete voids an earlier failed run of the same version.
	TypeDelete EntryType = "DELETE"

	// TypeChecksum realigns the recorded checksum of an applied version.
	TypeChecksum EntryType = "CHECKSUM"
)

// Entry is one append-only row of the schema history table.
type Entry struct {
	InstalledRank int       `db:"installed_rank"`
	Version       string    `db:"version"`
	Description   string    `db:"description"`
	Type          EntryType `db:"type"`
	Script        string    `db:"script"`
	Checksum      string    `db:"checksum"`
	InstalledBy   string    `db:"installed_by"`
	InstalledOn   time.Time `db:"installed_on"`
	ExecutionTime int64     `db:"execution_time"` // milliseconds
	Success       bool      `db:"success"`
}

// Duration returns the recorded execution time.
func (e Entry) Duration() time.Duration {
	return time.Duration(e.ExecutionTime) * time.Millisecond
}

// State is the effective state of a version after folding its entries.
type State int

const (
	// StateApplied means the latest run of the version succeeded.
	StateApplied State = iota + 1

	// StateFailed means the latest run of the version failed and has not been
	// voided by repair.
	StateFailed

	// StateBaseline means the version was recorded by baseline.
	StateBaseline
)

func (s State) String() string {
	switch s {
	case StateApplied:
		return "applied"
	case StateFailed:
		return "failed"
	case StateBaseline:
		return "baseline"
	}
	return "unknown"
}

// Record is the effective history of one version.
type Record struct {
	Version       version.Version
	Description   string
	Script        string
	Checksum      string
	State         State
	InstalledRank int
	InstalledBy   string
	InstalledOn   time.Time
	ExecutionTime time.Duration
}

// Snapshot is a read-only view of the history table folded into one record
// per version.
type Snapshot struct {
	Entries  []Entry
	Baseline version.Version

	records map[string]*Record
}

// Fold replays entries in installed-rank order and computes the effective
// state of every version.
func Fold(entries []Entry) (*Snapshot, error) {
	ordered := make([]Entry, len(entries))
	copy(ordered, entries)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].InstalledRank < ordered[j].InstalledRank
	})

	snap := &Snapshot{Entries: ordered, records: make(map[string]*Record)}

	for _, e := range ordered {
		v, err := version.Parse(e.Version)
		if err != nil {
			return nil, fmt.Errorf("%w: rank %d: %v", ErrCorrupt, e.InstalledRank, err)
		}
		key := v.String()

		switch e.Type {
		case TypeSQL:
			state := StateApplied
			if !e.Success {
				state = StateFailed
			}
			snap.records[key] = &Record{
				Version:       v,
				Description:   e.Description,
				Script:        e.Script,
				Checksum:      e.Checksum,
				State:         state,
				InstalledRank: e.InstalledRank,
				InstalledBy:   e.InstalledBy,
				InstalledOn:   e.InstalledOn,
				ExecutionTime: e.Duration(),
			}
		case TypeBaseline:
			snap.records[key] = &Record{
				Version:       v,
				Description:   e.Description,
				Script:        e.Script,
				State:         StateBaseline,
				InstalledRank: e.InstalledRank,
				InstalledBy:   e.InstalledBy,
				InstalledOn:   e.InstalledOn,
			}
			snap.Baseline = version.Max(snap.Baseline, v)
		case TypeDelete:
			delete(snap.records, key)
		case TypeChecksum:
			if rec, ok := snap.records[key]; ok && rec.State == StateApplied {
				rec.Checksum = e.Checksum
				if e.Description != "" {
					rec.Description = e.Description
				}
			}
		default:
			return nil, fmt.Errorf("%w: rank %d: unknown entry type %q", ErrCorrupt, e.InstalledRank, e.Type)
		}
	}

	return snap, nil
}

// IsEmpty reports whether the history holds no entries at all.
func (s *Snapshot) IsEmpty() bool {
	return len(s.Entries) == 0
}

// Lookup returns the effective record for v.
func (s *Snapshot) Lookup(v version.Version) (Record, bool) {
	rec, ok := s.records[v.String()]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Records returns all effective records ordered by version.
func (s *Snapshot) Records() []Record {
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version.Less(out[j].Version) })
	return out
}

// Applied returns records whose latest run succeeded, ordered by version.
func (s *Snapshot) Applied() []Record {
	return s.filter(StateApplied)
}

// Failed returns records whose latest run failed, ordered by version.
func (s *Snapshot) Failed() []Record {
	return s.filter(StateFailed)
}

// Current returns the highest applied or baselined version, or the zero
// version when nothing has been applied.
func (s *Snapshot) Current() version.Version {
	var current version.Version
	for _, rec := range s.records {
		if rec.State == StateApplied || rec.State == StateBaseline {
			current = version.Max(current, rec.Version)
		}
	}
	return current
}

func (s *Snapshot) filter(state State) []Record {
	var out []Record
	for _, rec := range s.Records() {
		if rec.State == state {
			out = append(out, rec)
		}
	}
	return out
}
