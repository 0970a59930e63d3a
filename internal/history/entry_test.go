package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/schema-migrator/internal/version"
)

func sqlEntry(rank int, v string, success bool, checksum string) Entry {
	return Entry{
		InstalledRank: rank,
		Version:       v,
		Description:   "migration " + v,
		Type:          TypeSQL,
		Script:        "V" + v + "__migration.sql",
		Checksum:      checksum,
		ExecutionTime: 12,
		Success:       success,
	}
}

func TestFold(t *testing.T) {
	t.Run("empty history", func(t *testing.T) {
		snap, err := Fold(nil)
		require.NoError(t, err)
		assert.True(t, snap.IsEmpty())
		assert.True(t, snap.Current().IsZero())
	})

	t.Run("successful runs are applied", func(t *testing.T) {
		snap, err := Fold([]Entry{
			sqlEntry(2, "2", true, "sha256:b"),
			sqlEntry(1, "1", true, "sha256:a"),
		})
		require.NoError(t, err)

		applied := snap.Applied()
		require.Len(t, applied, 2)
		assert.Equal(t, "1", applied[0].Version.String())
		assert.Equal(t, "2", applied[1].Version.String())
		assert.Equal(t, "2", snap.Current().String())
		assert.Equal(t, 12*time.Millisecond, applied[0].ExecutionTime)
	})

	t.Run("failed run then delete voids the version", func(t *testing.T) {
		snap, err := Fold([]Entry{
			sqlEntry(1, "1", true, "sha256:a"),
			sqlEntry(2, "2", false, "sha256:b"),
			{InstalledRank: 3, Version: "2", Type: TypeDelete, Success: true},
		})
		require.NoError(t, err)

		_, ok := snap.Lookup(version.MustParse("2"))
		assert.False(t, ok)
		assert.Empty(t, snap.Failed())
		assert.Equal(t, "1", snap.Current().String())
	})

	t.Run("failed run stays failed", func(t *testing.T) {
		snap, err := Fold([]Entry{sqlEntry(1, "1", false, "sha256:a")})
		require.NoError(t, err)

		failed := snap.Failed()
		require.Len(t, failed, 1)
		assert.Equal(t, StateFailed, failed[0].State)
		assert.True(t, snap.Current().IsZero())
	})

	t.Run("retry after failure is applied", func(t *testing.T) {
		snap, err := Fold([]Entry{
			sqlEntry(1, "1", false, "sha256:a"),
			sqlEntry(2, "1", true, "sha256:a"),
		})
		require.NoError(t, err)

		rec, ok := snap.Lookup(version.MustParse("1.0"))
		require.True(t, ok)
		assert.Equal(t, StateApplied, rec.State)
		assert.Equal(t, 2, rec.InstalledRank)
	})

	t.Run("checksum entry realigns applied checksum", func(t *testing.T) {
		snap, err := Fold([]Entry{
			sqlEntry(1, "1", true, "sha256:old"),
			{InstalledRank: 2, Version: "1", Type: TypeChecksum, Checksum: "sha256:new", Description: "renamed", Success: true},
		})
		require.NoError(t, err)

		rec, ok := snap.Lookup(version.MustParse("1"))
		require.True(t, ok)
		assert.Equal(t, "sha256:new", rec.Checksum)
		assert.Equal(t, "renamed", rec.Description)
	})

	t.Run("baseline", func(t *testing.T) {
		snap, err := Fold([]Entry{
			{InstalledRank: 1, Version: "5", Type: TypeBaseline, Description: "<< Baseline >>", Success: true},
			sqlEntry(2, "6", true, "sha256:x"),
		})
		require.NoError(t, err)

		assert.Equal(t, "5", snap.Baseline.String())
		assert.Equal(t, "6", snap.Current().String())
		rec, ok := snap.Lookup(version.MustParse("5"))
		require.True(t, ok)
		assert.Equal(t, StateBaseline, rec.State)
		assert.Len(t, snap.Applied(), 1)
	})

	t.Run("corrupt version", func(t *testing.T) {
		_, err := Fold([]Entry{sqlEntry(1, "abc", true, "")})
		require.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := Fold([]Entry{{InstalledRank: 1, Version: "1", Type: "UNDO"}})
		require.ErrorIs(t, err, ErrCorrupt)
	})
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "applied", StateApplied.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "baseline", StateBaseline.String())
	assert.Equal(t, "unknown", State(0).String())
}
