package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_ObserveMigration(t *testing.T) {
	r := New()

	r.ObserveMigration(20*time.Millisecond, nil)
	r.ObserveMigration(5*time.Millisecond, nil)
	r.ObserveMigration(time.Second, errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(r.Migrations.WithLabelValues(LabelSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Migrations.WithLabelValues(LabelFailure)))
}

func TestRecorder_ObserveRun(t *testing.T) {
	r := New()

	r.ObserveRun("migrate", nil)
	r.ObserveRun("validate", errors.New("mismatch"))

	assert.Equal(t, 1.0, testutil.ToFloat64(r.Runs.WithLabelValues("migrate", LabelSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Runs.WithLabelValues("validate", LabelFailure)))
}

func TestRecorder_SetSchemaVersionReplacesPrevious(t *testing.T) {
	r := New()

	r.SetSchemaVersion("1")
	r.SetSchemaVersion("2.1")

	assert.Equal(t, 1, testutil.CollectAndCount(r.SchemaInfo))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.SchemaInfo.WithLabelValues("2.1")))
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder

	assert.NotPanics(t, func() {
		r.ObserveMigration(time.Second, nil)
		r.ObserveRun("migrate", nil)
		r.ObserveLockWait(time.Second)
		r.SetSchemaVersion("1")
	})
	assert.Nil(t, r.Registry())
	assert.NoError(t, r.WriteTextfile(filepath.Join(t.TempDir(), "m.prom")))
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := New()
	r.ObserveRun("migrate", nil)
	r.ObserveLockWait(10 * time.Millisecond)

	path := filepath.Join(t.TempDir(), "migrator.prom")
	require.NoError(t, r.WriteTextfile(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(content), `migrator_runs_total{command="migrate",result="success"} 1`))
	assert.True(t, strings.Contains(string(content), "migrator_lock_wait_seconds_count 1"))
}
