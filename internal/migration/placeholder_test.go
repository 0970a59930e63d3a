package migration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaceholders_Expand(t *testing.T) {
	p := Placeholders{"schema": "app", "owner": "svc_app"}
	builtins := map[string]string{builtinTable: "schema_history"}

	got, err := p.Expand("CREATE TABLE ${schema}.users (id INT);\nGRANT SELECT ON ${schema}.users TO ${owner};", builtins)
	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE app.users (id INT);\nGRANT SELECT ON app.users TO svc_app;", got)

	got, err = p.Expand("SELECT COUNT(*) FROM ${migrator:table};", builtins)
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) FROM schema_history;", got)

	got, err = p.Expand("SELECT 'no placeholders';", builtins)
	require.NoError(t, err)
	assert.Equal(t, "SELECT 'no placeholders';", got)

	got, err = p.Expand("SELECT '${unterminated';", builtins)
	require.NoError(t, err)
	assert.Equal(t, "SELECT '${unterminated';", got)

	_, err = p.Expand("SELECT ${missing};", builtins)
	require.ErrorIs(t, err, ErrUnknownPlaceholder)
	assert.Contains(t, err.Error(), "${missing}")

	var none Placeholders
	_, err = none.Expand("SELECT ${schema};", nil)
	require.ErrorIs(t, err, ErrUnknownPlaceholder)
}

func TestParsePlaceholders(t *testing.T) {
	p, err := ParsePlaceholders([]string{"schema=app", "dsn=user=x;pass=y", "empty="})
	require.NoError(t, err)
	assert.Equal(t, Placeholders{"schema": "app", "dsn": "user=x;pass=y", "empty": ""}, p)
	assert.Equal(t, []string{"dsn", "empty", "schema"}, p.Keys())

	_, err = ParsePlaceholders([]string{"novalue"})
	require.Error(t, err)
	_, err = ParsePlaceholders([]string{"=value"})
	require.Error(t, err)
}
