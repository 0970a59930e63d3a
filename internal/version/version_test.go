package version

import (
	"encoding/json"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "1", want: "1"},
		{input: "001", want: "1"},
		{input: "1.2.10", want: "1.2.10"},
		{input: "1_2", want: "1.2"},
		{input: "1.0", want: "1"},
		{input: "2.0.0", want: "2"},
		{input: "0", want: "0"},
		{input: "0.0.1", want: "0.0.1"},
		{input: " 3 ", want: "3"},
		{input: "", wantErr: true},
		{input: "1..2", wantErr: true},
		{input: ".1", wantErr: true},
		{input: "1.", wantErr: true},
		{input: "v1", wantErr: true},
		{input: "-1", wantErr: true},
		{input: "1.a", wantErr: true},
		{input: "99999999999999999999999", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1", "2", -1},
		{"2", "1", 1},
		{"1", "1.0", 0},
		{"01", "1", 0},
		{"1.2", "1.10", -1},
		{"1.10", "1.9", 1},
		{"1", "1.0.1", -1},
		{"10", "9.9.9", 1},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, MustParse(tt.a).Compare(MustParse(tt.b)))
		})
	}

	assert.Equal(t, -1, Version{}.Compare(MustParse("0")))
	assert.Equal(t, 0, Version{}.Compare(Version{}))
	assert.True(t, Version{}.IsZero())
}

func TestSortOrder(t *testing.T) {
	inputs := []string{"10", "1.1", "2", "1", "1.0.1", "1.10"}
	versions := make([]Version, len(inputs))
	for i, in := range inputs {
		versions[i] = MustParse(in)
	}

	sort.Slice(versions, func(i, j int) bool { return versions[i].Less(versions[j]) })

	var got []string
	for _, v := range versions {
		got = append(got, v.String())
	}
	assert.Equal(t, []string{"1", "1.0.1", "1.1", "1.10", "2", "10"}, got)
}

func TestMax(t *testing.T) {
	assert.Equal(t, "3", Max(MustParse("3"), MustParse("2.9")).String())
	assert.Equal(t, "1", Max(Version{}, MustParse("1")).String())
}

func TestJSON(t *testing.T) {
	payload := struct {
		Version Version `json:"version"`
	}{Version: MustParse("1.2.0")}

	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":"1.2"}`, string(raw))

	var decoded struct {
		Version Version `json:"version"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"version":"4.1"}`), &decoded))
	assert.True(t, decoded.Version.Equal(MustParse("4.1")))
}
