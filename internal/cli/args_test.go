package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sqlguard/internal/value"
)

func TestParseLiteral(t *testing.T) {
	tests := []struct {
		in   string
		want value.Value
	}{
		{"30", value.Integer(30)},
		{"-7", value.Integer(-7)},
		{"2.5", value.Real(2.5)},
		{"null", value.Null{}},
		{"true", value.Integer(1)},
		{`"30"`, value.Text("30")},
		{"Alice", value.Text("Alice")},
		{"", value.Text("")},
		{"30abc", value.Text("30abc")},
		{"'; DROP TABLE users; --", value.Text("'; DROP TABLE users; --")},
		{`{"a":1}`, value.Text(`{"a":1}`)},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseLiteral(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseConditions(t *testing.T) {
	conds, err := parseConditions([]string{"name=Alice", "age=30", "note=a=b"})
	require.NoError(t, err)
	assert.Equal(t, value.Record{
		"name": value.Text("Alice"),
		"age":  value.Integer(30),
		"note": value.Text("a=b"),
	}, conds)

	_, err = parseConditions([]string{"noequals"})
	assert.ErrorContains(t, err, "want column=value")

	_, err = parseConditions([]string{"=x"})
	assert.Error(t, err)

	_, err = parseConditions([]string{"a=1", "a=2"})
	assert.ErrorContains(t, err, "duplicate")

	// Column names are left for the store to validate.
	conds, err = parseConditions([]string{"bad name=1"})
	require.NoError(t, err)
	assert.Contains(t, conds, "bad name")
}

func TestParseArgs(t *testing.T) {
	args, err := parseArgs([]string{"5", "x", "null"})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(5), "x", nil}, args)
}
