package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{name: "plain", input: "orders", want: "orders", ok: true},
		{name: "underscore prefix", input: "_private", want: "_private", ok: true},
		{name: "digits after first", input: "col_2", want: "col_2", ok: true},
		{name: "trimmed", input: "  orders\t", want: "orders", ok: true},
		{name: "max length", input: strings.Repeat("a", MaxIdentifierLength), want: strings.Repeat("a", MaxIdentifierLength), ok: true},
		{name: "empty", input: ""},
		{name: "whitespace only", input: "   "},
		{name: "leading digit", input: "1bad"},
		{name: "hyphen", input: "bad-name"},
		{name: "dot", input: "a.b"},
		{name: "too long", input: strings.Repeat("a", MaxIdentifierLength+1)},
		{name: "unicode", input: "naïve"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ValidateIdentifier(tc.input)
			if !tc.ok {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidIdentifier)
				assert.ErrorIs(t, err, ErrConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestValidateFilter(t *testing.T) {
	got, err := ValidateFilter(Filter{" status ": "open", "total": 12})
	require.NoError(t, err)
	assert.Equal(t, Filter{"status": "open", "total": 12}, got)

	got, err = ValidateFilter(nil)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	_, err = ValidateFilter(Filter{"ok": 1, "bad key": 2})
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
}

func TestValidateFilter_KeysCollidingAfterTrim(t *testing.T) {
	_, err := ValidateFilter(Filter{" status": "open", "status": "closed"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
	assert.ErrorIs(t, err, ErrConfig)
	assert.Contains(t, err.Error(), `duplicate key "status"`)
}

func TestValidateFilter_ValuesPassThrough(t *testing.T) {
	nested := map[string]any{"$gt": 3}
	got, err := ValidateFilter(Filter{"qty": nested, "tags": []string{"a-b", "1"}})
	require.NoError(t, err)
	assert.Equal(t, nested, got["qty"])
	assert.Equal(t, []string{"a-b", "1"}, got["tags"])
}

func TestValidateColumns(t *testing.T) {
	got, err := ValidateColumns([]string{"name", " price "})
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "price"}, got)

	got, err = ValidateColumns(nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = ValidateColumns([]string{"name", "1bad"})
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
}
