package ident

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Accepts(t *testing.T) {
	names := []string{
		"users", "Users", "_private", "a", "_", "user_id", "col2",
		"CamelCase", "__x__", "selected", "orders", "android", "fromage",
	}
	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, Validate(name, KindColumn))
		})
	}
}

func TestValidate_RejectsPattern(t *testing.T) {
	names := []string{
		"1bad", "with space", "semi;colon", "dash-ed", `quo"te`, "tick`",
		"users; DROP TABLE users; --", "dotted.name", "ünicode", "tab\t",
		"new\nline", "9",
	}
	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			err := Validate(name, KindTable)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidIdentifier)

			var invalid *InvalidIdentifierError
			require.True(t, errors.As(err, &invalid))
			assert.Equal(t, name, invalid.Name)
			assert.Equal(t, KindTable, invalid.Kind)
			assert.Equal(t, ReasonPattern, invalid.Reason)
		})
	}
}

func TestValidate_Empty(t *testing.T) {
	err := Validate("", KindColumn)

	var invalid *InvalidIdentifierError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, ReasonEmpty, invalid.Reason)
	assert.Equal(t, KindColumn, invalid.Kind)
}

func TestValidate_ReservedWordsAnyCase(t *testing.T) {
	for _, word := range ReservedWords() {
		variants := []string{word, strings.ToUpper(word), strings.ToUpper(word[:1]) + word[1:]}
		for _, name := range variants {
			t.Run(name, func(t *testing.T) {
				err := Validate(name, KindTable)
				var invalid *InvalidIdentifierError
				require.True(t, errors.As(err, &invalid), "expected rejection of %q", name)
				assert.Equal(t, ReasonReserved, invalid.Reason)
			})
		}
	}
}

func TestValidate_DropIsRejected(t *testing.T) {
	assert.ErrorIs(t, Validate("drop", KindTable), ErrInvalidIdentifier)
	assert.ErrorIs(t, Validate("DROP", KindTable), ErrInvalidIdentifier)
	assert.ErrorIs(t, Validate("DrOp", KindTable), ErrInvalidIdentifier)
}

func TestInvalidIdentifierError_Message(t *testing.T) {
	err := Validate("select", KindColumn)
	require.Error(t, err)
	assert.Equal(t, `invalid column name "select": reserved word`, err.Error())
}

func TestNew(t *testing.T) {
	id, err := New("users", KindTable)
	require.NoError(t, err)
	assert.Equal(t, "users", id.Name())
	assert.Equal(t, KindTable, id.Kind())
	assert.Equal(t, `"users"`, id.Quoted())
	assert.False(t, id.IsZero())

	id, err = New("1bad", KindTable)
	require.Error(t, err)
	assert.True(t, id.IsZero())
}

func TestColumns_StopsAtFirstInvalid(t *testing.T) {
	cols, err := Columns([]string{"name", "age"})
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, KindColumn, cols[1].Kind())

	_, err = Columns([]string{"name", "or", "bad name"})
	var invalid *InvalidIdentifierError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "or", invalid.Name)
}

func TestMustColumn_Panics(t *testing.T) {
	assert.NotPanics(t, func() { MustColumn("id") })
	assert.Panics(t, func() { MustColumn("where") })
}

func TestReservedWords_ReturnsCopy(t *testing.T) {
	words := ReservedWords()
	words[0] = "mutated"
	assert.True(t, IsReserved("select"))
}
