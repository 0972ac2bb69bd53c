package value

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueSealed(t *testing.T) {
	var _ Value = Null{}
	var _ Value = Text("a")
	var _ Value = Integer(1)
	var _ Value = Real(1.5)
	var _ Value = Blob{0x01}
}

func TestKind(t *testing.T) {
	assert.Equal(t, KindNull, Null{}.Kind())
	assert.Equal(t, KindText, Text("x").Kind())
	assert.Equal(t, KindInteger, Integer(1).Kind())
	assert.Equal(t, KindReal, Real(1).Kind())
	assert.Equal(t, KindBlob, Blob(nil).Kind())
}

func TestArg(t *testing.T) {
	assert.Nil(t, Arg(nil))
	assert.Nil(t, Arg(Null{}))
	assert.Equal(t, "hi", Arg(Text("hi")))
	assert.Equal(t, int64(7), Arg(Integer(7)))
	assert.Equal(t, 2.5, Arg(Real(2.5)))
	assert.Equal(t, []byte{1, 2}, Arg(Blob{1, 2}))
}

func TestFromAny(t *testing.T) {
	testCases := []struct {
		name string
		in   any
		want Value
	}{
		{"nil", nil, Null{}},
		{"string", "Alice", Text("Alice")},
		{"int", 30, Integer(30)},
		{"int64", int64(-4), Integer(-4)},
		{"uint8", uint8(9), Integer(9)},
		{"true", true, Integer(1)},
		{"false", false, Integer(0)},
		{"float", 1.25, Real(1.25)},
		{"bytes", []byte("ab"), Blob("ab")},
		{"json int", json.Number("42"), Integer(42)},
		{"json float", json.Number("4.5"), Real(4.5)},
		{"value passthrough", Text("x"), Text("x")},
		{"slice", []any{"a", 1}, Text(`["a",1]`)},
		{"map", map[string]any{"k": "v"}, Text(`{"k":"v"}`)},
		{"time", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), Text("2026-01-02T03:04:05Z")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := FromAny(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFromAny_Unsupported(t *testing.T) {
	_, err := FromAny(struct{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported value type")

	_, err = FromAny(uint64(1 << 63))
	require.Error(t, err)
}

func TestFromColumn(t *testing.T) {
	buf := []byte("raw")
	got := FromColumn(buf)
	buf[0] = 'X'

	assert.Equal(t, Blob("raw"), got, "blob must not alias the driver buffer")
	assert.Equal(t, Null{}, FromColumn(nil))
	assert.Equal(t, Integer(3), FromColumn(int64(3)))
	assert.Equal(t, Real(0.5), FromColumn(0.5))
	assert.Equal(t, Text("s"), FromColumn("s"))
	assert.Equal(t, Integer(1), FromColumn(true))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "NULL", Format(Null{}))
	assert.Equal(t, "abc", Format(Text("abc")))
	assert.Equal(t, "-12", Format(Integer(-12)))
	assert.Equal(t, "0.25", Format(Real(0.25)))
	assert.Equal(t, "x'0aff'", Format(Blob{0x0a, 0xff}))
}

func TestIsNull(t *testing.T) {
	assert.True(t, IsNull(nil))
	assert.True(t, IsNull(Null{}))
	assert.False(t, IsNull(Text("")))
	assert.False(t, IsNull(Integer(0)))
}
