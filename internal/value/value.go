package value

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Kind names a storage class.
type Kind string

const (
	KindNull    Kind = "null"
	KindText    Kind = "text"
	KindInteger Kind = "integer"
	KindReal    Kind = "real"
	KindBlob    Kind = "blob"
)

// Value is a sealed interface over SQLite storage classes.
type Value interface {
	Kind() Kind
	sqlValue()
}

// Null is SQL NULL.
type Null struct{}

func (Null) Kind() Kind { return KindNull }
func (Null) sqlValue()  {}

// Text is a UTF-8 string.
type Text string

func (Text) Kind() Kind { return KindText }
func (Text) sqlValue()  {}

// Integer is a signed 64-bit integer.
type Integer int64

func (Integer) Kind() Kind { return KindInteger }
func (Integer) sqlValue()  {}

// Real is an IEEE 754 double.
type Real float64

func (Real) Kind() Kind { return KindReal }
func (Real) sqlValue()  {}

// Blob is raw bytes.
type Blob []byte

func (Blob) Kind() Kind { return KindBlob }
func (Blob) sqlValue()  {}

// Arg converts v into the form bound as a statement parameter.
// A nil Value binds as NULL.
func Arg(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case Text:
		return string(val)
	case Integer:
		return int64(val)
	case Real:
		return float64(val)
	case Blob:
		return []byte(val)
	default:
		panic(fmt.Sprintf("value: unknown Value type %T", v))
	}
}

// Native returns v as a plain Go value (nil, string, int64, float64, []byte).
func Native(v Value) any {
	return Arg(v)
}

// IsNull reports whether v is nil or Null.
func IsNull(v Value) bool {
	switch v.(type) {
	case nil, Null:
		return true
	}
	return false
}

// FromAny converts a decoded Go value (from JSON, YAML, or caller code) to a
// Value. Booleans become 0/1 Integers. Slices and maps are stored as JSON
// Text.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return Text(val), nil
	case []byte:
		return Blob(val), nil
	case bool:
		if val {
			return Integer(1), nil
		}
		return Integer(0), nil
	case int:
		return Integer(val), nil
	case int8:
		return Integer(val), nil
	case int16:
		return Integer(val), nil
	case int32:
		return Integer(val), nil
	case int64:
		return Integer(val), nil
	case uint8:
		return Integer(val), nil
	case uint16:
		return Integer(val), nil
	case uint32:
		return Integer(val), nil
	case uint:
		if uint64(val) > math.MaxInt64 {
			return nil, fmt.Errorf("integer out of range: %d", val)
		}
		return Integer(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer out of range: %d", val)
		}
		return Integer(val), nil
	case float32:
		return Real(val), nil
	case float64:
		return Real(val), nil
	case json.Number:
		return fromNumber(val)
	case time.Time:
		return Text(val.UTC().Format(time.RFC3339Nano)), nil
	case []any, map[string]any:
		data, err := json.Marshal(val)
		if err != nil {
			return nil, fmt.Errorf("encode nested value: %w", err)
		}
		return Text(data), nil
	default:
		return nil, fmt.Errorf("unsupported value type: %T", v)
	}
}

// fromNumber keeps integers exact and falls back to Real otherwise.
func fromNumber(n json.Number) (Value, error) {
	if i, err := n.Int64(); err == nil {
		return Integer(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("invalid number %q: %w", n.String(), err)
	}
	return Real(f), nil
}

// FromColumn converts a value scanned from a driver row.
// Unknown driver types are rendered as Text. A time.Time is rendered as
// RFC 3339 text, which is not the text SQLite stored; readers that know the
// driver's timestamp layout should convert it first.
func FromColumn(v any) Value {
	switch val := v.(type) {
	case nil:
		return Null{}
	case int64:
		return Integer(val)
	case float64:
		return Real(val)
	case string:
		return Text(val)
	case []byte:
		// Copy; drivers may reuse the buffer.
		return Blob(bytes.Clone(val))
	case bool:
		if val {
			return Integer(1)
		}
		return Integer(0)
	case time.Time:
		return Text(val.UTC().Format(time.RFC3339Nano))
	default:
		return Text(fmt.Sprint(val))
	}
}

// Format renders v for human display.
func Format(v Value) string {
	switch val := v.(type) {
	case nil, Null:
		return "NULL"
	case Text:
		return string(val)
	case Integer:
		return strconv.FormatInt(int64(val), 10)
	case Real:
		return strconv.FormatFloat(float64(val), 'g', -1, 64)
	case Blob:
		return "x'" + fmt.Sprintf("%x", []byte(val)) + "'"
	default:
		return fmt.Sprint(v)
	}
}

// MarshalValue encodes v as JSON. Blobs are base64 strings.
func MarshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case nil, Null:
		return []byte("null"), nil
	case Text:
		return json.Marshal(string(val))
	case Integer:
		return []byte(strconv.FormatInt(int64(val), 10)), nil
	case Real:
		return json.Marshal(float64(val))
	case Blob:
		return json.Marshal(base64.StdEncoding.EncodeToString(val))
	default:
		return nil, fmt.Errorf("unknown Value type: %T", v)
	}
}
