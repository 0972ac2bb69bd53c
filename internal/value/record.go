package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Record is one row's fields keyed by column name.
type Record map[string]Value

// SortedKeys returns the column names in byte order.
// Column names are ASCII after validation, so byte order is stable.
func (r Record) SortedKeys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Native returns r as a map of plain Go values.
func (r Record) Native() map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		out[k] = Native(v)
	}
	return out
}

// MarshalJSON writes keys in sorted order so output is deterministic.
func (r Record) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := MarshalValue(r[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object. Integers stay exact via json.Number.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	rec, err := FromMap(raw)
	if err != nil {
		return err
	}
	*r = rec
	return nil
}

// ParseRecord decodes a JSON object into a Record.
func ParseRecord(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse record: %w", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("parse record: expected a JSON object")
	}
	return rec, nil
}

// FromMap converts a map of plain Go values into a Record.
func FromMap(m map[string]any) (Record, error) {
	if m == nil {
		return nil, nil
	}
	rec := make(Record, len(m))
	for k, raw := range m {
		v, err := FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		rec[k] = v
	}
	return rec, nil
}

// RecordFromColumns converts a scanned driver row.
func RecordFromColumns(m map[string]any) Record {
	rec := make(Record, len(m))
	for k, raw := range m {
		rec[k] = FromColumn(raw)
	}
	return rec
}
