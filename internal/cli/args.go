package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/sqlguard/internal/value"
)

// parseLiteral reads a command-line value. JSON scalars (numbers, true,
// false, null, quoted strings) keep their type; anything else is Text.
func parseLiteral(s string) (value.Value, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil || dec.More() {
		return value.Text(s), nil
	}
	switch raw.(type) {
	case map[string]any, []any:
		// Objects and arrays are stored verbatim as JSON text.
		return value.Text(s), nil
	}
	return value.FromAny(raw)
}

// parseConditions reads repeated --where column=value flags.
func parseConditions(pairs []string) (value.Record, error) {
	conds := make(value.Record, len(pairs))
	for _, pair := range pairs {
		col, raw, ok := strings.Cut(pair, "=")
		if !ok || col == "" {
			return nil, fmt.Errorf("invalid --where %q: want column=value", pair)
		}
		if _, dup := conds[col]; dup {
			return nil, fmt.Errorf("duplicate --where column %q", col)
		}
		v, err := parseLiteral(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid --where %q: %w", pair, err)
		}
		conds[col] = v
	}
	return conds, nil
}

// parseArgs converts positional query arguments into bind parameters.
func parseArgs(raw []string) ([]any, error) {
	args := make([]any, len(raw))
	for i, s := range raw {
		v, err := parseLiteral(s)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		args[i] = value.Arg(v)
	}
	return args, nil
}

// singleCondition returns the only entry of conds.
func singleCondition(conds value.Record) (string, value.Value) {
	for k, v := range conds {
		return k, v
	}
	return "", nil
}
