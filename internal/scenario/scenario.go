package scenario

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Operation names accepted in the op field.
const (
	OpInsert         = "insert"
	OpUpdateByID     = "update_by_id"
	OpUpdateWhere    = "update_where"
	OpUpdateWhereAnd = "update_where_and"
	OpDeleteByID     = "delete_by_id"
	OpDeleteWhere    = "delete_where"
	OpDeleteWhereAnd = "delete_where_and"
	OpFindByID       = "find_by_id"
	OpFindBy         = "find_by"
	OpFindOneBy      = "find_one_by"
	OpFindWhereAnd   = "find_where_and"
	OpFindAll        = "find_all"
	OpCount          = "count"
	OpCountWhereAnd  = "count_where_and"
	OpExecuteQuery   = "execute_query"
	OpClearTable     = "clear_table"
	OpTableExists    = "table_exists"
	OpTransaction    = "transaction"
	OpClose          = "close"
)

var knownOps = []string{
	OpInsert, OpUpdateByID, OpUpdateWhere, OpUpdateWhereAnd,
	OpDeleteByID, OpDeleteWhere, OpDeleteWhereAnd,
	OpFindByID, OpFindBy, OpFindOneBy, OpFindWhereAnd, OpFindAll,
	OpCount, OpCountWhereAnd, OpExecuteQuery, OpClearTable, OpTableExists,
	OpTransaction, OpClose,
}

// Scenario is a named sequence of store operations.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario checks.
	Description string `yaml:"description"`

	// Setup holds DDL statements applied in one transaction before Steps.
	Setup []string `yaml:"setup,omitempty"`

	// Steps run in order. A failed expectation does not stop later steps.
	Steps []Step `yaml:"steps"`
}

// Step is one store operation. Which fields apply depends on Op.
type Step struct {
	Op     string         `yaml:"op"`
	Table  string         `yaml:"table,omitempty"`
	ID     *int64         `yaml:"id,omitempty"`
	Record map[string]any `yaml:"record,omitempty"`
	Set    map[string]any `yaml:"set,omitempty"`
	Column string         `yaml:"column,omitempty"`
	Value  any            `yaml:"value,omitempty"`
	Where  map[string]any `yaml:"where,omitempty"`

	// Paging for find_all.
	Limit   int    `yaml:"limit,omitempty"`
	Offset  int    `yaml:"offset,omitempty"`
	OrderBy string `yaml:"order_by,omitempty"`
	Desc    bool   `yaml:"desc,omitempty"`

	// Raw statement for execute_query.
	SQL  string `yaml:"sql,omitempty"`
	Args []any  `yaml:"args,omitempty"`

	// Nested steps and forced rollback for transaction.
	Steps []Step `yaml:"steps,omitempty"`
	Fail  bool   `yaml:"fail,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect lists the outcomes to check. Unset fields are not checked.
type Expect struct {
	// ID is the row id returned by insert.
	ID *int64 `yaml:"id,omitempty"`

	// Rows is the affected-row count of update, delete, and clear_table.
	Rows *int64 `yaml:"rows,omitempty"`

	// Count is the result of count ops, or the number of records a find
	// op returned.
	Count *int64 `yaml:"count,omitempty"`

	// Exists is the result of table_exists.
	Exists *bool `yaml:"exists,omitempty"`

	// Record is a subset match against a single-record result.
	Record map[string]any `yaml:"record,omitempty"`

	// Records is an in-order subset match against a multi-record result.
	// The lengths must be equal.
	Records []map[string]any `yaml:"records,omitempty"`

	// Null expects a single-record op to find nothing.
	Null bool `yaml:"null,omitempty"`

	// Error is the expected error code; empty means success.
	Error string `yaml:"error,omitempty"`
}

// Load reads and validates a scenario file.
// Unknown fields (typos) are rejected.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a scenario document.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&sc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&sc); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &sc, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	for i, ddl := range s.Setup {
		if ddl == "" {
			return fmt.Errorf("setup[%d]: statement is empty", i)
		}
	}
	return validateSteps("steps", s.Steps)
}

func validateSteps(prefix string, steps []Step) error {
	for i := range steps {
		if err := validateStep(fmt.Sprintf("%s[%d]", prefix, i), &steps[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateStep checks structure only. Table and column names are left for
// the store to reject, since scenarios exercise that rejection.
func validateStep(path string, s *Step) error {
	if s.Op == "" {
		return fmt.Errorf("%s: op is required", path)
	}
	if !slices.Contains(knownOps, s.Op) {
		return fmt.Errorf("%s: unknown op %q", path, s.Op)
	}

	switch s.Op {
	case OpUpdateByID, OpDeleteByID, OpFindByID:
		if s.ID == nil {
			return fmt.Errorf("%s: id is required for %s", path, s.Op)
		}
	case OpExecuteQuery:
		if s.SQL == "" {
			return fmt.Errorf("%s: sql is required for %s", path, s.Op)
		}
	case OpTransaction:
		if len(s.Steps) == 0 {
			return fmt.Errorf("%s: steps are required for %s", path, s.Op)
		}
		for i := range s.Steps {
			if s.Steps[i].Op == OpTransaction || s.Steps[i].Op == OpClose {
				return fmt.Errorf("%s.steps[%d]: %s is not allowed inside a transaction", path, i, s.Steps[i].Op)
			}
		}
		if err := validateSteps(path+".steps", s.Steps); err != nil {
			return err
		}
	}

	if s.Fail && s.Op != OpTransaction {
		return fmt.Errorf("%s: fail only applies to %s", path, OpTransaction)
	}
	if s.Limit < 0 || s.Offset < 0 {
		return fmt.Errorf("%s: limit and offset must be non-negative", path)
	}
	if s.Expect != nil && s.Expect.Error != "" && !knownCode(s.Expect.Error) {
		return fmt.Errorf("%s.expect: unknown error code %q", path, s.Expect.Error)
	}
	return nil
}
