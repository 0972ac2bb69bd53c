package querysql

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/sqlguard/internal/ident"
	"github.com/roach88/sqlguard/internal/value"
)

var (
	// ErrEmptyAssignment is returned when an update has nothing to SET.
	ErrEmptyAssignment = errors.New("no columns to set")

	// ErrEmptyConditions is returned when an update or delete has no WHERE
	// conditions. Use Clear to remove every row.
	ErrEmptyConditions = errors.New("no conditions given")

	// ErrUnvalidatedIdentifier is returned for a zero ident.Identifier or one
	// of the wrong kind.
	ErrUnvalidatedIdentifier = errors.New("identifier not validated")
)

// IDColumn is the primary key column used by the *ByID operations.
var IDColumn = ident.MustColumn("id")

// Statement is SQL text plus its positional arguments.
type Statement struct {
	SQL  string
	Args []any
}

// Assignment is one "column = ?" pair in an INSERT or UPDATE.
type Assignment struct {
	Column ident.Identifier
	Value  value.Value
}

// Condition is one equality in a WHERE conjunction.
type Condition struct {
	Column ident.Identifier
	Value  value.Value
}

// Page bounds a SELECT. Limit <= 0 means unlimited. Offset is only applied
// together with a positive Limit.
type Page struct {
	Limit      int
	Offset     int
	OrderBy    ident.Identifier // zero means engine order
	Descending bool
}

// OffsetIgnored reports whether Offset is set but will not be applied.
func (p Page) OffsetIgnored() bool {
	return p.Offset > 0 && p.Limit <= 0
}

// Assignments validates every key of rec as a column and returns them in
// sorted key order.
func Assignments(rec value.Record) ([]Assignment, error) {
	out := make([]Assignment, 0, len(rec))
	for _, k := range rec.SortedKeys() {
		col, err := ident.Column(k)
		if err != nil {
			return nil, err
		}
		out = append(out, Assignment{Column: col, Value: rec[k]})
	}
	return out, nil
}

// Conditions validates every key of rec as a column and returns equality
// conditions in sorted key order.
func Conditions(rec value.Record) ([]Condition, error) {
	out := make([]Condition, 0, len(rec))
	for _, k := range rec.SortedKeys() {
		col, err := ident.Column(k)
		if err != nil {
			return nil, err
		}
		out = append(out, Condition{Column: col, Value: rec[k]})
	}
	return out, nil
}

// Insert builds INSERT INTO "t" ("a", "b") VALUES (?, ?).
// With no assignments it inserts a row of defaults.
func Insert(table ident.Identifier, values []Assignment) (Statement, error) {
	if err := checkTable(table); err != nil {
		return Statement{}, err
	}
	if len(values) == 0 {
		return Statement{SQL: fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", table.Quoted())}, nil
	}

	cols := make([]string, len(values))
	marks := make([]string, len(values))
	args := make([]any, len(values))
	for i, a := range values {
		if err := checkColumn(a.Column); err != nil {
			return Statement{}, err
		}
		cols[i] = a.Column.Quoted()
		marks[i] = "?"
		args[i] = value.Arg(a.Value)
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table.Quoted(),
		strings.Join(cols, ", "),
		strings.Join(marks, ", "))
	return Statement{SQL: sql, Args: args}, nil
}

// Update builds UPDATE "t" SET "a" = ? WHERE <conditions>.
// Args are SET values followed by WHERE values.
func Update(table ident.Identifier, set []Assignment, where []Condition) (Statement, error) {
	if err := checkTable(table); err != nil {
		return Statement{}, err
	}
	if len(set) == 0 {
		return Statement{}, ErrEmptyAssignment
	}
	if len(where) == 0 {
		return Statement{}, ErrEmptyConditions
	}

	parts := make([]string, len(set))
	args := make([]any, 0, len(set)+len(where))
	for i, a := range set {
		if err := checkColumn(a.Column); err != nil {
			return Statement{}, err
		}
		parts[i] = a.Column.Quoted() + " = ?"
		args = append(args, value.Arg(a.Value))
	}

	whereSQL, whereArgs, err := compileWhere(where)
	if err != nil {
		return Statement{}, err
	}
	args = append(args, whereArgs...)

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s", table.Quoted(), strings.Join(parts, ", "), whereSQL)
	return Statement{SQL: sql, Args: args}, nil
}

// Delete builds DELETE FROM "t" WHERE <conditions>.
func Delete(table ident.Identifier, where []Condition) (Statement, error) {
	if err := checkTable(table); err != nil {
		return Statement{}, err
	}
	if len(where) == 0 {
		return Statement{}, ErrEmptyConditions
	}

	whereSQL, args, err := compileWhere(where)
	if err != nil {
		return Statement{}, err
	}
	return Statement{
		SQL:  fmt.Sprintf("DELETE FROM %s WHERE %s", table.Quoted(), whereSQL),
		Args: args,
	}, nil
}

// Clear builds DELETE FROM "t" with no predicate. Schema is untouched.
func Clear(table ident.Identifier) (Statement, error) {
	if err := checkTable(table); err != nil {
		return Statement{}, err
	}
	return Statement{SQL: fmt.Sprintf("DELETE FROM %s", table.Quoted())}, nil
}

// Output is one result column of a SELECT. A Plain column is selected as
// +"c" AS "c": the value is unchanged but the result has no declared type,
// so drivers that convert by declared type return the stored value.
type Output struct {
	Column ident.Identifier
	Plain  bool
}

// Select builds SELECT * FROM "t" [WHERE ...] [ORDER BY ...] [LIMIT ? [OFFSET ?]].
// An empty where selects every row.
func Select(table ident.Identifier, where []Condition, page Page) (Statement, error) {
	return SelectColumns(table, nil, where, page)
}

// SelectColumns is Select with an explicit result list. No outputs means *.
func SelectColumns(table ident.Identifier, outputs []Output, where []Condition, page Page) (Statement, error) {
	if err := checkTable(table); err != nil {
		return Statement{}, err
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	if len(outputs) == 0 {
		b.WriteString("*")
	}
	for i, out := range outputs {
		if err := checkColumn(out.Column); err != nil {
			return Statement{}, err
		}
		if i > 0 {
			b.WriteString(", ")
		}
		if out.Plain {
			b.WriteString("+" + out.Column.Quoted() + " AS ")
		}
		b.WriteString(out.Column.Quoted())
	}
	b.WriteString(" FROM ")
	b.WriteString(table.Quoted())

	var args []any
	if len(where) > 0 {
		whereSQL, whereArgs, err := compileWhere(where)
		if err != nil {
			return Statement{}, err
		}
		b.WriteString(" WHERE ")
		b.WriteString(whereSQL)
		args = whereArgs
	}

	if !page.OrderBy.IsZero() {
		if err := checkColumn(page.OrderBy); err != nil {
			return Statement{}, err
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(page.OrderBy.Quoted())
		if page.Descending {
			b.WriteString(" DESC")
		} else {
			b.WriteString(" ASC")
		}
	}

	if page.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, int64(page.Limit))
		if page.Offset > 0 {
			b.WriteString(" OFFSET ?")
			args = append(args, int64(page.Offset))
		}
	}

	return Statement{SQL: b.String(), Args: args}, nil
}

// Count builds SELECT COUNT(*) FROM "t" [WHERE ...].
func Count(table ident.Identifier, where []Condition) (Statement, error) {
	if err := checkTable(table); err != nil {
		return Statement{}, err
	}
	sql := fmt.Sprintf("SELECT COUNT(*) FROM %s", table.Quoted())
	if len(where) == 0 {
		return Statement{SQL: sql}, nil
	}

	whereSQL, args, err := compileWhere(where)
	if err != nil {
		return Statement{}, err
	}
	return Statement{SQL: sql + " WHERE " + whereSQL, Args: args}, nil
}

// TableExists builds a catalog probe. The table name is bound, not quoted.
func TableExists(table ident.Identifier) (Statement, error) {
	if err := checkTable(table); err != nil {
		return Statement{}, err
	}
	return Statement{
		SQL:  "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?",
		Args: []any{table.Name()},
	}, nil
}

// compileWhere joins equality conditions with AND.
// A Null value compiles to IS NULL, since "= NULL" never matches.
func compileWhere(where []Condition) (string, []any, error) {
	parts := make([]string, len(where))
	var args []any
	for i, c := range where {
		if err := checkColumn(c.Column); err != nil {
			return "", nil, err
		}
		if value.IsNull(c.Value) {
			parts[i] = c.Column.Quoted() + " IS NULL"
			continue
		}
		parts[i] = c.Column.Quoted() + " = ?"
		args = append(args, value.Arg(c.Value))
	}
	return strings.Join(parts, " AND "), args, nil
}

func checkTable(id ident.Identifier) error {
	if id.IsZero() || id.Kind() != ident.KindTable {
		return fmt.Errorf("%w: expected table, got %q", ErrUnvalidatedIdentifier, id.Name())
	}
	return nil
}

func checkColumn(id ident.Identifier) error {
	if id.IsZero() || id.Kind() != ident.KindColumn {
		return fmt.Errorf("%w: expected column, got %q", ErrUnvalidatedIdentifier, id.Name())
	}
	return nil
}
