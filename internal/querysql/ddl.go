package querysql

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/sqlguard/internal/ident"
)

// ErrInvalidColumnType is returned for a column type outside the allow-list.
var ErrInvalidColumnType = errors.New("invalid column type")

// ColumnType is a SQLite type affinity name.
type ColumnType string

const (
	TypeInteger ColumnType = "INTEGER"
	TypeText    ColumnType = "TEXT"
	TypeReal    ColumnType = "REAL"
	TypeBlob    ColumnType = "BLOB"
	TypeNumeric ColumnType = "NUMERIC"
)

var columnTypes = []ColumnType{TypeInteger, TypeText, TypeReal, TypeBlob, TypeNumeric}

// ParseColumnType accepts a type name in any case.
func ParseColumnType(s string) (ColumnType, error) {
	t := ColumnType(strings.ToUpper(strings.TrimSpace(s)))
	if !slices.Contains(columnTypes, t) {
		return "", fmt.Errorf("%w: %q", ErrInvalidColumnType, s)
	}
	return t, nil
}

// ColumnDef describes one column of a CREATE TABLE.
type ColumnDef struct {
	Name          ident.Identifier
	Type          ColumnType
	PrimaryKey    bool
	AutoIncrement bool
	NotNull       bool
	Unique        bool
}

// CreateTable builds CREATE TABLE IF NOT EXISTS "t" (...).
// DDL cannot bind parameters, so only validated identifiers and allow-listed
// keywords appear in the text.
func CreateTable(table ident.Identifier, cols []ColumnDef) (Statement, error) {
	if err := checkTable(table); err != nil {
		return Statement{}, err
	}
	if len(cols) == 0 {
		return Statement{}, fmt.Errorf("create table %s: no columns", table.Name())
	}

	parts := make([]string, len(cols))
	for i, c := range cols {
		def, err := compileColumnDef(c)
		if err != nil {
			return Statement{}, fmt.Errorf("create table %s: %w", table.Name(), err)
		}
		parts[i] = def
	}

	return Statement{
		SQL: fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table.Quoted(), strings.Join(parts, ", ")),
	}, nil
}

func compileColumnDef(c ColumnDef) (string, error) {
	if err := checkColumn(c.Name); err != nil {
		return "", err
	}
	if !slices.Contains(columnTypes, c.Type) {
		return "", fmt.Errorf("column %s: %w: %q", c.Name.Name(), ErrInvalidColumnType, c.Type)
	}
	// SQLite only allows AUTOINCREMENT on an INTEGER PRIMARY KEY.
	if c.AutoIncrement && (!c.PrimaryKey || c.Type != TypeInteger) {
		return "", fmt.Errorf("column %s: autoincrement requires INTEGER PRIMARY KEY", c.Name.Name())
	}

	var b strings.Builder
	b.WriteString(c.Name.Quoted())
	b.WriteByte(' ')
	b.WriteString(string(c.Type))
	if c.PrimaryKey {
		b.WriteString(" PRIMARY KEY")
	}
	if c.AutoIncrement {
		b.WriteString(" AUTOINCREMENT")
	}
	if c.NotNull {
		b.WriteString(" NOT NULL")
	}
	if c.Unique {
		b.WriteString(" UNIQUE")
	}
	return b.String(), nil
}
