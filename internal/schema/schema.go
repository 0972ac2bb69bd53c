package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/sqlguard/internal/ident"
	"github.com/roach88/sqlguard/internal/querysql"
)

// definition constrains schema files. Closed structs reject typos.
const definition = `
#Column: {
	type:           "INTEGER" | "TEXT" | "REAL" | "BLOB" | "NUMERIC"
	primary_key?:   bool
	autoincrement?: bool
	not_null?:      bool
	unique?:        bool
}

#Schema: {
	table: [string]: column: [string]: #Column
}
`

// TableSpec is one declared table.
type TableSpec struct {
	Name    ident.Identifier
	Columns []querysql.ColumnDef
}

// Statement returns the CREATE TABLE IF NOT EXISTS statement for t.
func (t TableSpec) Statement() (querysql.Statement, error) {
	return querysql.CreateTable(t.Name, t.Columns)
}

// Statements returns DDL for every table, in order.
func Statements(tables []TableSpec) ([]querysql.Statement, error) {
	stmts := make([]querysql.Statement, 0, len(tables))
	for _, t := range tables {
		stmt, err := t.Statement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

// Error reports a schema problem, with a CUE source position when known.
type Error struct {
	Path    string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Path, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Parse reads a single CUE schema document.
func Parse(src []byte, filename string) ([]TableSpec, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	return compile(ctx, v)
}

// Load reads every .cue file in dir as one CUE package.
func Load(dir string) ([]TableSpec, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("schema directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil {
		return nil, fmt.Errorf("scan schema directory: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no CUE files found in %s", dir)
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, formatCUEError(inst.Err)
	}

	return compile(ctx, ctx.BuildInstance(inst))
}

func compile(ctx *cue.Context, v cue.Value) ([]TableSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	def := ctx.CompileString(definition, cue.Filename("sqlguard/schema.cue")).
		LookupPath(cue.ParsePath("#Schema"))
	if err := def.Err(); err != nil {
		return nil, fmt.Errorf("schema definition: %w", err)
	}

	unified := def.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	iter, err := unified.LookupPath(cue.ParsePath("table")).Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var tables []TableSpec
	for iter.Next() {
		spec, err := compileTable(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		tables = append(tables, spec)
	}
	if len(tables) == 0 {
		return nil, &Error{Path: "table", Message: "no tables declared", Pos: v.Pos()}
	}

	sort.Slice(tables, func(i, j int) bool {
		return tables[i].Name.Name() < tables[j].Name.Name()
	})
	return tables, nil
}

func compileTable(name string, v cue.Value) (TableSpec, error) {
	path := "table." + name

	table, err := ident.Table(name)
	if err != nil {
		return TableSpec{}, &Error{Path: path, Message: err.Error(), Pos: v.Pos()}
	}

	colsVal := v.LookupPath(cue.ParsePath("column"))
	if !colsVal.Exists() {
		return TableSpec{}, &Error{Path: path, Message: "column is required", Pos: v.Pos()}
	}

	iter, err := colsVal.Fields()
	if err != nil {
		return TableSpec{}, formatCUEError(err)
	}

	spec := TableSpec{Name: table}
	for iter.Next() {
		col, err := compileColumn(path+".column."+iter.Label(), iter.Label(), iter.Value())
		if err != nil {
			return TableSpec{}, err
		}
		spec.Columns = append(spec.Columns, col)
	}
	if len(spec.Columns) == 0 {
		return TableSpec{}, &Error{Path: path, Message: "at least one column is required", Pos: v.Pos()}
	}

	// Catch invalid combinations (e.g. AUTOINCREMENT on TEXT) here, with a position.
	if _, err := spec.Statement(); err != nil {
		return TableSpec{}, &Error{Path: path, Message: err.Error(), Pos: v.Pos()}
	}
	return spec, nil
}

func compileColumn(path, name string, v cue.Value) (querysql.ColumnDef, error) {
	col, err := ident.Column(name)
	if err != nil {
		return querysql.ColumnDef{}, &Error{Path: path, Message: err.Error(), Pos: v.Pos()}
	}
	def := querysql.ColumnDef{Name: col}

	// Fields() skips unset optional fields, so only declared flags appear.
	iter, err := v.Fields()
	if err != nil {
		return querysql.ColumnDef{}, formatCUEError(err)
	}
	for iter.Next() {
		field := iter.Value()
		switch iter.Label() {
		case "type":
			s, err := field.String()
			if err != nil {
				return querysql.ColumnDef{}, formatCUEError(err)
			}
			def.Type, err = querysql.ParseColumnType(s)
			if err != nil {
				return querysql.ColumnDef{}, &Error{Path: path + ".type", Message: err.Error(), Pos: field.Pos()}
			}
		case "primary_key":
			def.PrimaryKey, err = field.Bool()
		case "autoincrement":
			def.AutoIncrement, err = field.Bool()
		case "not_null":
			def.NotNull, err = field.Bool()
		case "unique":
			def.Unique, err = field.Bool()
		}
		if err != nil {
			return querysql.ColumnDef{}, formatCUEError(err)
		}
	}
	return def, nil
}

// formatCUEError converts the first CUE error to an *Error, keeping its
// position when there is one.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &Error{Path: "cue", Message: err.Error()}
	}

	firstErr := errs[0]
	schemaErr := &Error{Path: "cue", Message: firstErr.Error()}
	if positions := errors.Positions(firstErr); len(positions) > 0 {
		schemaErr.Pos = positions[0]
	}
	return schemaErr
}
