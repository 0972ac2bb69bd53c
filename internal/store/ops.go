package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/roach88/sqlguard/internal/ident"
	"github.com/roach88/sqlguard/internal/querysql"
	"github.com/roach88/sqlguard/internal/value"
)

// Operations is the identifier-safe operation set shared by Store and Tx.
type Operations interface {
	Insert(ctx context.Context, table string, rec value.Record) (int64, error)
	UpdateByID(ctx context.Context, table string, id int64, set value.Record) (int64, error)
	UpdateWhere(ctx context.Context, table string, set value.Record, column string, v value.Value) (int64, error)
	UpdateWhereAnd(ctx context.Context, table string, set value.Record, conds value.Record) (int64, error)
	DeleteByID(ctx context.Context, table string, id int64) (int64, error)
	DeleteWhere(ctx context.Context, table string, column string, v value.Value) (int64, error)
	DeleteWhereAnd(ctx context.Context, table string, conds value.Record) (int64, error)
	FindByID(ctx context.Context, table string, id int64) (value.Record, error)
	FindBy(ctx context.Context, table string, column string, v value.Value) ([]value.Record, error)
	FindOneBy(ctx context.Context, table string, column string, v value.Value) (value.Record, error)
	FindWhereAnd(ctx context.Context, table string, conds value.Record) ([]value.Record, error)
	FindAll(ctx context.Context, table string, page querysql.Page) ([]value.Record, error)
	Count(ctx context.Context, table string) (int64, error)
	CountWhereAnd(ctx context.Context, table string, conds value.Record) (int64, error)
	ExecuteQuery(ctx context.Context, query string, args ...any) ([]value.Record, error)
	ClearTable(ctx context.Context, table string) (int64, error)
	TableExists(ctx context.Context, table string) (bool, error)
}

var (
	_ Operations = (*Store)(nil)
	_ Operations = (*Tx)(nil)
)

// querier is satisfied by both *sqlx.DB and *sqlx.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
	QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row
}

// session runs built statements against a querier. A nil session, or one
// with no querier, is uninitialized.
type session struct {
	q      querier
	logger *slog.Logger
}

func (s *session) ready() error {
	if s == nil || s.q == nil {
		return ErrNotInitialized
	}
	return nil
}

// Insert adds rec to table and returns the generated row id.
// Columns are bound in sorted order.
func (s *session) Insert(ctx context.Context, table string, rec value.Record) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	t, err := ident.Table(table)
	if err != nil {
		return 0, fmt.Errorf("insert: %w", err)
	}
	values, err := querysql.Assignments(rec)
	if err != nil {
		return 0, fmt.Errorf("insert: %w", err)
	}
	stmt, err := querysql.Insert(t, values)
	if err != nil {
		return 0, fmt.Errorf("insert: %w", err)
	}

	res, err := s.exec(ctx, "insert", stmt)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, &StoreError{Op: "insert: last insert id", Err: err}
	}
	return id, nil
}

// UpdateByID sets columns on the row whose id matches. Returns rows changed.
func (s *session) UpdateByID(ctx context.Context, table string, id int64, set value.Record) (int64, error) {
	return s.update(ctx, "update by id", table, set, []querysql.Condition{
		{Column: querysql.IDColumn, Value: value.Integer(id)},
	})
}

// UpdateWhere sets columns on rows where column equals v.
func (s *session) UpdateWhere(ctx context.Context, table string, set value.Record, column string, v value.Value) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	col, err := ident.Column(column)
	if err != nil {
		return 0, fmt.Errorf("update where: %w", err)
	}
	return s.update(ctx, "update where", table, set, []querysql.Condition{{Column: col, Value: v}})
}

// UpdateWhereAnd sets columns on rows matching every condition.
func (s *session) UpdateWhereAnd(ctx context.Context, table string, set value.Record, conds value.Record) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	where, err := querysql.Conditions(conds)
	if err != nil {
		return 0, fmt.Errorf("update where and: %w", err)
	}
	return s.update(ctx, "update where and", table, set, where)
}

func (s *session) update(ctx context.Context, op, table string, set value.Record, where []querysql.Condition) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	t, err := ident.Table(table)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	assignments, err := querysql.Assignments(set)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	stmt, err := querysql.Update(t, assignments, where)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return s.execAffected(ctx, op, stmt)
}

// DeleteByID removes the row whose id matches. Returns rows removed.
func (s *session) DeleteByID(ctx context.Context, table string, id int64) (int64, error) {
	return s.delete(ctx, "delete by id", table, []querysql.Condition{
		{Column: querysql.IDColumn, Value: value.Integer(id)},
	})
}

// DeleteWhere removes rows where column equals v.
func (s *session) DeleteWhere(ctx context.Context, table string, column string, v value.Value) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	col, err := ident.Column(column)
	if err != nil {
		return 0, fmt.Errorf("delete where: %w", err)
	}
	return s.delete(ctx, "delete where", table, []querysql.Condition{{Column: col, Value: v}})
}

// DeleteWhereAnd removes rows matching every condition.
func (s *session) DeleteWhereAnd(ctx context.Context, table string, conds value.Record) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	where, err := querysql.Conditions(conds)
	if err != nil {
		return 0, fmt.Errorf("delete where and: %w", err)
	}
	return s.delete(ctx, "delete where and", table, where)
}

func (s *session) delete(ctx context.Context, op, table string, where []querysql.Condition) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	t, err := ident.Table(table)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	stmt, err := querysql.Delete(t, where)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return s.execAffected(ctx, op, stmt)
}

// FindByID returns the row with the given id, or nil if there is none.
// Like every find, it returns stored values unchanged, including those in
// columns declared DATE, DATETIME, TIMESTAMP or BOOLEAN, as long as every
// column name of table passes the identifier rules.
func (s *session) FindByID(ctx context.Context, table string, id int64) (value.Record, error) {
	return s.findOne(ctx, "find by id", table, []querysql.Condition{
		{Column: querysql.IDColumn, Value: value.Integer(id)},
	})
}

// FindBy returns every row where column equals v.
func (s *session) FindBy(ctx context.Context, table string, column string, v value.Value) ([]value.Record, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	col, err := ident.Column(column)
	if err != nil {
		return nil, fmt.Errorf("find by: %w", err)
	}
	return s.find(ctx, "find by", table, []querysql.Condition{{Column: col, Value: v}}, querysql.Page{})
}

// FindOneBy returns the first row where column equals v, or nil.
func (s *session) FindOneBy(ctx context.Context, table string, column string, v value.Value) (value.Record, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	col, err := ident.Column(column)
	if err != nil {
		return nil, fmt.Errorf("find one by: %w", err)
	}
	return s.findOne(ctx, "find one by", table, []querysql.Condition{{Column: col, Value: v}})
}

// FindWhereAnd returns rows matching every condition. No conditions matches all rows.
func (s *session) FindWhereAnd(ctx context.Context, table string, conds value.Record) ([]value.Record, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	where, err := querysql.Conditions(conds)
	if err != nil {
		return nil, fmt.Errorf("find where and: %w", err)
	}
	return s.find(ctx, "find where and", table, where, querysql.Page{})
}

// FindAll returns rows of table, optionally paged.
//
// Offset is only applied when Limit is positive. An offset without a limit
// is ignored and logged at warn level; all rows are returned.
func (s *session) FindAll(ctx context.Context, table string, page querysql.Page) ([]value.Record, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if page.OffsetIgnored() {
		s.logger.Warn("offset ignored without limit", "table", table, "offset", page.Offset)
	}
	return s.find(ctx, "find all", table, nil, page)
}

func (s *session) findOne(ctx context.Context, op, table string, where []querysql.Condition) (value.Record, error) {
	records, err := s.find(ctx, op, table, where, querysql.Page{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

func (s *session) find(ctx context.Context, op, table string, where []querysql.Condition, page querysql.Page) ([]value.Record, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	t, err := ident.Table(table)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	outputs, err := s.outputs(ctx, t)
	if err != nil {
		return nil, err
	}
	stmt, err := querysql.SelectColumns(t, outputs, where, page)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s.query(ctx, op, stmt)
}

// convertedTypes are declared types go-sqlite3 rewrites on read: date and
// timestamp columns come back as time.Time, boolean columns as bool.
var convertedTypes = []string{"date", "datetime", "timestamp", "boolean"}

// outputs returns the result list for reading table. Columns with a
// converted declared type are selected plain so stored values come back
// unchanged. It returns nil, meaning SELECT *, when no column needs it or
// when a column name falls outside the identifier rules.
func (s *session) outputs(ctx context.Context, table ident.Identifier) ([]querysql.Output, error) {
	rows, err := s.q.QueryxContext(ctx, "SELECT name, type FROM pragma_table_info(?) ORDER BY cid", table.Name())
	if err != nil {
		return nil, &StoreError{Op: "table info", Err: err}
	}
	defer rows.Close()

	var names []string
	var plain []bool
	converted := false
	for rows.Next() {
		var name, declType string
		if err := rows.Scan(&name, &declType); err != nil {
			return nil, &StoreError{Op: "table info: scan", Err: err}
		}
		isConverted := slices.Contains(convertedTypes, strings.ToLower(declType))
		converted = converted || isConverted
		names = append(names, name)
		plain = append(plain, isConverted)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "table info: iterate", Err: err}
	}
	if !converted {
		return nil, nil
	}

	cols, err := ident.Columns(names)
	if err != nil {
		s.logger.Warn("typed columns read through driver conversion", "table", table.Name(), "error", err)
		return nil, nil
	}
	outputs := make([]querysql.Output, len(cols))
	for i, col := range cols {
		outputs[i] = querysql.Output{Column: col, Plain: plain[i]}
	}
	return outputs, nil
}

// Count returns the number of rows in table.
func (s *session) Count(ctx context.Context, table string) (int64, error) {
	return s.count(ctx, "count", table, nil)
}

// CountWhereAnd returns the number of rows matching every condition.
func (s *session) CountWhereAnd(ctx context.Context, table string, conds value.Record) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	where, err := querysql.Conditions(conds)
	if err != nil {
		return 0, fmt.Errorf("count where and: %w", err)
	}
	return s.count(ctx, "count where and", table, where)
}

func (s *session) count(ctx context.Context, op, table string, where []querysql.Condition) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	t, err := ident.Table(table)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	stmt, err := querysql.Count(t, where)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return s.scalar(ctx, op, stmt)
}

// ExecuteQuery runs caller-built SQL with bound args and returns the rows.
// No identifier validation is performed on query.
//
// Result columns that keep a DATE, DATETIME or TIMESTAMP declared type are
// parsed by the driver and rendered back in SQLite's timestamp text form, and
// BOOLEAN columns come back as 0 or 1. Select them as +"c" to get the stored
// value unchanged.
func (s *session) ExecuteQuery(ctx context.Context, query string, args ...any) ([]value.Record, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.query(ctx, "execute query", querysql.Statement{SQL: query, Args: args})
}

// ClearTable deletes every row of table, keeping the schema. Returns rows removed.
func (s *session) ClearTable(ctx context.Context, table string) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	t, err := ident.Table(table)
	if err != nil {
		return 0, fmt.Errorf("clear table: %w", err)
	}
	stmt, err := querysql.Clear(t)
	if err != nil {
		return 0, fmt.Errorf("clear table: %w", err)
	}
	return s.execAffected(ctx, "clear table", stmt)
}

// TableExists reports whether table is present in the catalog.
func (s *session) TableExists(ctx context.Context, table string) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	t, err := ident.Table(table)
	if err != nil {
		return false, fmt.Errorf("table exists: %w", err)
	}
	stmt, err := querysql.TableExists(t)
	if err != nil {
		return false, fmt.Errorf("table exists: %w", err)
	}
	n, err := s.scalar(ctx, "table exists", stmt)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *session) exec(ctx context.Context, op string, stmt querysql.Statement) (sql.Result, error) {
	s.logger.Debug("executing statement", "op", op, "sql", stmt.SQL, "args", len(stmt.Args))
	res, err := s.q.ExecContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, &StoreError{Op: op, Err: err}
	}
	return res, nil
}

func (s *session) execAffected(ctx context.Context, op string, stmt querysql.Statement) (int64, error) {
	res, err := s.exec(ctx, op, stmt)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &StoreError{Op: op + ": rows affected", Err: err}
	}
	return n, nil
}

func (s *session) scalar(ctx context.Context, op string, stmt querysql.Statement) (int64, error) {
	s.logger.Debug("executing statement", "op", op, "sql", stmt.SQL, "args", len(stmt.Args))
	var n int64
	if err := s.q.QueryRowxContext(ctx, stmt.SQL, stmt.Args...).Scan(&n); err != nil {
		return 0, &StoreError{Op: op, Err: err}
	}
	return n, nil
}

// query returns an empty slice (not nil) when no rows match.
func (s *session) query(ctx context.Context, op string, stmt querysql.Statement) ([]value.Record, error) {
	s.logger.Debug("executing statement", "op", op, "sql", stmt.SQL, "args", len(stmt.Args))
	rows, err := s.q.QueryxContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, &StoreError{Op: op, Err: err}
	}
	defer rows.Close()

	records := []value.Record{}
	for rows.Next() {
		raw := make(map[string]any)
		if err := rows.MapScan(raw); err != nil {
			return nil, &StoreError{Op: op + ": scan", Err: err}
		}
		for k, v := range raw {
			if t, ok := v.(time.Time); ok {
				raw[k] = timestampText(t)
			}
		}
		records = append(records, value.RecordFromColumns(raw))
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: op + ": iterate", Err: err}
	}
	return records, nil
}

// timestampText renders a time the driver parsed from a typed column in
// SQLite's text form. Times parsed without a zone are written without an
// offset, so "2024-01-01 10:00:00" reads back as stored.
func timestampText(t time.Time) string {
	if t.Location() == time.UTC {
		return t.Format(sqlite3.SQLiteTimestampFormats[2])
	}
	return t.Format(sqlite3.SQLiteTimestampFormats[0])
}

// isTxDone reports errors from finishing an already finished transaction.
func isTxDone(err error) bool {
	return errors.Is(err, sql.ErrTxDone)
}
