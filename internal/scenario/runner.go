package scenario

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"

	"github.com/roach88/sqlguard/internal/ident"
	"github.com/roach88/sqlguard/internal/querysql"
	"github.com/roach88/sqlguard/internal/store"
	"github.com/roach88/sqlguard/internal/value"
)

// ErrForcedRollback is returned from a transaction step marked fail: true.
var ErrForcedRollback = errors.New("forced rollback")

// CodeRollback is the error code of ErrForcedRollback.
const CodeRollback = "rollback"

var knownCodes = []string{
	store.CodeInvalidIdentifier,
	store.CodeEmptyAssignment,
	store.CodeEmptyConditions,
	store.CodeNotInitialized,
	store.CodeConstraint,
	store.CodeStoreError,
	store.CodeUnknown,
	CodeRollback,
}

func knownCode(code string) bool {
	return slices.Contains(knownCodes, code)
}

func errorCode(err error) string {
	if errors.Is(err, ErrForcedRollback) {
		return CodeRollback
	}
	return store.ErrorCode(err)
}

func matchesCode(err error, code string) bool {
	if code == CodeRollback {
		return errors.Is(err, ErrForcedRollback)
	}
	return store.MatchesCode(err, code)
}

// StepResult records one executed step.
type StepResult struct {
	Path  string `json:"path"`
	Op    string `json:"op"`
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expectation held.
	Pass bool `json:"pass"`

	// Steps lists executed steps in order, nested steps included.
	Steps []StepResult `json:"steps"`

	// Errors holds failed expectations. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepResult{},
		Errors: []string{},
	}
}

// AddError records a failed expectation and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Run executes sc against st.
//
// The returned error covers problems running the scenario at all (setup
// failed, a value could not be converted); failed expectations are
// reported in the Result. A close step closes st.
func Run(ctx context.Context, st *store.Store, sc *Scenario) (*Result, error) {
	if len(sc.Setup) > 0 {
		stmts := make([]querysql.Statement, len(sc.Setup))
		for i, ddl := range sc.Setup {
			stmts[i] = querysql.Statement{SQL: ddl}
		}
		if err := st.Migrate(ctx, stmts...); err != nil {
			return nil, fmt.Errorf("failed to execute setup: %w", err)
		}
	}

	r := &runner{store: st, result: NewResult()}
	for i := range sc.Steps {
		if _, err := r.step(ctx, st, fmt.Sprintf("steps[%d]", i), &sc.Steps[i]); err != nil {
			return nil, err
		}
	}
	return r.result, nil
}

type runner struct {
	store  *store.Store
	result *Result
}

// outcome is what a single operation produced.
type outcome struct {
	id      *int64
	rows    *int64
	count   *int64
	exists  *bool
	record  value.Record
	single  bool
	records []value.Record
	multi   bool
	err     error
}

// step executes s against ops and checks its expectations. The outcome
// carries the operation error so a transaction callback can propagate it;
// the returned error reports a step that could not be run at all.
func (r *runner) step(ctx context.Context, ops store.Operations, path string, s *Step) (outcome, error) {
	out, err := r.execute(ctx, ops, path, s)
	if err != nil {
		return out, fmt.Errorf("%s: %w", path, err)
	}

	r.result.Steps = append(r.result.Steps, StepResult{
		Path:  path,
		Op:    s.Op,
		Error: errorCode(out.err),
	})
	r.check(path, s, out)
	return out, nil
}

func (r *runner) execute(ctx context.Context, ops store.Operations, path string, s *Step) (outcome, error) {
	var out outcome

	switch s.Op {
	case OpInsert:
		rec, err := value.FromMap(s.Record)
		if err != nil {
			return out, err
		}
		id, opErr := ops.Insert(ctx, s.Table, rec)
		out.id, out.err = &id, opErr

	case OpUpdateByID, OpUpdateWhere, OpUpdateWhereAnd:
		set, err := value.FromMap(s.Set)
		if err != nil {
			return out, err
		}
		var n int64
		var opErr error
		switch s.Op {
		case OpUpdateByID:
			n, opErr = ops.UpdateByID(ctx, s.Table, *s.ID, set)
		case OpUpdateWhere:
			v, err := value.FromAny(s.Value)
			if err != nil {
				return out, err
			}
			n, opErr = ops.UpdateWhere(ctx, s.Table, set, s.Column, v)
		default:
			conds, err := value.FromMap(s.Where)
			if err != nil {
				return out, err
			}
			n, opErr = ops.UpdateWhereAnd(ctx, s.Table, set, conds)
		}
		out.rows, out.err = &n, opErr

	case OpDeleteByID:
		n, opErr := ops.DeleteByID(ctx, s.Table, *s.ID)
		out.rows, out.err = &n, opErr

	case OpDeleteWhere:
		v, err := value.FromAny(s.Value)
		if err != nil {
			return out, err
		}
		n, opErr := ops.DeleteWhere(ctx, s.Table, s.Column, v)
		out.rows, out.err = &n, opErr

	case OpDeleteWhereAnd:
		conds, err := value.FromMap(s.Where)
		if err != nil {
			return out, err
		}
		n, opErr := ops.DeleteWhereAnd(ctx, s.Table, conds)
		out.rows, out.err = &n, opErr

	case OpClearTable:
		n, opErr := ops.ClearTable(ctx, s.Table)
		out.rows, out.err = &n, opErr

	case OpFindByID:
		out.single = true
		out.record, out.err = ops.FindByID(ctx, s.Table, *s.ID)

	case OpFindOneBy:
		v, err := value.FromAny(s.Value)
		if err != nil {
			return out, err
		}
		out.single = true
		out.record, out.err = ops.FindOneBy(ctx, s.Table, s.Column, v)

	case OpFindBy:
		v, err := value.FromAny(s.Value)
		if err != nil {
			return out, err
		}
		out.multi = true
		out.records, out.err = ops.FindBy(ctx, s.Table, s.Column, v)

	case OpFindWhereAnd:
		conds, err := value.FromMap(s.Where)
		if err != nil {
			return out, err
		}
		out.multi = true
		out.records, out.err = ops.FindWhereAnd(ctx, s.Table, conds)

	case OpFindAll:
		out.multi = true
		page, err := pageOf(s)
		if err != nil {
			out.err = err
			break
		}
		out.records, out.err = ops.FindAll(ctx, s.Table, page)

	case OpExecuteQuery:
		args := make([]any, len(s.Args))
		for i, a := range s.Args {
			v, err := value.FromAny(a)
			if err != nil {
				return out, fmt.Errorf("args[%d]: %w", i, err)
			}
			args[i] = value.Arg(v)
		}
		out.multi = true
		out.records, out.err = ops.ExecuteQuery(ctx, s.SQL, args...)

	case OpCount:
		n, opErr := ops.Count(ctx, s.Table)
		out.count, out.err = &n, opErr

	case OpCountWhereAnd:
		conds, err := value.FromMap(s.Where)
		if err != nil {
			return out, err
		}
		n, opErr := ops.CountWhereAnd(ctx, s.Table, conds)
		out.count, out.err = &n, opErr

	case OpTableExists:
		ok, opErr := ops.TableExists(ctx, s.Table)
		out.exists, out.err = &ok, opErr

	case OpTransaction:
		var stepErr error
		out.err = r.store.Transaction(ctx, func(tx *store.Tx) error {
			for i := range s.Steps {
				nested, err := r.step(ctx, tx, fmt.Sprintf("%s.steps[%d]", path, i), &s.Steps[i])
				if err != nil {
					stepErr = err
					return err
				}
				if nested.err != nil {
					return nested.err
				}
			}
			if s.Fail {
				return ErrForcedRollback
			}
			return nil
		})
		if stepErr != nil {
			return out, stepErr
		}

	case OpClose:
		out.err = r.store.Close()

	default:
		return out, fmt.Errorf("unknown op %q", s.Op)
	}

	return out, nil
}

func pageOf(s *Step) (querysql.Page, error) {
	page := querysql.Page{Limit: s.Limit, Offset: s.Offset, Descending: s.Desc}
	if s.OrderBy != "" {
		col, err := ident.Column(s.OrderBy)
		if err != nil {
			return page, fmt.Errorf("find all: %w", err)
		}
		page.OrderBy = col
	}
	return page, nil
}

func (r *runner) check(path string, s *Step, out outcome) {
	exp := s.Expect
	if exp == nil {
		exp = &Expect{}
	}

	if exp.Error != "" {
		if out.err == nil {
			r.result.AddError(fmt.Sprintf("%s: expected error %q, got success", path, exp.Error))
		} else if !matchesCode(out.err, exp.Error) {
			r.result.AddError(fmt.Sprintf("%s: expected error %q, got %q (%v)", path, exp.Error, errorCode(out.err), out.err))
		}
		return
	}
	if out.err != nil {
		// A forced rollback is the expected outcome of fail: true.
		if s.Fail && errors.Is(out.err, ErrForcedRollback) {
			return
		}
		r.result.AddError(fmt.Sprintf("%s: unexpected error: %v", path, out.err))
		return
	}

	if exp.ID != nil {
		r.expectInt(path, "id", *exp.ID, out.id)
	}
	if exp.Rows != nil {
		r.expectInt(path, "rows", *exp.Rows, out.rows)
	}
	if exp.Count != nil {
		got := out.count
		if out.multi {
			n := int64(len(out.records))
			got = &n
		}
		r.expectInt(path, "count", *exp.Count, got)
	}
	if exp.Exists != nil {
		switch {
		case out.exists == nil:
			r.result.AddError(fmt.Sprintf("%s: exists does not apply to %s", path, s.Op))
		case *out.exists != *exp.Exists:
			r.result.AddError(fmt.Sprintf("%s: expected exists %v, got %v", path, *exp.Exists, *out.exists))
		}
	}
	if exp.Null {
		if !out.single {
			r.result.AddError(fmt.Sprintf("%s: null does not apply to %s", path, s.Op))
		} else if out.record != nil {
			r.result.AddError(fmt.Sprintf("%s: expected no record, got %s", path, describe(out.record)))
		}
	}
	if exp.Record != nil {
		switch {
		case !out.single:
			r.result.AddError(fmt.Sprintf("%s: record does not apply to %s", path, s.Op))
		case out.record == nil:
			r.result.AddError(fmt.Sprintf("%s: expected a record, got none", path))
		default:
			r.matchRecord(path, exp.Record, out.record)
		}
	}
	if exp.Records != nil {
		if !out.multi {
			r.result.AddError(fmt.Sprintf("%s: records does not apply to %s", path, s.Op))
			return
		}
		if len(exp.Records) != len(out.records) {
			r.result.AddError(fmt.Sprintf("%s: expected %d records, got %d", path, len(exp.Records), len(out.records)))
			return
		}
		for i := range exp.Records {
			r.matchRecord(fmt.Sprintf("%s.records[%d]", path, i), exp.Records[i], out.records[i])
		}
	}
}

func (r *runner) expectInt(path, field string, want int64, got *int64) {
	if got == nil {
		r.result.AddError(fmt.Sprintf("%s: %s does not apply to this op", path, field))
		return
	}
	if *got != want {
		r.result.AddError(fmt.Sprintf("%s: expected %s %d, got %d", path, field, want, *got))
	}
}

// matchRecord is a subset match: only expected fields are compared.
func (r *runner) matchRecord(path string, want map[string]any, got value.Record) {
	for _, field := range sortedKeys(want) {
		wantVal, err := value.FromAny(want[field])
		if err != nil {
			r.result.AddError(fmt.Sprintf("%s.%s: %v", path, field, err))
			continue
		}
		gotVal, ok := got[field]
		if !ok {
			r.result.AddError(fmt.Sprintf("%s: field %q missing", path, field))
			continue
		}
		if !equalValues(wantVal, gotVal) {
			r.result.AddError(fmt.Sprintf("%s.%s: expected %s, got %s",
				path, field, value.Format(wantVal), value.Format(gotVal)))
		}
	}
}

// equalValues compares storage class and content. An expected Integer
// matches a Real of the same magnitude, since YAML cannot tell 2 from 2.0.
func equalValues(want, got value.Value) bool {
	if w, ok := want.(value.Integer); ok {
		if g, ok := got.(value.Real); ok {
			return float64(w) == float64(g)
		}
	}
	return want.Kind() == got.Kind() && reflect.DeepEqual(value.Native(want), value.Native(got))
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func describe(rec value.Record) string {
	data, err := rec.MarshalJSON()
	if err != nil {
		return fmt.Sprint(rec.Native())
	}
	return string(data)
}
