package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"

	"github.com/roach88/sqlguard/internal/store"
	"github.com/roach88/sqlguard/internal/value"
)

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // rejected operation or failed scenario
	ExitCommandError = 2 // bad arguments or unusable database
)

// Error codes for failures that do not come from the store.
const (
	ErrCodeUsage    = "usage"
	ErrCodeSchema   = "schema_error"
	ErrCodeScenario = "scenario_error"
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error // may be nil
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError returns an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError attaches an exit code to err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode maps err to a process exit code. Errors without an
// ExitError in their chain exit with ExitFailure.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter writes command results as text or as a JSON envelope.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics; Writer when nil
	Verbose   bool
}

// CLIResponse is the JSON envelope of every command.
type CLIResponse struct {
	Status  string    `json:"status"`             // "ok" or "error"
	Data    any       `json:"data,omitempty"`     // success payload
	Error   *CLIError `json:"error,omitempty"`    // error details
	TraceID string    `json:"trace_id,omitempty"` // per-invocation correlation id
}

// CLIError describes a failure inside a CLIResponse.
type CLIError struct {
	Code    string `json:"code"`              // store.ErrorCode value or ErrCode*
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// newTraceID returns a time-ordered UUIDv7, or "" if generation fails.
func newTraceID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return ""
	}
	return id.String()
}

// Success writes data. In text mode records render as a table and other
// values print with fmt.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status:  "ok",
			Data:    data,
			TraceID: newTraceID(),
		})
	}

	switch d := data.(type) {
	case []value.Record:
		f.renderRecords(d)
	case value.Record:
		if d == nil {
			fmt.Fprintln(f.Writer, "(no row)")
			return nil
		}
		f.renderRecords([]value.Record{d})
	default:
		fmt.Fprintln(f.Writer, data)
	}
	return nil
}

// Result outputs data as JSON, or text in text mode.
func (f *OutputFormatter) Result(data any, text string) error {
	if f.Format == "json" {
		return f.Success(data)
	}
	fmt.Fprintln(f.Writer, text)
	return nil
}

// Error writes a failure with a machine-readable code.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
			TraceID: newTraceID(),
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err and returns the ExitError for the command to return.
// Store and identifier errors exit with ExitFailure.
func (f *OutputFormatter) Fail(err error) error {
	code := store.ErrorCode(err)
	_ = f.Error(code, err.Error(), nil)
	return WrapExitError(ExitFailure, code, err)
}

// Usage reports a bad argument and returns an ExitCommandError.
func (f *OutputFormatter) Usage(message string) error {
	_ = f.Error(ErrCodeUsage, message, nil)
	return NewExitError(ExitCommandError, message)
}

// VerboseLog writes a diagnostic line when Verbose is set. It goes to the
// error writer so JSON on Writer stays parseable.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the diagnostics writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// renderRecords prints records as a table. Columns are the sorted union of
// all record keys, with "id" first when present.
func (f *OutputFormatter) renderRecords(records []value.Record) {
	renderRecords(f.Writer, records)
}

func renderRecords(w io.Writer, records []value.Record) {
	if len(records) == 0 {
		fmt.Fprintln(w, "(0 rows)")
		return
	}

	header := recordColumns(records)
	rows := make([][]string, len(records))
	for i, rec := range records {
		row := make([]string, len(header))
		for j, col := range header {
			if v, ok := rec[col]; ok {
				row[j] = value.Format(v)
			}
		}
		rows[i] = row
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.AppendBulk(rows)
	table.Render()

	noun := "rows"
	if len(records) == 1 {
		noun = "row"
	}
	fmt.Fprintf(w, "(%d %s)\n", len(records), noun)
}

func recordColumns(records []value.Record) []string {
	seen := map[string]bool{}
	var cols []string
	hasID := false
	for _, rec := range records {
		for _, k := range rec.SortedKeys() {
			if seen[k] {
				continue
			}
			seen[k] = true
			if k == "id" {
				hasID = true
				continue
			}
			cols = append(cols, k)
		}
	}
	slices.Sort(cols)
	if hasID {
		cols = append([]string{"id"}, cols...)
	}
	return cols
}
