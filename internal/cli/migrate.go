package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/sqlguard/internal/schema"
)

// MigrateResult is the JSON payload of the migrate command.
type MigrateResult struct {
	Tables     []string `json:"tables"`
	Statements []string `json:"statements"`
}

// MigrateOptions holds flags for the migrate command.
type MigrateOptions struct {
	*RootOptions
	DryRun bool
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "migrate <schema-dir>",
		Short: "Create tables declared in CUE schema files",
		Long: `Create the tables declared in the CUE files of a directory.

Tables that already exist are left unchanged. All statements run in one
transaction.

Schema format:
  table: users: column: {
      id:   {type: "INTEGER", primary_key: true, autoincrement: true}
      name: {type: "TEXT", not_null: true}
  }

Example:
  sqlguard migrate ./schema --db app.db
  sqlguard migrate ./schema --dry-run`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "print statements without applying them")

	return cmd
}

func runMigrate(opts *MigrateOptions, dir string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	tables, err := schema.Load(dir)
	if err != nil {
		var details any
		var schemaErr *schema.Error
		if errors.As(err, &schemaErr) && schemaErr.Pos.IsValid() {
			details = map[string]any{
				"file":   schemaErr.Pos.Filename(),
				"line":   schemaErr.Pos.Line(),
				"column": schemaErr.Pos.Column(),
			}
		}
		_ = f.Error(ErrCodeSchema, err.Error(), details)
		return WrapExitError(ExitCommandError, "failed to load schema", err)
	}

	stmts, err := schema.Statements(tables)
	if err != nil {
		_ = f.Error(ErrCodeSchema, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to build schema", err)
	}

	result := MigrateResult{
		Tables:     make([]string, len(tables)),
		Statements: make([]string, len(stmts)),
	}
	for i, t := range tables {
		result.Tables[i] = t.Name.Name()
	}
	for i, s := range stmts {
		result.Statements[i] = s.SQL
		f.VerboseLog("%s", s.SQL)
	}

	if !opts.DryRun {
		st, err := opts.openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(cmdContext(cmd), stmts...); err != nil {
			return f.Fail(err)
		}
	}

	if f.Format == "json" {
		return f.Success(result)
	}
	if opts.DryRun {
		for _, s := range result.Statements {
			fmt.Fprintf(f.Writer, "%s;\n", s)
		}
		return nil
	}
	fmt.Fprintf(f.Writer, "✓ %d table(s) ready: %v\n", len(result.Tables), result.Tables)
	return nil
}
