package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/roach88/sqlguard/internal/ident"
	"github.com/roach88/sqlguard/internal/store"
	"github.com/roach88/sqlguard/internal/value"
)

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "query <sql> [args...]",
		Short: "Run a raw SQL statement with bound arguments",
		Long: `Run a raw SQL statement and print any rows it returns.

The statement text is not checked: identifiers in it are trusted as written.
Arguments bind to ? placeholders; JSON scalars keep their type, anything
else is bound as text.

Example:
  sqlguard query 'SELECT name FROM users WHERE age > ?' 21`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			params, err := parseArgs(args[1:])
			if err != nil {
				return f.Usage(err.Error())
			}
			st, err := rootOpts.openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			records, err := st.ExecuteQuery(cmdContext(cmd), args[0], params...)
			if err != nil {
				return f.Fail(err)
			}
			return f.Success(records)
		},
	}
}

// errShellRollback ends every shell transaction.
var errShellRollback = errors.New("shell rollback")

// ShellOptions holds flags for the shell command.
type ShellOptions struct {
	*RootOptions
	HistoryFile string
}

// NewShellCommand creates the shell command.
func NewShellCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShellOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Interactive read-only SQL shell",
		Long: `Start an interactive SQL shell on the database.

Each statement runs in a transaction that is always rolled back, so the
shell never changes the database.

Meta commands:
  \dt          list tables
  \d <table>   describe a table
  \q, exit     quit`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.HistoryFile, "history", "", "history file (empty = no history)")

	return cmd
}

func runShell(opts *ShellOptions, cmd *cobra.Command) error {
	st, err := opts.openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	l, err := readline.NewEx(&readline.Config{
		Prompt:          "sqlguard> ",
		HistoryFile:     opts.HistoryFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start shell", err)
	}
	defer l.Close()

	out := cmd.OutOrStdout()
	ctx := cmdContext(cmd)
	fmt.Fprintln(out, `sqlguard shell. \q to quit.`)
	for {
		line, err := l.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if len(line) == 0 {
				return nil
			}
			continue
		} else if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read line", err)
		}

		if quit := shellLine(ctx, st, line, out); quit {
			return nil
		}
	}
}

// shellLine handles one line of shell input and reports whether to quit.
func shellLine(ctx context.Context, st *store.Store, line string, out io.Writer) bool {
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "":
		return false
	case trimmed == `\q` || trimmed == "quit" || trimmed == "exit":
		return true
	case trimmed == `\dt`:
		shellQuery(ctx, st, out, "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	case strings.HasPrefix(trimmed, `\d`):
		name := strings.TrimSpace(trimmed[len(`\d`):])
		table, err := ident.Table(name)
		if err != nil {
			fmt.Fprintln(out, "Error:", err)
			return false
		}
		shellQuery(ctx, st, out, `SELECT name, type, "notnull", pk FROM pragma_table_info(?) ORDER BY cid`, table.Name())
	default:
		shellQuery(ctx, st, out, strings.TrimSuffix(trimmed, ";"))
	}
	return false
}

func shellQuery(ctx context.Context, st *store.Store, out io.Writer, query string, args ...any) {
	var records []value.Record
	err := st.Transaction(ctx, func(tx *store.Tx) error {
		var err error
		records, err = tx.ExecuteQuery(ctx, query, args...)
		if err != nil {
			return err
		}
		return errShellRollback
	})
	if err != nil && !errors.Is(err, errShellRollback) {
		fmt.Fprintln(out, "Error:", err)
		return
	}
	renderRecords(out, records)
}
