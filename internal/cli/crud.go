package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/sqlguard/internal/ident"
	"github.com/roach88/sqlguard/internal/querysql"
	"github.com/roach88/sqlguard/internal/value"
)

// NewInsertCommand creates the insert command.
func NewInsertCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "insert <table> <json-record>",
		Short: "Insert a row and print its id",
		Long: `Insert a row built from a JSON object and print the generated id.

Example:
  sqlguard insert users '{"name":"Alice","age":30}'`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			rec, err := value.ParseRecord([]byte(args[1]))
			if err != nil {
				return f.Usage(fmt.Sprintf("invalid record JSON: %v", err))
			}
			st, err := rootOpts.openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			id, err := st.Insert(cmdContext(cmd), args[0], rec)
			if err != nil {
				return f.Fail(err)
			}
			return f.Result(map[string]int64{"id": id}, fmt.Sprintf("inserted id %d", id))
		},
	}
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "get <table> <id>",
		Short:         "Print the row with the given id",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			id, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return f.Usage(fmt.Sprintf("invalid id %q", args[1]))
			}
			st, err := rootOpts.openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			rec, err := st.FindByID(cmdContext(cmd), args[0], id)
			if err != nil {
				return f.Fail(err)
			}
			return f.Success(rec)
		},
	}
}

// FindOptions holds flags for the find command.
type FindOptions struct {
	*RootOptions
	Where   []string
	One     bool
	Limit   int
	Offset  int
	OrderBy string
	Desc    bool
}

// NewFindCommand creates the find command.
func NewFindCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FindOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "find <table>",
		Short: "Print rows matching equality conditions",
		Long: `Print rows matching every --where condition, or all rows.

Paging flags apply only without --where. An --offset without --limit is
ignored and a warning is logged.

Examples:
  sqlguard find users
  sqlguard find users --where name=Alice
  sqlguard find users --where plan=pro --where age=30
  sqlguard find users --where email=a@example.com --one
  sqlguard find users --limit 10 --offset 20 --order-by id --desc`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFind(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Where, "where", "w", nil, "equality condition column=value (repeatable)")
	cmd.Flags().BoolVar(&opts.One, "one", false, "print only the first match of a single --where")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum rows (0 = no limit)")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "rows to skip (requires --limit)")
	cmd.Flags().StringVar(&opts.OrderBy, "order-by", "", "column to order by")
	cmd.Flags().BoolVar(&opts.Desc, "desc", false, "order descending")

	return cmd
}

func runFind(opts *FindOptions, table string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	conds, err := parseConditions(opts.Where)
	if err != nil {
		return f.Usage(err.Error())
	}
	paged := opts.Limit != 0 || opts.Offset != 0 || opts.OrderBy != "" || opts.Desc
	switch {
	case opts.Limit < 0 || opts.Offset < 0:
		return f.Usage("--limit and --offset must be non-negative")
	case paged && len(conds) > 0:
		return f.Usage("paging flags cannot be combined with --where")
	case opts.One && len(conds) != 1:
		return f.Usage("--one requires exactly one --where")
	}

	st, err := opts.openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()
	ctx := cmdContext(cmd)

	if opts.One {
		col, v := singleCondition(conds)
		rec, err := st.FindOneBy(ctx, table, col, v)
		if err != nil {
			return f.Fail(err)
		}
		return f.Success(rec)
	}

	var records []value.Record
	switch len(conds) {
	case 0:
		page := querysql.Page{Limit: opts.Limit, Offset: opts.Offset, Descending: opts.Desc}
		if opts.OrderBy != "" {
			col, err := ident.Column(opts.OrderBy)
			if err != nil {
				return f.Fail(fmt.Errorf("find all: %w", err))
			}
			page.OrderBy = col
		}
		if page.OffsetIgnored() {
			f.VerboseLog("--offset %d ignored: no --limit", opts.Offset)
		}
		records, err = st.FindAll(ctx, table, page)
	case 1:
		col, v := singleCondition(conds)
		records, err = st.FindBy(ctx, table, col, v)
	default:
		records, err = st.FindWhereAnd(ctx, table, conds)
	}
	if err != nil {
		return f.Fail(err)
	}
	return f.Success(records)
}

// TargetOptions selects rows by --id or --where for update and delete.
type TargetOptions struct {
	*RootOptions
	ID    int64
	Where []string
}

func (o *TargetOptions) bind(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&o.ID, "id", 0, "row id")
	cmd.Flags().StringArrayVarP(&o.Where, "where", "w", nil, "equality condition column=value (repeatable)")
	cmd.MarkFlagsMutuallyExclusive("id", "where")
	cmd.MarkFlagsOneRequired("id", "where")
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TargetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "update <table> <json-set>",
		Short: "Update rows selected by --id or --where",
		Long: `Set columns from a JSON object on rows selected by --id or --where.

Examples:
  sqlguard update users '{"age":31}' --id 1
  sqlguard update users '{"plan":"pro"}' --where email=a@example.com`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			set, err := value.ParseRecord([]byte(args[1]))
			if err != nil {
				return f.Usage(fmt.Sprintf("invalid record JSON: %v", err))
			}
			conds, err := parseConditions(opts.Where)
			if err != nil {
				return f.Usage(err.Error())
			}
			st, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()
			ctx := cmdContext(cmd)

			var n int64
			switch {
			case cmd.Flags().Changed("id"):
				n, err = st.UpdateByID(ctx, args[0], opts.ID, set)
			case len(conds) == 1:
				col, v := singleCondition(conds)
				n, err = st.UpdateWhere(ctx, args[0], set, col, v)
			default:
				n, err = st.UpdateWhereAnd(ctx, args[0], set, conds)
			}
			if err != nil {
				return f.Fail(err)
			}
			return f.Result(map[string]int64{"rows": n}, fmt.Sprintf("updated %d row(s)", n))
		},
	}
	opts.bind(cmd)

	return cmd
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TargetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "delete <table>",
		Short:         "Delete rows selected by --id or --where",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			conds, err := parseConditions(opts.Where)
			if err != nil {
				return f.Usage(err.Error())
			}
			st, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()
			ctx := cmdContext(cmd)

			var n int64
			switch {
			case cmd.Flags().Changed("id"):
				n, err = st.DeleteByID(ctx, args[0], opts.ID)
			case len(conds) == 1:
				col, v := singleCondition(conds)
				n, err = st.DeleteWhere(ctx, args[0], col, v)
			default:
				n, err = st.DeleteWhereAnd(ctx, args[0], conds)
			}
			if err != nil {
				return f.Fail(err)
			}
			return f.Result(map[string]int64{"rows": n}, fmt.Sprintf("deleted %d row(s)", n))
		},
	}
	opts.bind(cmd)

	return cmd
}

// NewCountCommand creates the count command.
func NewCountCommand(rootOpts *RootOptions) *cobra.Command {
	var where []string

	cmd := &cobra.Command{
		Use:           "count <table>",
		Short:         "Count rows, optionally matching --where conditions",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			conds, err := parseConditions(where)
			if err != nil {
				return f.Usage(err.Error())
			}
			st, err := rootOpts.openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()
			ctx := cmdContext(cmd)

			var n int64
			if len(conds) == 0 {
				n, err = st.Count(ctx, args[0])
			} else {
				n, err = st.CountWhereAnd(ctx, args[0], conds)
			}
			if err != nil {
				return f.Fail(err)
			}
			return f.Result(map[string]int64{"count": n}, strconv.FormatInt(n, 10))
		},
	}
	cmd.Flags().StringArrayVarP(&where, "where", "w", nil, "equality condition column=value (repeatable)")

	return cmd
}

// NewClearCommand creates the clear command.
func NewClearCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "clear <table>",
		Short:         "Delete every row of a table",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			st, err := rootOpts.openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := st.ClearTable(cmdContext(cmd), args[0])
			if err != nil {
				return f.Fail(err)
			}
			return f.Result(map[string]int64{"rows": n}, fmt.Sprintf("cleared %d row(s)", n))
		},
	}
}

// NewExistsCommand creates the exists command.
func NewExistsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "exists <table>",
		Short:         "Report whether a table exists",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			st, err := rootOpts.openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			ok, err := st.TableExists(cmdContext(cmd), args[0])
			if err != nil {
				return f.Fail(err)
			}
			return f.Result(map[string]bool{"exists": ok}, strconv.FormatBool(ok))
		},
	}
}

// cmdContext returns the command's context, or Background when run outside
// Execute (tests that call RunE directly).
func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
