package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/sqlguard/internal/ident"
)

// CheckResult is the JSON payload of the check command.
type CheckResult struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	var kind string
	var reserved bool

	cmd := &cobra.Command{
		Use:   "check <name>...",
		Short: "Check names against the identifier rules",
		Long: `Check table or column names against the identifier rules without
touching a database. Exits 1 if any name is rejected. With --reserved,
print the reserved words instead.

Examples:
  sqlguard check users
  sqlguard check --kind column "full name" DROP
  sqlguard check --reserved`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			if reserved {
				return runReserved(f)
			}
			if len(args) == 0 {
				return f.Usage("check needs at least one name, or --reserved")
			}
			k := ident.Kind(kind)
			if k != ident.KindTable && k != ident.KindColumn {
				return f.Usage(fmt.Sprintf("invalid --kind %q: must be table or column", kind))
			}
			return runCheck(f, k, args)
		},
	}

	cmd.Flags().StringVar(&kind, "kind", string(ident.KindTable), "identifier kind (table|column)")
	cmd.Flags().BoolVar(&reserved, "reserved", false, "list the reserved words")

	return cmd
}

func runCheck(f *OutputFormatter, kind ident.Kind, names []string) error {
	results := make([]CheckResult, len(names))
	rejected := 0
	for i, name := range names {
		results[i] = CheckResult{Name: name, Kind: string(kind), Valid: true}
		if err := ident.Validate(name, kind); err != nil {
			results[i].Valid = false
			var invalid *ident.InvalidIdentifierError
			if errors.As(err, &invalid) {
				results[i].Reason = string(invalid.Reason)
			} else {
				results[i].Reason = err.Error()
			}
			rejected++
		}
	}

	if f.Format == "json" {
		if err := f.Success(results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			if r.Valid {
				fmt.Fprintf(f.Writer, "✓ %s %q\n", r.Kind, r.Name)
			} else {
				fmt.Fprintf(f.Writer, "✗ %s %q: %s\n", r.Kind, r.Name, r.Reason)
			}
		}
	}

	if rejected > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d name(s) rejected", rejected))
	}
	return nil
}

func runReserved(f *OutputFormatter) error {
	words := ident.ReservedWords()
	if f.Format == "json" {
		return f.Success(words)
	}
	for _, w := range words {
		fmt.Fprintln(f.Writer, w)
	}
	return nil
}
