package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jrsteele09/constructos-gateway/guard"
)

func newAccessCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "access [path...]",
		Short: "Show how each guarded page treats the signed-in user",
		Long: `Signs in, then runs the route guard for every page rule in the rules
file (or only the paths given) and prints the outcome.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, rules, err := o.roleTable()
			if err != nil {
				return err
			}
			if len(rules.Pages) == 0 {
				return fmt.Errorf("no page rules loaded, pass --rules")
			}

			ctx, cancel := o.context(cmd)
			defer cancel()
			agg, done, err := o.signIn(ctx, cmd)
			if err != nil {
				return err
			}
			defer done()
			state := agg.State()

			wanted := map[string]bool{}
			for _, a := range args {
				wanted[a] = true
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PATH\tOUTCOME\tREDIRECT")
			for _, page := range rules.Pages {
				if len(wanted) > 0 && !wanted[page.Path] {
					continue
				}
				d := guard.Decide(state, guard.Requirements{
					RequireAuth:  page.RequireAuth,
					AllowedRoles: page.AllowedRoles,
					RedirectTo:   page.RedirectTo,
				})
				fmt.Fprintf(tw, "%s\t%s\t%s\n", page.Path, d.Outcome, d.RedirectTo)
			}
			return tw.Flush()
		},
	}
	addSignInFlags(cmd, o)
	return cmd
}
