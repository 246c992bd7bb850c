package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jrsteele09/constructos-gateway/backend"
)

func newDemoUsersCmd(o *options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "demo-users",
		Short: "List the demo accounts offered for quick login",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := o.context(cmd)
			defer cancel()

			client, err := backend.NewClient(o.backendURL)
			if err != nil {
				return err
			}
			demo, err := client.DemoUsers(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), demo)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ROLE\tUSERNAME\tNAME\tDEPARTMENT")
			for _, u := range demo {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", u.Role, u.Username, u.FullName, u.Department)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}
