package main

import (
	"github.com/spf13/cobra"
)

func newWhoamiCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Sign in and print the resolved auth state",
		Long: `Signs in and prints the auth state as JSON, the same document the
gateway serves from /auth/state. The session is logged out on exit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := o.context(cmd)
			defer cancel()

			agg, done, err := o.signIn(ctx, cmd)
			if err != nil {
				return err
			}
			defer done()
			return printJSON(cmd.OutOrStdout(), agg.State().View())
		},
	}
	addSignInFlags(cmd, o)
	return cmd
}
