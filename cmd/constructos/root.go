package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/jrsteele09/constructos-gateway/authstate"
	"github.com/jrsteele09/constructos-gateway/backend"
	"github.com/jrsteele09/constructos-gateway/internal/config"
	gwerrors "github.com/jrsteele09/constructos-gateway/internal/errors"
	"github.com/jrsteele09/constructos-gateway/internal/logging"
	"github.com/jrsteele09/constructos-gateway/token"
	"github.com/jrsteele09/constructos-gateway/token/oidcprovider"
	"github.com/jrsteele09/constructos-gateway/users"
)

// options are shared by every subcommand.
type options struct {
	cfg        config.Config
	backendURL string
	rulesFile  string
	logLevel   string
	timeout    time.Duration

	azure    bool
	username string
	password string
	role     string
}

func newRootCmd() *cobra.Command {
	o := &options{cfg: config.New()}

	root := &cobra.Command{
		Use:           "constructos",
		Short:         "ConstructOS sign-in tooling",
		Long:          `constructos signs in against the ConstructOS backend and reports the resolved auth state.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Setup(cmd.ErrOrStderr(), o.logLevel, o.cfg.GetEnv())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&o.backendURL, "backend", o.cfg.GetBackendURL(), "ConstructOS backend URL (also BACKEND_URL)")
	flags.StringVar(&o.rulesFile, "rules", o.cfg.GetAccessRulesFile(), "Role table and page rules YAML (also ROLE_TABLE_FILE)")
	flags.StringVar(&o.logLevel, "log-level", "WARN", "Log level")
	flags.DurationVar(&o.timeout, "timeout", 2*time.Minute, "Overall timeout for sign-in and resolution")

	root.AddCommand(newWhoamiCmd(o))
	root.AddCommand(newAccessCmd(o))
	root.AddCommand(newDemoUsersCmd(o))
	return root
}

func addSignInFlags(cmd *cobra.Command, o *options) {
	cmd.Flags().BoolVar(&o.azure, "azure", false, "Sign in with Azure AD using the device code flow")
	cmd.Flags().StringVarP(&o.username, "username", "u", "", "Sign in with a username")
	cmd.Flags().StringVarP(&o.password, "password", "p", "", "Password for --username (also CONSTRUCTOS_PASSWORD)")
	cmd.Flags().StringVar(&o.role, "role", "", "Sign in as the demo user for a role")
	cmd.MarkFlagsMutuallyExclusive("azure", "username", "role")
}

func (o *options) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), o.timeout)
}

func (o *options) roleTable() (*users.RoleTable, config.AccessRules, error) {
	if o.rulesFile == "" {
		return users.NewRoleTable(nil), config.AccessRules{}, nil
	}
	rules, err := config.LoadAccessRules(o.rulesFile)
	if err != nil {
		return nil, config.AccessRules{}, err
	}
	return users.NewRoleTable(rules.Roles), rules, nil
}

// provider builds the Azure AD client when --azure is set. Device codes are
// printed to out.
func (o *options) provider(ctx context.Context, out io.Writer) (token.Provider, error) {
	if !o.azure {
		return nil, nil
	}
	if !o.cfg.IsAzureADConfigured() {
		return nil, gwerrors.Wrapf(gwerrors.ErrNotConfigured, "set AZURE_CLIENT_ID and AZURE_TENANT_ID")
	}
	return oidcprovider.New(ctx, oidcprovider.Settings{
		Issuer:       o.cfg.GetOIDCIssuer(),
		ClientID:     o.cfg.GetAzureClientID(),
		ClientSecret: o.cfg.GetAzureClientSecret(),
		Scopes:       o.cfg.GetOIDCScopes(),
	}, oidcprovider.WithDevicePrompt(func(resp *oauth2.DeviceAuthResponse) {
		fmt.Fprintf(out, "To sign in, open %s and enter the code %s\n", resp.VerificationURI, resp.UserCode)
	}))
}

// signIn builds an aggregator for one terminal session and signs in with
// whichever method the flags ask for. With no method it only probes.
// The returned func ends the session.
func (o *options) signIn(ctx context.Context, cmd *cobra.Command) (*authstate.Aggregator, func(), error) {
	roles, _, err := o.roleTable()
	if err != nil {
		return nil, nil, err
	}
	provider, err := o.provider(ctx, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}

	holder := token.NewHolder()
	client, err := backend.NewClient(o.backendURL, backend.WithTokenProvider(holder))
	if err != nil {
		return nil, nil, err
	}
	agg := authstate.New(client, token.NewAcquirer(provider, holder),
		authstate.WithRoleTable(roles),
		authstate.WithRetries(o.cfg.GetAuthStateRetries()),
	)
	done := func() {
		logoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		agg.Logout(logoutCtx)
	}

	password := o.password
	if password == "" {
		password = os.Getenv("CONSTRUCTOS_PASSWORD")
	}

	var payload backend.SessionPayload
	switch {
	case o.azure:
		if err := agg.Login(ctx); err != nil {
			return nil, nil, err
		}
		return agg, done, nil
	case o.username != "":
		payload, err = client.Login(ctx, o.username, password)
	case o.role != "":
		payload, err = client.QuickLogin(ctx, o.role)
	default:
		agg.Mount(ctx)
		return agg, done, nil
	}
	if err != nil {
		return nil, nil, err
	}
	if err := agg.LoginWithCredentials(payload); err != nil {
		done()
		return nil, nil, err
	}
	log.Debug().Str("username", payload.User.Username).Msg("Signed in")
	return agg, done, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
