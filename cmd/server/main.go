package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/constructos-gateway/internal/config"
	"github.com/jrsteele09/constructos-gateway/internal/logging"
	"github.com/jrsteele09/constructos-gateway/server"
	"github.com/jrsteele09/constructos-gateway/token/oidcprovider"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	logging.Setup(os.Stderr, c.GetLogLevel(), c.GetEnv())
	displayAppname(c.GetAppName())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	provider, err := identityProvider(ctx, c)
	cancel()
	if err != nil {
		return err
	}

	handler, err := server.New(c, provider)
	if err != nil {
		return err
	}
	srv := &http.Server{Addr: c.GetPort(), Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- listenAndServe(srv)
	}()

	select {
	case err := <-errCh:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(srv)
}

// identityProvider discovers Azure AD when it is configured. Without a
// client and tenant ID the gateway runs with provider sign-in disabled.
func identityProvider(ctx context.Context, c config.Config) (*oidcprovider.Provider, error) {
	if !c.IsAzureADConfigured() {
		log.Warn().Msg("Azure AD is not configured, route guards are disabled")
		return oidcprovider.Disabled(), nil
	}
	provider, err := oidcprovider.New(ctx, oidcprovider.Settings{
		Issuer:       c.GetOIDCIssuer(),
		ClientID:     c.GetAzureClientID(),
		ClientSecret: c.GetAzureClientSecret(),
		RedirectURL:  c.GetBaseURL() + server.RouteCallback,
		Scopes:       c.GetOIDCScopes(),
	})
	if err != nil {
		return nil, fmt.Errorf("identity provider: %w", err)
	}
	log.Info().Str("issuer", c.GetOIDCIssuer()).Msg("Azure AD sign-in enabled")
	return provider, nil
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
