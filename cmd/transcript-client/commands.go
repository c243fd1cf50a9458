// cmd/transcript-client/commands.go
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"transcript-client/internal/app"
	"transcript-client/internal/clients/subscription"
)

func newTranscriptCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "transcript <url>",
		Short: "Print the transcript for a video URL as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: ctx.withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			entries, err := a.Transcripts.FetchTranscript(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd, entries)
		}),
	}
}

func newUpgradeCommand(ctx *commandContext) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:       "upgrade <account-type>",
		Short:     "Change the subscription tier of the signed-in account",
		Args:      cobra.ExactArgs(1),
		ValidArgs: subscription.SuggestedTiers,
		RunE: ctx.withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			var err error
			if token != "" {
				err = a.Upgrades.Upgrade(cmd.Context(), args[0], token)
			} else {
				err = a.Upgrades.UpgradeWithStoredToken(cmd.Context(), args[0])
			}
			if err != nil {
				if stderrors.Is(err, subscription.ErrUpgradeInProgress) {
					return err
				}
				return stderrors.New(a.Upgrades.ErrorMessage())
			}

			fmt.Fprintln(cmd.OutOrStdout(), a.Upgrades.SuccessMessage())
			return nil
		}),
	}

	cmd.Flags().StringVar(&token, "token", "", "Bearer token to use instead of the stored one")
	return cmd
}

func newWhoamiCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the persisted identity",
		Args:  cobra.NoArgs,
		RunE: ctx.withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			current := a.Identity.Current()
			if current == nil {
				return stderrors.New("not signed in")
			}
			return writeJSON(cmd, current)
		}),
	}
}

func newLogoutCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored token and identity",
		Args:  cobra.NoArgs,
		RunE: ctx.withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			if err := a.Session.Clear(cmd.Context()); err != nil {
				return err
			}
			a.Identity.Set(nil)
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		}),
	}
}

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve health and metrics endpoints until interrupted",
		Args:  cobra.NoArgs,
		RunE: ctx.withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := &http.Server{
				Addr:              addr,
				Handler:           a.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.Logger.Info("Health/Metrics server listening", map[string]interface{}{"addr": addr})
				if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return err
				}
			case <-sigCtx.Done():
			}

			a.Logger.Info("Shutdown signal received, stopping server...", nil)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		}),
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address for /health, /ready and /metrics")
	return cmd
}
