package cli

import (
	"errors"
	"fmt"

	"github.com/beezwax/fmrest-go/pkg/fmrest"
	"github.com/beezwax/fmrest-go/pkg/slogx"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

// probePath is a cheap database-scoped endpoint used to force a session.
const probePath = "layouts"

func newSessionCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "session",
		Short: "Create or reuse a Data API session",
		Long: `Session makes sure a valid session exists for the configured host,
database and account, logging in only when the stored token is missing or
rejected. It prints the token store scope and the login strategy.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, ctx, err := openApp(cmd, o)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.get(ctx, probePath); err != nil {
				return err
			}

			_, stored, err := a.storedToken(ctx)
			if err != nil {
				return err
			}

			settings := a.client.Settings()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "scope:    %s\n", a.client.ScopeKey())
			fmt.Fprintf(out, "strategy: %s\n", settings.Strategy())
			fmt.Fprintf(out, "stored:   %t\n", stored)
			return nil
		},
	}
}

func newGetCmd(o *rootOptions) *cobra.Command {
	var pretty bool

	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "GET a database-scoped Data API path",
		Long: `Get sends GET <database url>/<path> with the current session and
writes the response body to stdout.

Examples:
  fmrest get layouts
  fmrest get layouts/People/records/12 --pretty`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := openApp(cmd, o)
			if err != nil {
				return err
			}
			defer a.Close()

			body, err := a.get(ctx, args[0])
			if err != nil {
				return err
			}

			if pretty && gjson.ValidBytes(body) {
				body = []byte(gjson.GetBytes(body, "@pretty").Raw)
			}
			_, err = cmd.OutOrStdout().Write(body)
			return err
		},
	}

	cmd.Flags().BoolVar(&pretty, "pretty", false, "Indent JSON output")
	return cmd
}

func newTokenCmd(o *rootOptions) *cobra.Command {
	var cached bool

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print the session token",
		Long: `Token prints the stored session token for the configured scope,
creating a session first when none is stored. With --cached it only reads
the token store and fails when it is empty.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, ctx, err := openApp(cmd, o)
			if err != nil {
				return err
			}
			defer a.Close()

			token, found, err := a.storedToken(ctx)
			if err != nil {
				return err
			}
			if !found && !cached {
				if _, err := a.get(ctx, probePath); err != nil {
					return err
				}
				token, found, err = a.storedToken(ctx)
				if err != nil {
					return err
				}
			}
			if !found {
				return fmrest.ErrNoSessionToken
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().BoolVar(&cached, "cached", false, "Only read the token store")
	return cmd
}

func newLogoutCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the current Data API session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, ctx, err := openApp(cmd, o)
			if err != nil {
				return err
			}
			defer a.Close()

			err = a.client.Logout(ctx)
			if errors.Is(err, fmrest.ErrNoSessionToken) {
				slogx.FromContext(ctx).Info("no active session", "scope", a.client.ScopeKey())
				return nil
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "logged out of %s\n", a.client.ScopeKey())
			return nil
		},
	}
}
