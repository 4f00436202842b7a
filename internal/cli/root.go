package cli

import (
	"context"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	host       string
	database   string
	username   string
	store      string
	storeDSN   string
	logLevel   string
	verbose    bool
}

// NewRootCmd builds the fmrest command tree.
func NewRootCmd() *cobra.Command {
	o := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "fmrest",
		Short: "FileMaker Data API session tool",
		Long: `fmrest creates, reuses and ends FileMaker Data API sessions.

Settings are read from fmrest.yaml (or --config), a .env file and FMREST_*
environment variables, in increasing order of precedence. Flags win over all
of them. Passwords are never accepted as flags; use FMREST_PASSWORD.

Session tokens are kept in a token store shared by every invocation. The
default is a JSON file in the user cache directory; sqlite, redis and
postgres stores can be selected with --store.

Exit Codes:
  0  - Success
  1  - General error
  3  - Panic or unexpected system error
  10 - Invalid configuration
  11 - Authentication failed
  12 - Connection failed`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := cmd.PersistentFlags()
	f.StringVarP(&o.configPath, "config", "c", "", "Path to config file (default: ./fmrest.yaml if present)")
	f.StringVar(&o.host, "host", "", "FileMaker host, e.g. fm.example.com")
	f.StringVarP(&o.database, "database", "d", "", "Database name")
	f.StringVarP(&o.username, "username", "u", "", "Account name or Claris ID")
	f.StringVar(&o.store, "store", "", "Token store: file, sqlite, redis, postgres, memory, null")
	f.StringVar(&o.storeDSN, "store-dsn", "", "Token store path, URL or connection string")
	f.StringVar(&o.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	f.BoolVarP(&o.verbose, "verbose", "v", false, "Log every Data API request")

	cmd.AddCommand(
		newSessionCmd(o),
		newGetCmd(o),
		newTokenCmd(o),
		newLogoutCmd(o),
		newVersionCmd(),
	)
	return cmd
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}
