package main

import (
	"context"
	"database/sql"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/movieflex/internal/config"
	"github.com/iliyamo/movieflex/internal/database"
	"github.com/iliyamo/movieflex/internal/logging"
)

// commandContext carries what every subcommand needs.  open and logger
// are replaced in tests.
type commandContext struct {
	envFile string
	open    func(ctx context.Context) (*sql.DB, error)
	logger  *zap.Logger
}

func newCommandContext() *commandContext {
	cc := &commandContext{}
	cc.open = func(ctx context.Context) (*sql.DB, error) {
		return database.Open(ctx, config.LoadDB())
	}
	return cc
}

// withDB opens the database for the duration of fn.
func (cc *commandContext) withDB(cmd *cobra.Command, fn func(db *sql.DB) error) error {
	db, err := cc.open(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

func newRootCommand() *cobra.Command {
	return newRootCommandWith(newCommandContext())
}

func newRootCommandWith(cc *commandContext) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "movieflexctl",
		Short:         "movieflex administration",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadEnvFile(cc.envFile); err != nil {
				return err
			}
			if cc.logger == nil {
				l, err := logging.New(os.Getenv("APP_ENV"))
				if err != nil {
					return err
				}
				cc.logger = l
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVar(&cc.envFile, "env-file", ".env", "Path to a .env file (optional)")

	rootCmd.AddCommand(newMigrateCommand(cc))
	rootCmd.AddCommand(newPromoteCommand(cc))
	rootCmd.AddCommand(newSweepCommand(cc))
	return rootCmd
}
