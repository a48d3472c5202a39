package main

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iliyamo/movieflex/internal/config"
	"github.com/iliyamo/movieflex/internal/database"
	"github.com/iliyamo/movieflex/internal/payment"
	"github.com/iliyamo/movieflex/internal/repository"
	"github.com/iliyamo/movieflex/internal/service"
)

func newMigrateCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create missing tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cc.withDB(cmd, func(db *sql.DB) error {
				if err := database.Migrate(cmd.Context(), db); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "applied %d statements\n", len(database.Statements()))
				return nil
			})
		},
	}
}

func newPromoteCommand(cc *commandContext) *cobra.Command {
	var revoke bool
	cmd := &cobra.Command{
		Use:   "promote <username|email>",
		Short: "Grant (or with --revoke remove) administrator rights",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cc.withDB(cmd, func(db *sql.DB) error {
				if err := repository.NewUserRepo(db).SetStaff(cmd.Context(), args[0], !revoke); err != nil {
					return fmt.Errorf("promote %s: %w", args[0], err)
				}
				verb := "granted"
				if revoke {
					verb = "revoked"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "admin rights %s for %s\n", verb, args[0])
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&revoke, "revoke", false, "Remove administrator rights instead")
	return cmd
}

func newSweepCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Cancel unpaid bookings older than BOOKING_HOLD_TTL once",
		Long: "Cancel unpaid bookings older than BOOKING_HOLD_TTL once.  Open checkout\n" +
			"sessions are expired with the payment provider first; bookings whose\n" +
			"session turns out to be paid are marked paid instead.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			gateway, err := payment.New(config.LoadPaymentConfig())
			if err != nil {
				return err
			}
			return cc.withDB(cmd, func(db *sql.DB) error {
				svc := service.NewBookingService(service.BookingDeps{
					Catalog:   repository.NewMovieRepo(db),
					Bookings:  repository.NewBookingRepo(db),
					Users:     repository.NewUserRepo(db),
					Checkouts: gateway,
					Config:    config.LoadBookingConfig(),
					Log:       cc.logger,
				})
				n, err := svc.ExpireStale(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "expired %d bookings\n", n)
				return nil
			})
		},
	}
}
