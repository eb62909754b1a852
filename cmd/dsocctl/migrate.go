package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DEEPML1818/dsoc/common/db"
)

var flagMigrateList bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagMigrateList {
			names, err := db.Migrations()
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		}

		ctx := cmd.Context()
		database, err := db.New(ctx, cfg, log)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer database.Close()

		if err := database.Migrate(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&flagMigrateList, "list", false, "list embedded migrations without connecting")
}
