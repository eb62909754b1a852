package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/DEEPML1818/dsoc/common/db"
	"github.com/DEEPML1818/dsoc/common/repository"
)

var (
	flagSeedFile    string
	flagGenTickets  int
	flagGenSeed     int64
	flagGenOut      string
	flagGenDryRun   bool
	flagSeedMigrate bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load fixture users, tickets and reports",
	Example: `  dsocctl seed --file fixtures.yaml
  dsocctl seed generate --tickets 50`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagSeedFile == "" {
			return fmt.Errorf("--file is required")
		}
		file, err := os.Open(flagSeedFile)
		if err != nil {
			return fmt.Errorf("open fixtures: %w", err)
		}
		defer file.Close()

		fixtures, err := DecodeFixtures(file)
		if err != nil {
			return err
		}
		return seedDatabase(cmd, fixtures)
	},
}

var seedGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate deterministic fixtures and load or print them",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagGenTickets < 1 {
			return fmt.Errorf("--tickets must be at least 1")
		}
		fixtures := Generate(flagGenTickets, flagGenSeed)

		if flagGenOut != "" {
			file, err := os.Create(flagGenOut)
			if err != nil {
				return fmt.Errorf("create %s: %w", flagGenOut, err)
			}
			defer file.Close()
			return EncodeFixtures(file, fixtures)
		}
		if flagGenDryRun {
			return EncodeFixtures(cmd.OutOrStdout(), fixtures)
		}
		return seedDatabase(cmd, fixtures)
	},
}

func init() {
	seedCmd.Flags().StringVar(&flagSeedFile, "file", "", "fixtures file (yaml)")
	seedCmd.PersistentFlags().BoolVar(&flagSeedMigrate, "migrate", true, "apply migrations before seeding")

	seedGenerateCmd.Flags().IntVar(&flagGenTickets, "tickets", 20, "number of tickets to generate")
	seedGenerateCmd.Flags().Int64Var(&flagGenSeed, "seed", 1, "random seed")
	seedGenerateCmd.Flags().StringVar(&flagGenOut, "out", "", "write fixtures to this file instead of the database")
	seedGenerateCmd.Flags().BoolVar(&flagGenDryRun, "dry-run", false, "print fixtures instead of writing them")

	seedCmd.AddCommand(seedGenerateCmd)
}

// seedDatabase writes fixtures to the configured Postgres database
func seedDatabase(cmd *cobra.Command, fixtures *Fixtures) error {
	ctx := cmd.Context()
	database, err := db.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer database.Close()

	if flagSeedMigrate {
		if err := database.Migrate(ctx); err != nil {
			return err
		}
	}

	res, err := Apply(ctx, SeedStores{
		Users:   repository.NewUserRepository(database),
		Tickets: repository.NewTicketRepository(database),
		Reports: repository.NewIncidentReportRepository(database),
	}, fixtures)
	if err != nil {
		return err
	}
	return printSeedResult(cmd.OutOrStdout(), res)
}

func printSeedResult(w io.Writer, res *SeedResult) error {
	if flagJSON {
		return json.NewEncoder(w).Encode(res)
	}
	_, err := fmt.Fprintf(w, "seeded %d users (%d existing), %d tickets, %d reports\n",
		res.Users, res.UsersSkipped, res.Tickets, res.Reports)
	return err
}
