// cmd/seeder/main.go
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/unclebandit/outreach-backend/internal/config/configs"
	"github.com/unclebandit/outreach-backend/internal/db"
	"github.com/unclebandit/outreach-backend/internal/leads"
	"github.com/unclebandit/outreach-backend/internal/repository"
)

var migrateFirst bool

var rootCmd = &cobra.Command{
	Use:   "seeder [leads.csv]",
	Short: "Import a lead CSV into the Postgres contacts table",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "seed/leads.csv"
		if len(args) == 1 {
			path = args[0]
		}
		return seed(cmd.Context(), path)
	},
}

func init() {
	rootCmd.Flags().BoolVar(&migrateFirst, "migrate", true, "apply migrations before seeding")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func seed(ctx context.Context, path string) error {
	_ = godotenv.Load()
	var psql configs.Postgres
	if err := env.ParseWithOptions(&psql, env.Options{Prefix: "PSQL_"}); err != nil {
		return err
	}
	if psql.Addr == "" {
		return fmt.Errorf("PSQL_ADDRESS is required")
	}

	if migrateFirst {
		if err := db.Migrate(psql.Addr); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	h, err := db.OpenPostgres(ctx, psql.Addr)
	if err != nil {
		return err
	}
	defer h.Close()

	contacts, rejected, err := leads.ReadFile(path)
	if err != nil {
		return err
	}
	for _, r := range rejected {
		fmt.Printf("Skipped %s\n", r)
	}

	repo := &repository.ContactRepository{DB: h.DB}
	for _, c := range contacts {
		if _, err := repo.Create(ctx, c); err != nil {
			return fmt.Errorf("insert %s: %w", c.Email(), err)
		}
	}
	fmt.Printf("Seeded %d contacts from %s\n", len(contacts), path)
	return nil
}
