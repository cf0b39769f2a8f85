package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/unclebandit/outreach-backend/internal/app"
	"github.com/unclebandit/outreach-backend/internal/config"
)

// cli holds state shared by all subcommands.
type cli struct {
	verbose bool
	logger  *zap.Logger
	app     *app.App
}

func (c *cli) close() {
	if c.app != nil {
		_ = c.app.Close()
	}
	if c.logger != nil {
		_ = c.logger.Sync()
	}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "outreach",
		Short: "Personalized B2B outreach campaigns",
		Long: `outreach sends role-specific, personalized emails to a contact list,
records every outcome in the result ledger and drives the day 3/7/14
follow-up cadence from it.

Configuration is read from the environment and an optional .env file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := config.Load()
			if err != nil {
				return err
			}
			if c.verbose {
				cfg.Log.Level = "debug"
			}
			c.logger, err = cfg.Log.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			c.app, err = app.New(cmd.Context(), cfg, c.logger)
			return err
		},
	}
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		c.sendCmd(),
		c.previewCmd(),
		c.followUpCmd(),
		c.exportCmd(),
		c.healthCmd(),
	)
	return root
}

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c := &cli{}
	defer c.close()
	if err := newRootCmd(c).ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}
