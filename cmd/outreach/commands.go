package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/export"
	"github.com/unclebandit/outreach-backend/internal/leads"
	"github.com/unclebandit/outreach-backend/internal/model"
)

func (c *cli) loadContacts(cmd *cobra.Command, path string) ([]model.Contact, error) {
	contacts, rejected, err := leads.ReadFile(path)
	if err != nil {
		return nil, err
	}
	for _, r := range rejected {
		fmt.Fprintf(cmd.ErrOrStderr(), "skipping %s\n", r)
	}
	return contacts, nil
}

func (c *cli) sendCmd() *cobra.Command {
	var (
		contactsPath string
		delay        time.Duration
		abTest       bool
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a campaign to every contact in a CSV file",
		RunE: func(cmd *cobra.Command, args []string) error {
			contacts, err := c.loadContacts(cmd, contactsPath)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("delay") {
				delay = c.app.Config.Campaign.Delay
			}
			if cmd.Flags().Changed("ab-test") {
				c.app.Dispatcher.ABTest = abTest
			}

			summary, runErr := c.app.Dispatcher.Run(cmd.Context(), contacts, delay)
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: sent=%d failed=%d skipped=%d total=%d status=%s\n",
				summary.RunID, summary.Sent, summary.Failed, summary.Skipped, summary.Total, summary.Status())
			if errors.Is(runErr, appErrors.ErrCircuitOpen) {
				fmt.Fprintf(cmd.ErrOrStderr(), "halted: %s\n", summary.HaltReason)
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&contactsPath, "contacts", "contacts.csv", "CSV file with an email column")
	cmd.Flags().DurationVar(&delay, "delay", 0, "pause between contacts (default CAMPAIGN_DELAY)")
	cmd.Flags().BoolVar(&abTest, "ab-test", false, "pick a random subject variant per contact")
	return cmd
}

func (c *cli) previewCmd() *cobra.Command {
	var (
		contactsPath string
		abTest       bool
	)
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Print the personalized messages without sending",
		RunE: func(cmd *cobra.Command, args []string) error {
			contacts, err := c.loadContacts(cmd, contactsPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, contact := range contacts {
				msg, err := c.app.Dispatcher.Compose(cmd.Context(), contact, abTest)
				if err != nil {
					return fmt.Errorf("%s: %w", contact.Email(), err)
				}
				fmt.Fprintf(out, "To: %s\nTemplate: %s %s\nSubject: %s\n\n%s\n\n----\n",
					contact.Email(), msg.TemplateID, msg.VariantID, msg.Subject, msg.Body)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&contactsPath, "contacts", "contacts.csv", "CSV file with an email column")
	cmd.Flags().BoolVar(&abTest, "ab-test", false, "pick a random subject variant per contact")
	return cmd
}

func (c *cli) followUpCmd() *cobra.Command {
	var (
		fromCSV string
		dryRun  bool
	)
	cmd := &cobra.Command{
		Use:   "followup",
		Short: "Send the follow-ups that are due today",
		RunE: func(cmd *cobra.Command, args []string) error {
			var rows []model.SendResult
			var err error
			if fromCSV != "" {
				f, err := os.Open(fromCSV)
				if err != nil {
					return err
				}
				defer f.Close()
				rows, err = export.ReadResults(f)
				if err != nil {
					return err
				}
				// rows sent now still belong in the ledger
				ledgerRows, err := c.app.Ledger.List(cmd.Context())
				if err != nil {
					return err
				}
				rows = append(rows, ledgerRows...)
			} else {
				rows, err = c.app.Ledger.List(cmd.Context())
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if dryRun {
				for _, d := range c.app.FollowUps.Due(rows) {
					fmt.Fprintf(out, "%s\t%s\t%d days\n", d.First.Recipient, d.Tier, d.DaysElapsed)
				}
				return nil
			}
			n, err := c.app.FollowUps.CheckAndSend(cmd.Context(), rows)
			fmt.Fprintf(out, "follow-ups sent: %d\n", n)
			return err
		},
	}
	cmd.Flags().StringVar(&fromCSV, "from", "", "read first contacts from an exported CSV as well")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list due follow-ups without sending")
	return cmd
}

func (c *cli) exportCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the result ledger as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := c.app.Ledger.List(cmd.Context())
			if err != nil {
				return err
			}
			if outPath == "" || outPath == "-" {
				return export.WriteResults(cmd.OutOrStdout(), rows)
			}
			f, err := os.Create(outPath)
			if err != nil {
				return err
			}
			if err := export.WriteResults(f, rows); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "exported %d rows to %s\n", len(rows), outPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")
	return cmd
}

func (c *cli) healthCmd() *cobra.Command {
	var alert bool
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Show delivery health from the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				h   *model.Health
				err error
			)
			if alert {
				h, err = c.app.Monitor.Check(cmd.Context())
			} else {
				h, err = c.app.Monitor.Health(cmd.Context())
			}
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(h)
		},
	}
	cmd.Flags().BoolVar(&alert, "alert", false, "mail ALERT_RECIPIENT when health is critical")
	return cmd
}
