package analytics

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/zenGate-Global/edupay-saas/apps/cli/clienv"
	academicsrepo "github.com/zenGate-Global/edupay-saas/domains/academics/be/repo"
	academicsservice "github.com/zenGate-Global/edupay-saas/domains/academics/be/service"
	analyticsrepo "github.com/zenGate-Global/edupay-saas/domains/analytics/be/repo"
	analyticsservice "github.com/zenGate-Global/edupay-saas/domains/analytics/be/service"
)

// Command groups fee-analysis jobs.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Fee-analysis jobs",
	}
	cmd.AddCommand(snapshotCommand())
	return cmd
}

func snapshotCommand() *cobra.Command {
	var (
		flags  clienv.Config
		yearID string
		date   string
	)

	c := &cobra.Command{
		Use:   "snapshot <institution-id>",
		Short: "Record the daily fee-collection snapshot for an academic year",
		Long:  "Records at most one snapshot per institution, year and date; rerunning for the same date prints the existing one.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			institutionID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid institution id: %w", err)
			}
			year, err := uuid.Parse(yearID)
			if err != nil {
				return fmt.Errorf("invalid --academic-year-id: %w", err)
			}

			rt, err := clienv.Open(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer rt.Close()

			calendar := academicsservice.New(academicsrepo.NewPostgresRepository(rt.DB))
			svc := analyticsservice.New(analyticsrepo.NewPostgresRepository(rt.DB), calendar,
				analyticsservice.WithLogger(rt.Logger))

			day := svc.Today()
			if date != "" {
				if day, err = time.Parse(time.DateOnly, date); err != nil {
					return fmt.Errorf("invalid --date: %w", err)
				}
			}

			snap, err := svc.EnsureSnapshot(cmd.Context(), institutionID, year, day)
			if err != nil {
				return fmt.Errorf("snapshot: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Snapshot %s for %s: billed %s, collected %s, outstanding %s (%s%%).\n",
				snap.ID, snap.Date.Format(time.DateOnly),
				snap.Summary.TotalBilled.StringFixed(2),
				snap.Summary.TotalPaid.StringFixed(2),
				snap.Summary.TotalOutstanding.StringFixed(2),
				snap.Summary.CollectionRate.StringFixed(2))
			return nil
		},
	}

	clienv.BindFlags(c, &flags)
	c.Flags().StringVar(&yearID, "academic-year-id", "", "academic year to summarize")
	c.Flags().StringVar(&date, "date", "", "snapshot date as YYYY-MM-DD (defaults to today, UTC)")
	_ = c.MarkFlagRequired("academic-year-id")
	return c
}
