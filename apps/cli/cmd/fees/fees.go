package fees

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zenGate-Global/edupay-saas/apps/cli/clienv"
	academicsrepo "github.com/zenGate-Global/edupay-saas/domains/academics/be/repo"
	academicsservice "github.com/zenGate-Global/edupay-saas/domains/academics/be/service"
	feesrepo "github.com/zenGate-Global/edupay-saas/domains/fees/be/repo"
	feesservice "github.com/zenGate-Global/edupay-saas/domains/fees/be/service"
	studentsrepo "github.com/zenGate-Global/edupay-saas/domains/students/be/repo"
	studentsservice "github.com/zenGate-Global/edupay-saas/domains/students/be/service"
)

// Command groups fee ledger jobs.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fees",
		Short: "Fee ledger jobs",
	}
	cmd.AddCommand(markOverdueCommand())
	return cmd
}

func markOverdueCommand() *cobra.Command {
	var (
		flags clienv.Config
		asOf  string
	)

	c := &cobra.Command{
		Use:   "mark-overdue <institution-id>",
		Short: "Flag unpaid assignments whose due date has passed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			institutionID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid institution id: %w", err)
			}

			rt, err := clienv.Open(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer rt.Close()

			calendar := academicsservice.New(academicsrepo.NewPostgresRepository(rt.DB))
			roster := studentsservice.New(studentsrepo.NewPostgresRepository(rt.DB), calendar, studentsservice.WithLogger(rt.Logger))
			ledger := feesservice.New(feesrepo.NewPostgresRepository(rt.DB), feesservice.NewDirectory(roster, calendar),
				feesservice.WithLogger(rt.Logger))

			today := ledger.Today()
			if asOf != "" {
				if today, err = time.Parse(time.DateOnly, asOf); err != nil {
					return fmt.Errorf("invalid --as-of date: %w", err)
				}
			}

			n, err := ledger.MarkOverdueSweep(cmd.Context(), institutionID, today)
			if err != nil {
				return fmt.Errorf("mark overdue: %w", err)
			}
			rt.Logger.Info("overdue sweep finished",
				zap.String("institutionId", institutionID.String()),
				zap.Int("marked", n))
			fmt.Fprintf(cmd.OutOrStdout(), "Marked %d assignment(s) overdue as of %s.\n", n, today.Format(time.DateOnly))
			return nil
		},
	}

	clienv.BindFlags(c, &flags)
	c.Flags().StringVar(&asOf, "as-of", "", "evaluate due dates against this YYYY-MM-DD date instead of today (UTC)")
	return c
}
