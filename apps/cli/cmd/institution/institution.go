package institution

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/zenGate-Global/edupay-saas/apps/cli/clienv"
	institutionsrepo "github.com/zenGate-Global/edupay-saas/domains/institutions/be/repo"
	institutionsservice "github.com/zenGate-Global/edupay-saas/domains/institutions/be/service"
	staffrepo "github.com/zenGate-Global/edupay-saas/domains/staff/be/repo"
	staffservice "github.com/zenGate-Global/edupay-saas/domains/staff/be/service"
	usersrepo "github.com/zenGate-Global/edupay-saas/domains/users/be/repo"
	usersservice "github.com/zenGate-Global/edupay-saas/domains/users/be/service"
	"github.com/zenGate-Global/edupay-saas/platform/go/notify"
)

// Command groups institution registry helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "institution",
		Short: "Institution registry utilities (create, lifecycle transitions, onboarding)",
	}
	cmd.AddCommand(createCommand(), transitionCommand(), onboardCommand())
	return cmd
}

func open(cmd *cobra.Command, flags clienv.Config) (*clienv.Runtime, *institutionsservice.Service, error) {
	rt, err := clienv.Open(cmd.Context(), flags)
	if err != nil {
		return nil, nil, err
	}
	svc := institutionsservice.New(institutionsrepo.NewPostgresRepository(rt.DB),
		institutionsservice.WithMailer(notify.NewLogMailer(rt.Logger)),
		institutionsservice.WithLogger(rt.Logger))
	return rt, svc, nil
}

func createCommand() *cobra.Command {
	var (
		flags clienv.Config
		input institutionsservice.CreateInput
	)

	c := &cobra.Command{
		Use:   "create",
		Short: "Register a pending institution",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, svc, err := open(cmd, flags)
			if err != nil {
				return err
			}
			defer rt.Close()

			inst, err := svc.Create(cmd.Context(), input)
			if err != nil {
				return fmt.Errorf("create institution: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Institution %s (%s) registered with status %s.\n", inst.Slug, inst.ID, inst.Status)
			return nil
		},
	}

	clienv.BindFlags(c, &flags)
	c.Flags().StringVar(&input.Name, "name", "", "institution name")
	c.Flags().StringVar(&input.Slug, "slug", "", "slug; derived from the name when empty")
	c.Flags().StringVar(&input.Type, "type", "", "institution type (university, college, technical, secondary, primary, other)")
	c.Flags().StringVar(&input.ContactName, "contact-name", "", "contact person")
	c.Flags().StringVar(&input.ContactEmail, "contact-email", "", "contact email")
	c.Flags().StringVar(&input.ContactPhone, "contact-phone", "", "contact phone")
	c.Flags().StringVar(&input.Address, "address", "", "postal address")
	c.Flags().StringVar(&input.OnboardingNotes, "notes", "", "onboarding notes")

	_ = c.MarkFlagRequired("name")
	_ = c.MarkFlagRequired("contact-email")
	return c
}

func transitionCommand() *cobra.Command {
	var (
		flags clienv.Config
		note  string
	)

	c := &cobra.Command{
		Use:   "transition <institution-id> <approve|reject|activate|suspend|reinstate|deactivate>",
		Short: "Apply a lifecycle action to an institution",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid institution id: %w", err)
			}
			action, err := institutionsservice.ParseAction(args[1])
			if err != nil {
				return err
			}

			rt, svc, err := open(cmd, flags)
			if err != nil {
				return err
			}
			defer rt.Close()

			inst, err := svc.Transition(cmd.Context(), id, action, note)
			if err != nil {
				return fmt.Errorf("%s institution: %w", action, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Institution %s is now %s.\n", inst.Slug, inst.Status)
			return nil
		},
	}

	clienv.BindFlags(c, &flags)
	c.Flags().StringVar(&note, "note", "", "note recorded in the status log")
	return c
}

func onboardCommand() *cobra.Command {
	var flags clienv.Config

	c := &cobra.Command{
		Use:   "onboard <admin-email>",
		Short: "Give an institution admin their admin staff record at the home institution",
		Long:  "Equivalent to the admin calling POST /api/v1/onboarding. Running it again changes nothing.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, institutions, err := open(cmd, flags)
			if err != nil {
				return err
			}
			defer rt.Close()
			ctx := cmd.Context()

			email := strings.TrimSpace(args[0])
			users := usersservice.New(usersrepo.NewPostgresRepository(rt.DB), usersservice.WithLogger(rt.Logger))
			res, err := users.List(ctx, usersservice.ListOptions{Email: &email, Page: 1, PageSize: 1})
			if err != nil {
				return fmt.Errorf("lookup user: %w", err)
			}
			if len(res.Users) == 0 {
				return fmt.Errorf("no user with email %s", email)
			}

			staff := staffservice.New(staffrepo.NewPostgresRepository(rt.DB), institutions, staffservice.WithLogger(rt.Logger))
			member, created, err := staff.EnsureOnboarding(ctx, res.Users[0].Principal())
			if err != nil {
				return fmt.Errorf("onboard %s: %w", email, err)
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "Onboarded %s as admin (staff %s).\n", member.Email, member.ID)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is already onboarded (staff %s).\n", member.Email, member.ID)
			}
			return nil
		},
	}

	clienv.BindFlags(c, &flags)
	return c
}
