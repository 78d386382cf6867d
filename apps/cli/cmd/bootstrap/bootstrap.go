package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zenGate-Global/edupay-saas/apps/cli/clienv"
	usersrepo "github.com/zenGate-Global/edupay-saas/domains/users/be/repo"
	usersservice "github.com/zenGate-Global/edupay-saas/domains/users/be/service"
	platformauth "github.com/zenGate-Global/edupay-saas/platform/go/auth"
	"github.com/zenGate-Global/edupay-saas/platform/go/persistence"
)

// Command applies the embedded DDL and optionally seeds the first super admin.
func Command() *cobra.Command {
	var (
		flags         clienv.Config
		adminEmail    string
		adminFullName string
	)

	c := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the EduPay schema and seed the first super admin",
		Long: "Creates the schema if missing and applies the embedded DDL in one transaction. " +
			"With --admin-email the matching super admin is created unless a user with that email already exists.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := clienv.Open(ctx, flags)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := persistence.BootstrapSchema(ctx, rt.Pool, rt.Config.DatabaseSchema); err != nil {
				return err
			}
			rt.Logger.Info("schema ready", zap.String("schema", rt.Config.DatabaseSchema))
			fmt.Fprintf(cmd.OutOrStdout(), "Schema %s is up to date.\n", rt.Config.DatabaseSchema)

			if strings.TrimSpace(adminEmail) == "" {
				return nil
			}
			users := usersservice.New(usersrepo.NewPostgresRepository(rt.DB), usersservice.WithLogger(rt.Logger))
			user, created, err := ensureSuperAdmin(ctx, users, adminEmail, adminFullName)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "Created super admin %s (%s).\n", user.Email, user.ID)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Super admin %s (%s) already exists.\n", user.Email, user.ID)
			}
			return nil
		},
	}

	clienv.BindFlags(c, &flags)
	c.Flags().StringVar(&adminEmail, "admin-email", "", "email of the initial super admin (optional)")
	c.Flags().StringVar(&adminFullName, "admin-full-name", "Platform Administrator", "full name of the initial super admin")
	return c
}

func ensureSuperAdmin(ctx context.Context, users *usersservice.Service, email, fullName string) (usersservice.User, bool, error) {
	email = strings.TrimSpace(email)
	res, err := users.List(ctx, usersservice.ListOptions{Email: &email, Page: 1, PageSize: 1})
	if err != nil {
		return usersservice.User{}, false, fmt.Errorf("lookup admin user: %w", err)
	}
	if len(res.Users) > 0 {
		existing := res.Users[0]
		if existing.PlatformRole != platformauth.PlatformRoleSuperAdmin {
			return usersservice.User{}, false, fmt.Errorf("user %s exists with role %s", existing.Email, existing.PlatformRole)
		}
		return existing, false, nil
	}

	user, err := users.Create(ctx, usersservice.CreateInput{
		Email:        email,
		FullName:     strings.TrimSpace(fullName),
		PlatformRole: string(platformauth.PlatformRoleSuperAdmin),
	})
	if errors.Is(err, usersservice.ErrEmailTaken) {
		return usersservice.User{}, false, fmt.Errorf("user %s was created concurrently; rerun bootstrap", email)
	}
	if err != nil {
		return usersservice.User{}, false, fmt.Errorf("create admin user: %w", err)
	}
	return user, true, nil
}
