package root

import (
	"github.com/zenGate-Global/edupay-saas/apps/cli/cmd/analytics"
	"github.com/zenGate-Global/edupay-saas/apps/cli/cmd/auth"
	"github.com/zenGate-Global/edupay-saas/apps/cli/cmd/bootstrap"
	"github.com/zenGate-Global/edupay-saas/apps/cli/cmd/fees"
	"github.com/zenGate-Global/edupay-saas/apps/cli/cmd/institution"
)

func init() {
	Root().AddCommand(auth.Command())
	Root().AddCommand(bootstrap.Command())
	Root().AddCommand(institution.Command())
	Root().AddCommand(fees.Command())
	Root().AddCommand(analytics.Command())
}
