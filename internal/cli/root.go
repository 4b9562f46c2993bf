package cli

import (
	"context"

	"github.com/spf13/cobra"

	"kpi_tracker/internal/models"
	"kpi_tracker/internal/services"
)

// TaskCreator stores scheduled tasks
type TaskCreator interface {
	Create(ctx context.Context, task *models.ScheduledTask) error
}

// BrandAccess answers brand lookups and access checks
type BrandAccess interface {
	BrandByCode(ctx context.Context, code string) (*models.Brand, error)
	CanAccessBrand(ctx context.Context, user *models.User, brandID uint) (bool, error)
}

// UserProvisioner creates and finds users
type UserProvisioner interface {
	Create(ctx context.Context, in services.CreateUserInput) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

// App holds the services used by kpictl commands
type App struct {
	Tasks  TaskCreator
	Brands BrandAccess
	Users  UserProvisioner
	Seed   func(ctx context.Context, seed *services.SeedFile) (*services.SeedResult, error)
}

// NewRootCmd creates the top-level "kpictl" command and registers all
// subcommands against the provided App.
func NewRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "kpictl",
		Short:         "Operator tooling for the KPI tracker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newScheduleCmd(app),
		newSeedCmd(app),
		newProvisionUserCmd(app),
		newCheckAccessCmd(app),
	)

	return root
}
