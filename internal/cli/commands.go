package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"kpi_tracker/internal/models"
	"kpi_tracker/internal/services"
	"kpi_tracker/internal/tasks"
)

const dueLayout = "2006-01-02 15:04"

// parseDue accepts RFC 3339 or "2006-01-02 15:04" in loc
func parseDue(s string, loc *time.Location) (time.Time, error) {
	if due, err := time.Parse(time.RFC3339, s); err == nil {
		return due, nil
	}
	due, err := time.ParseInLocation(dueLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid due date %q, use %q or RFC 3339", s, dueLayout)
	}
	return due, nil
}

func newScheduleCmd(app *App) *cobra.Command {
	var taskName, argsJSON, dueStr, taskType, recurring string
	var maxAttempt int

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Create a scheduled task for the worker",
		Example: `  kpictl schedule --task kpi_entry_reminder --due "2024-07-03 09:00" \
    --type recurring --recurring "FREQ=MONTHLY;BYMONTHDAY=3"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var args map[string]interface{}
			if argsJSON != "" {
				if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
					return fmt.Errorf("invalid JSON arguments: %w", err)
				}
			}

			due := time.Now()
			if dueStr != "" {
				var err error
				if due, err = parseDue(dueStr, time.Local); err != nil {
					return err
				}
			}

			var recurringPtr *string
			if recurring != "" {
				recurringPtr = &recurring
			}

			task, err := tasks.BuildScheduledTask(taskName, args, due, recurringPtr, models.ScheduledTaskType(taskType), maxAttempt)
			if err != nil {
				return err
			}
			if err := app.Tasks.Create(cmd.Context(), task); err != nil {
				return fmt.Errorf("failed to create task: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Created task %d\nTask: %s\nDue: %s\nType: %s\n",
				task.ID, task.TaskName, task.Due.Format(time.RFC3339), task.TaskType)
			return nil
		},
	}

	cmd.Flags().StringVar(&taskName, "task", "", "Name of the task (required)")
	cmd.Flags().StringVar(&argsJSON, "args", "", "JSON arguments for the task")
	cmd.Flags().StringVar(&dueStr, "due", "", `Due date, "2006-01-02 15:04" (local) or RFC 3339, default now`)
	cmd.Flags().StringVar(&taskType, "type", string(models.ScheduledTaskTypeOneTime), "Task type: onetime or recurring")
	cmd.Flags().StringVar(&recurring, "recurring", "", "RFC 5545 recurrence rule for recurring tasks")
	cmd.Flags().IntVar(&maxAttempt, "max-attempt", 3, "Attempts before the task is marked as failure")
	_ = cmd.MarkFlagRequired("task")

	return cmd
}

func newSeedCmd(app *App) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert brands, KPI definitions and assignments from a YAML file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			seed, err := services.LoadSeedFile(file)
			if err != nil {
				return err
			}
			result, err := app.Seed(cmd.Context(), seed)
			if err != nil {
				return fmt.Errorf("failed to apply seed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d KPIs, %d brands, %d assignments\n",
				result.KPIs, result.Brands, result.Assignments)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Seed file (required)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func newProvisionUserCmd(app *App) *cobra.Command {
	var in services.CreateUserInput
	var role string
	var brandCodes []string

	cmd := &cobra.Command{
		Use:   "provision-user",
		Short: "Create the Firebase identity and local user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			in.Role = models.UserRole(role)
			for _, code := range brandCodes {
				brand, err := app.Brands.BrandByCode(ctx, code)
				if err != nil {
					return fmt.Errorf("brand %q: %w", code, err)
				}
				in.BrandIDs = append(in.BrandIDs, brand.ID)
			}

			user, err := app.Users.Create(ctx, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Provisioned %s (id %d, role %s, %d brands)\n",
				user.Email, user.ID, user.Role, len(in.BrandIDs))
			return nil
		},
	}

	cmd.Flags().StringVar(&in.Email, "email", "", "Email address (required)")
	cmd.Flags().StringVar(&in.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&in.Password, "password", "", "Initial password, leave empty for a passwordless account")
	cmd.Flags().StringVar(&role, "role", string(models.UserRoleUser), "Role: admin or user")
	cmd.Flags().StringSliceVar(&brandCodes, "brand", nil, "Brand code to assign, repeatable")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newCheckAccessCmd(app *App) *cobra.Command {
	var email, brandCode string

	cmd := &cobra.Command{
		Use:   "check-access",
		Short: "Report whether a user may read and write a brand",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			user, err := app.Users.FindByEmail(ctx, email)
			if err != nil {
				return fmt.Errorf("user %q: %w", email, err)
			}
			brand, err := app.Brands.BrandByCode(ctx, brandCode)
			if err != nil {
				return fmt.Errorf("brand %q: %w", brandCode, err)
			}

			ok, err := app.Brands.CanAccessBrand(ctx, user, brand.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case ok && user.IsAdmin():
				fmt.Fprintf(out, "ALLOW %s -> %s (admin)\n", user.Email, brand.Code)
			case ok:
				fmt.Fprintf(out, "ALLOW %s -> %s (assigned)\n", user.Email, brand.Code)
			default:
				fmt.Fprintf(out, "DENY %s -> %s (not assigned)\n", user.Email, brand.Code)
				return ErrAccessDenied
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "User email (required)")
	cmd.Flags().StringVar(&brandCode, "brand", "", "Brand code (required)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("brand")

	return cmd
}

// ErrAccessDenied makes check-access exit non-zero for scripts
var ErrAccessDenied = errors.New("access denied")
