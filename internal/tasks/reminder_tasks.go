package tasks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"kpi_tracker/internal/models"
	"kpi_tracker/internal/services"
)

// KPIEntryReminderArgs defines the arguments of a reminder run
type KPIEntryReminderArgs struct {
	// Period to check, YYYY-MM. Defaults to the month before the run.
	Period string `json:"period"`
}

// BrandReminder lists the KPIs of one brand still missing a value
type BrandReminder struct {
	Brand      models.Brand
	Missing    []models.KPI
	Recipients []string
}

// KPIEntryReminderTaskDef emails brand users the KPIs they have not entered yet
type KPIEntryReminderTaskDef struct {
	mailer services.Mailer
	appURL string
	logger *zap.Logger
	now    func() time.Time
}

func NewKPIEntryReminderTask(mailer services.Mailer, appURL string, logger *zap.Logger) *KPIEntryReminderTaskDef {
	return &KPIEntryReminderTaskDef{mailer: mailer, appURL: appURL, logger: logger, now: time.Now}
}

// TaskID returns the unique identifier for this task
func (t *KPIEntryReminderTaskDef) TaskID() string {
	return "kpi_entry_reminder"
}

// CreateTask builds a monthly reminder, due on the 3rd of every month at 09:00
func (t *KPIEntryReminderTaskDef) CreateTask(start time.Time) (*models.ScheduledTask, error) {
	rule := "FREQ=MONTHLY;BYMONTHDAY=3;BYHOUR=9;BYMINUTE=0;BYSECOND=0"
	return BuildScheduledTask(t.TaskID(), KPIEntryReminderArgs{}, start, &rule, models.ScheduledTaskTypeRecurring, 3)
}

// HandleExecution loads the brands and values of the period and sends the reminders
func (t *KPIEntryReminderTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	var args KPIEntryReminderArgs
	if err := convertArgs(task.Arguments, &args); err != nil {
		return nil, err
	}
	period, err := t.period(args)
	if err != nil {
		return nil, err
	}

	var brands []models.Brand
	err = db.WithContext(ctx).
		Where("is_active = ?", true).
		Preload("Users").
		Preload("Assignments.KPI").
		Find(&brands).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load brands: %w", err)
	}

	var values []models.KPIValue
	if err := db.WithContext(ctx).Where("period = ?", period).Find(&values).Error; err != nil {
		return nil, fmt.Errorf("failed to load values: %w", err)
	}

	return t.notify(period, MissingKPIs(brands, values))
}

func (t *KPIEntryReminderTaskDef) period(args KPIEntryReminderArgs) (models.Period, error) {
	if args.Period == "" {
		return models.PeriodOf(t.now()).Previous(), nil
	}
	return models.ParsePeriod(args.Period)
}

// notify sends one email per brand. Failed brands are reported together so
// the runner can retry the whole run.
func (t *KPIEntryReminderTaskDef) notify(period models.Period, reminders []BrandReminder) (map[string]interface{}, error) {
	sent, skipped := 0, 0
	var failures []string

	for _, r := range reminders {
		if len(r.Recipients) == 0 {
			t.logger.Info("no users assigned, skipping reminder", zap.String("brand", r.Brand.Code))
			skipped++
			continue
		}
		subject := fmt.Sprintf("KPI values missing for %s (%s)", r.Brand.Name, period.Label())
		if err := t.mailer.SendEmail(r.Recipients, subject, ReminderBody(r, period, t.appURL)); err != nil {
			t.logger.Warn("failed to send reminder", zap.String("brand", r.Brand.Code), zap.Error(err))
			failures = append(failures, fmt.Sprintf("%s: %v", r.Brand.Code, err))
			continue
		}
		sent++
	}

	result := map[string]interface{}{
		"period":  period.String(),
		"brands":  len(reminders),
		"sent":    sent,
		"skipped": skipped,
		"failure": len(failures),
	}
	if len(failures) > 0 {
		result["errors"] = failures
		return result, fmt.Errorf("failed to send %d of %d reminders", len(failures), len(reminders))
	}
	return result, nil
}

// MissingKPIs returns, for each brand with at least one active assigned KPI
// lacking a value, the missing KPIs sorted by code and the brand users' emails
func MissingKPIs(brands []models.Brand, values []models.KPIValue) []BrandReminder {
	entered := make(map[[2]uint]bool, len(values))
	for _, v := range values {
		entered[[2]uint{v.BrandID, v.KPIID}] = true
	}

	var reminders []BrandReminder
	for _, b := range brands {
		var missing []models.KPI
		for _, a := range b.Assignments {
			if !a.KPI.IsActive || entered[[2]uint{b.ID, a.KPIID}] {
				continue
			}
			missing = append(missing, a.KPI)
		}
		if len(missing) == 0 {
			continue
		}
		sort.Slice(missing, func(i, j int) bool { return missing[i].Code < missing[j].Code })

		recipients := make([]string, 0, len(b.Users))
		for _, u := range b.Users {
			if u.Email != "" {
				recipients = append(recipients, u.Email)
			}
		}
		sort.Strings(recipients)

		reminders = append(reminders, BrandReminder{Brand: b, Missing: missing, Recipients: recipients})
	}
	return reminders
}

// ReminderBody renders the plain-text email of one reminder
func ReminderBody(r BrandReminder, period models.Period, appURL string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Hello,\n\nThe following KPIs of %s have no value for %s yet:\n\n", r.Brand.Name, period.Label())
	for _, k := range r.Missing {
		fmt.Fprintf(&sb, "- %s (%s)\n", k.Name, k.Code)
	}
	fmt.Fprintf(&sb, "\nPlease enter them at %s/dashboard?brand=%d&period=%s\n", strings.TrimRight(appURL, "/"), r.Brand.ID, period)
	return sb.String()
}
