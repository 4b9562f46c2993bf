package tasks

import (
	"go.uber.org/zap"

	"kpi_tracker/internal/services"
)

// DefineTasks registers all available tasks
func DefineTasks(r *Registry, mailer services.Mailer, appURL string, logger *zap.Logger) {
	logInfo := NewLogInfoTask(logger)
	r.Register(logInfo.TaskID(), logInfo.HandleExecution)

	reminder := NewKPIEntryReminderTask(mailer, appURL, logger)
	r.Register(reminder.TaskID(), reminder.HandleExecution)
}
