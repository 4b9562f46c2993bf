package tasks

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"kpi_tracker/internal/models"
)

// LogInfoTaskDef writes the message argument to the log
type LogInfoTaskDef struct {
	logger *zap.Logger
}

func NewLogInfoTask(logger *zap.Logger) *LogInfoTaskDef {
	return &LogInfoTaskDef{logger: logger}
}

// TaskID returns the unique identifier for this task
func (t *LogInfoTaskDef) TaskID() string {
	return "log_info"
}

// HandleExecution handles logging information
func (t *LogInfoTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	message, ok := task.Arguments["message"].(string)
	if !ok {
		message = "No message provided"
	}
	t.logger.Info("task message", zap.String("task", t.TaskID()), zap.Uint("task_id", task.ID), zap.String("message", message))

	return map[string]interface{}{
		"status":  "success",
		"message": message,
	}, nil
}
