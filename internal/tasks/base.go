package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"kpi_tracker/internal/models"
)

// BuildScheduledTask is a helper to build ScheduledTask records generically
func BuildScheduledTask(taskName string, args interface{}, due time.Time, recurringInterval *string, taskType models.ScheduledTaskType, maxAttempt int) (*models.ScheduledTask, error) {
	var mapArgs map[string]interface{}
	if args != nil {
		if err := convertArgs(args, &mapArgs); err != nil {
			return nil, err
		}
	}

	if taskType == "" {
		taskType = models.ScheduledTaskTypeOneTime
	}
	if taskType == models.ScheduledTaskTypeRecurring && (recurringInterval == nil || *recurringInterval == "") {
		return nil, fmt.Errorf("recurring task %s needs a recurrence rule", taskName)
	}
	if maxAttempt < 1 {
		maxAttempt = 1
	}

	return &models.ScheduledTask{
		TaskName:          taskName,
		Arguments:         mapArgs,
		Due:               due,
		RecurringInterval: recurringInterval,
		Status:            models.ScheduledTaskStatusActive,
		TaskType:          taskType,
		MaxAttempt:        maxAttempt,
	}, nil
}

// convertArgs re-encodes src into dest through JSON
func convertArgs(src, dest interface{}) error {
	argsBytes, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("failed to marshal args: %w", err)
	}
	if err := json.Unmarshal(argsBytes, dest); err != nil {
		return fmt.Errorf("failed to unmarshal args: %w", err)
	}
	return nil
}
