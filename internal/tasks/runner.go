package tasks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"kpi_tracker/internal/loading"
	"kpi_tracker/internal/models"
)

// TaskStore persists scheduled tasks and their run history
type TaskStore interface {
	DueTasks(ctx context.Context, now time.Time) ([]models.ScheduledTask, error)
	RecordRun(ctx context.Context, history *models.ScheduledTaskHistory) error
	UpdateTask(ctx context.Context, task models.ScheduledTask, updates map[string]interface{}) error
}

// GormTaskStore is the TaskStore backed by the application database
type GormTaskStore struct {
	db *gorm.DB
}

func NewGormTaskStore(db *gorm.DB) *GormTaskStore {
	return &GormTaskStore{db: db}
}

// Create stores a new task
func (s *GormTaskStore) Create(ctx context.Context, task *models.ScheduledTask) error {
	return s.db.WithContext(ctx).Create(task).Error
}

func (s *GormTaskStore) DueTasks(ctx context.Context, now time.Time) ([]models.ScheduledTask, error) {
	var pending []models.ScheduledTask
	err := s.db.WithContext(ctx).
		Where("status = ? AND due <= ?", models.ScheduledTaskStatusActive, now).
		Order("due").
		Find(&pending).Error
	return pending, err
}

func (s *GormTaskStore) RecordRun(ctx context.Context, history *models.ScheduledTaskHistory) error {
	return s.db.WithContext(ctx).Create(history).Error
}

func (s *GormTaskStore) UpdateTask(ctx context.Context, task models.ScheduledTask, updates map[string]interface{}) error {
	return s.db.WithContext(ctx).Model(&models.ScheduledTask{ID: task.ID}).Updates(updates).Error
}

// Transition is the outcome of one attempt
type Transition struct {
	Retry  bool
	Status models.ScheduledTaskStatus
	Due    *time.Time
}

// NextTransition decides what happens to task after attempt number attempt.
// Failed attempts are retried while attempt < MaxAttempt. A successful
// recurring task moves to its next occurrence, or is done when the rule has
// none left.
func NextTransition(task models.ScheduledTask, succeeded bool, attempt int, now time.Time) Transition {
	if !succeeded {
		if attempt < task.MaxAttempt {
			return Transition{Retry: true}
		}
		return Transition{Status: models.ScheduledTaskStatusFailure}
	}

	if task.TaskType == models.ScheduledTaskTypeRecurring {
		next := task.NextDue(now)
		// only move forward, a stale due would be picked up again on the next tick
		if next.After(task.Due) {
			return Transition{Status: models.ScheduledTaskStatusActive, Due: &next}
		}
	}
	return Transition{Status: models.ScheduledTaskStatusDone}
}

// Runner executes due tasks
type Runner struct {
	store    TaskStore
	db       *gorm.DB
	registry *Registry
	activity *loading.Registry
	logger   *zap.Logger
	now      func() time.Time
}

// NewRunner creates a runner. db is handed to the task handlers.
func NewRunner(store TaskStore, db *gorm.DB, registry *Registry, activity *loading.Registry, logger *zap.Logger) *Runner {
	return &Runner{
		store:    store,
		db:       db,
		registry: registry,
		activity: activity,
		logger:   logger,
		now:      time.Now,
	}
}

// ActivityKey is the loading registry key of a running task
func ActivityKey(taskID uint) string {
	return fmt.Sprintf("task:%d", taskID)
}

// ProcessDue runs every active task whose due time has passed and returns
// how many were processed
func (r *Runner) ProcessDue(ctx context.Context) (int, error) {
	r.logger.Debug("checking for pending tasks")

	pending, err := r.store.DueTasks(ctx, r.now())
	if err != nil {
		return 0, fmt.Errorf("failed to fetch pending tasks: %w", err)
	}
	if len(pending) == 0 {
		r.logger.Debug("no pending tasks found")
		return 0, nil
	}

	r.logger.Info("found pending tasks", zap.Int("count", len(pending)))
	processed := 0
	for _, task := range pending {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		if err := r.Execute(ctx, task); err != nil {
			r.logger.Error("failed to record task run", zap.Uint("task_id", task.ID), zap.Error(err))
		}
		processed++
	}
	return processed, nil
}

// Execute runs task until it succeeds or runs out of attempts. The returned
// error covers persistence only, a failing handler is recorded in history.
func (r *Runner) Execute(ctx context.Context, task models.ScheduledTask) error {
	return r.activity.Run(ActivityKey(task.ID), func() error {
		return r.execute(ctx, task)
	})
}

func (r *Runner) execute(ctx context.Context, task models.ScheduledTask) error {
	log := r.logger.With(zap.String("task", task.TaskName), zap.Uint("task_id", task.ID))

	if task.Arguments == nil {
		task.Arguments = make(map[string]interface{})
	}

	handler, found := r.registry.Get(task.TaskName)
	if !found {
		log.Warn("task handler not found, marking as failure")
		now := r.now()
		history := &models.ScheduledTaskHistory{
			ScheduledTaskID: task.ID,
			TaskName:        task.TaskName,
			RunAt:           now,
			Status:          models.RunStatusHandlerNotFound,
			AttemptNumber:   1,
			Arguments:       task.Arguments,
			Result:          map[string]interface{}{"error": "Handler not found"},
		}
		if err := r.store.RecordRun(ctx, history); err != nil {
			return err
		}
		return r.store.UpdateTask(ctx, task, map[string]interface{}{
			"status":   models.ScheduledTaskStatusFailure,
			"last_run": &now,
		})
	}

	for attempt := 1; ; attempt++ {
		startTime := r.now()
		result, err := runHandler(ctx, handler, r.db, task)
		runtime := r.now().Sub(startTime)

		status := models.RunStatusSuccess
		resultData := result
		if err != nil {
			status = models.RunStatusFailure
			resultData = map[string]interface{}{"error": err.Error()}
			log.Warn("task failed", zap.Int("attempt", attempt), zap.Int("max_attempt", task.MaxAttempt), zap.Error(err))
		} else {
			log.Info("task completed", zap.Int("attempt", attempt), zap.Duration("runtime", runtime))
		}

		history := &models.ScheduledTaskHistory{
			ScheduledTaskID: task.ID,
			TaskName:        task.TaskName,
			RunAt:           startTime,
			RuntimeMs:       int(runtime.Milliseconds()),
			Status:          status,
			AttemptNumber:   attempt,
			Arguments:       task.Arguments,
			Result:          resultData,
		}
		if err := r.store.RecordRun(ctx, history); err != nil {
			return err
		}

		next := NextTransition(task, err == nil, attempt, r.now())
		if next.Retry && ctx.Err() == nil {
			continue
		}
		if next.Retry {
			// shutdown interrupted the retries, the task stays active for the next worker
			return ctx.Err()
		}

		updates := map[string]interface{}{
			"last_run": &startTime,
			"status":   next.Status,
		}
		if next.Due != nil {
			updates["due"] = *next.Due
		}
		return r.store.UpdateTask(ctx, task, updates)
	}
}

// runHandler turns a handler panic into a failed attempt
func runHandler(ctx context.Context, handler TaskHandler, db *gorm.DB, task models.ScheduledTask) (result map[string]interface{}, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task panicked: %v", p)
		}
	}()
	return handler(ctx, db, task)
}
