package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/workboard/projectguard/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// GrantPurger is the subset of grants.Service the maintenance tasks need.
type GrantPurger interface {
	PurgeProject(ctx context.Context, projectID string) (int64, error)
	PurgeUser(ctx context.Context, userID string) (int64, error)
	PruneOrphans(ctx context.Context) (int64, error)
}

// GrantMaintenanceJob handles the grant lifecycle tasks.
type GrantMaintenanceJob struct {
	Grants  GrantPurger
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewGrantMaintenanceJob constructs the job handlers.
func NewGrantMaintenanceJob(grants GrantPurger, logger *slog.Logger, metrics *jobmetrics.Metrics) *GrantMaintenanceJob {
	return &GrantMaintenanceJob{Grants: grants, Logger: logger, Metrics: metrics}
}

// Handlers lists the task bindings for the worker.
func (j *GrantMaintenanceJob) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskPurgeProject, Handler: j.HandlePurgeProject},
		{Type: TaskPurgeUser, Handler: j.HandlePurgeUser},
		{Type: TaskPruneOrphans, Handler: j.HandlePruneOrphans},
	}
}

// HandlePurgeProject processes TaskPurgeProject.
func (j *GrantMaintenanceJob) HandlePurgeProject(ctx context.Context, task *asynq.Task) error {
	var payload PurgeProjectPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil || strings.TrimSpace(payload.ProjectID) == "" {
		return fmt.Errorf("purge project: bad payload: %w", asynq.SkipRetry)
	}
	return j.run(TaskPurgeProject, slog.String("project_id", payload.ProjectID), func() (int64, error) {
		return j.Grants.PurgeProject(ctx, payload.ProjectID)
	})
}

// HandlePurgeUser processes TaskPurgeUser.
func (j *GrantMaintenanceJob) HandlePurgeUser(ctx context.Context, task *asynq.Task) error {
	var payload PurgeUserPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil || strings.TrimSpace(payload.UserID) == "" {
		return fmt.Errorf("purge user: bad payload: %w", asynq.SkipRetry)
	}
	return j.run(TaskPurgeUser, slog.String("user_id", payload.UserID), func() (int64, error) {
		return j.Grants.PurgeUser(ctx, payload.UserID)
	})
}

// HandlePruneOrphans processes TaskPruneOrphans.
func (j *GrantMaintenanceJob) HandlePruneOrphans(ctx context.Context, _ *asynq.Task) error {
	return j.run(TaskPruneOrphans, slog.String("scope", "all"), func() (int64, error) {
		return j.Grants.PruneOrphans(ctx)
	})
}

func (j *GrantMaintenanceJob) run(job string, scope slog.Attr, fn func() (int64, error)) (resultErr error) {
	if j == nil || j.Grants == nil {
		return errors.New("grant maintenance: dependencies not configured")
	}
	tracker := j.metrics().Track(job)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	removed, err := fn()
	if err != nil {
		j.log(job).Error("grant maintenance failed", scope, slog.Any("error", err))
		return err
	}
	tracker.Removed(removed)
	j.log(job).Info("grant maintenance done", scope, slog.Int64("removed", removed))
	return nil
}

func (j *GrantMaintenanceJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *GrantMaintenanceJob) log(job string) *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", job))
	}
	return slog.Default().With(slog.String("job", job))
}
