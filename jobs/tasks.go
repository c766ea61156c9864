package jobs

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPurgeProject deletes every grant of a removed project.
	TaskPurgeProject = "permissions:purge_project"
	// TaskPurgeUser deletes every grant of a removed user.
	TaskPurgeUser = "permissions:purge_user"
	// TaskPruneOrphans deletes grants whose user left the project.
	TaskPruneOrphans = "permissions:prune_orphans"
)

// PurgeProjectPayload identifies the removed project.
type PurgeProjectPayload struct {
	ProjectID string `json:"project_id"`
}

// PurgeUserPayload identifies the removed user.
type PurgeUserPayload struct {
	UserID string `json:"user_id"`
}

// NewPurgeProjectTask builds a purge task for projectID.
func NewPurgeProjectTask(projectID string) (*asynq.Task, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, errors.New("jobs: project id required")
	}
	body, err := json.Marshal(PurgeProjectPayload{ProjectID: projectID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPurgeProject, body, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// NewPurgeUserTask builds a purge task for userID.
func NewPurgeUserTask(userID string) (*asynq.Task, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("jobs: user id required")
	}
	body, err := json.Marshal(PurgeUserPayload{UserID: userID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPurgeUser, body, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// NewPruneOrphansTask builds the periodic orphan sweep.
func NewPruneOrphansTask() *asynq.Task {
	return asynq.NewTask(TaskPruneOrphans, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(3))
}
