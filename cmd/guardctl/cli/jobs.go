package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/workboard/projectguard/jobs"
)

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    *jobs.Client
	inspector *asynq.Inspector
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string) *JobsCLI {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	return &JobsCLI{client: jobs.NewClient(opts), inspector: asynq.NewInspector(opts)}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// Trigger enqueues a maintenance task. purge tasks need the id they act on.
func (c *JobsCLI) Trigger(ctx context.Context, name, id string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	switch strings.TrimSpace(name) {
	case jobs.TaskPurgeProject, "purge-project":
		return c.client.EnqueuePurgeProject(ctx, id)
	case jobs.TaskPurgeUser, "purge-user":
		return c.client.EnqueuePurgeUser(ctx, id)
	case jobs.TaskPruneOrphans, "prune-orphans":
		return c.client.EnqueuePruneOrphans(ctx)
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
}

// InspectQueue reports the queue metrics for the default queue.
func (c *JobsCLI) InspectQueue(context.Context) (jobs.QueueHealth, error) {
	if c == nil || c.inspector == nil {
		return jobs.QueueHealth{}, errors.New("jobs cli: inspector not configured")
	}
	return jobs.InspectQueue(c.inspector)
}
