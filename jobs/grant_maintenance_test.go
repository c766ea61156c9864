package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/workboard/projectguard/internal/jobs"
)

type stubPurger struct {
	projects []string
	users    []string
	prunes   int
	err      error
}

func (s *stubPurger) PurgeProject(_ context.Context, projectID string) (int64, error) {
	s.projects = append(s.projects, projectID)
	return 4, s.err
}

func (s *stubPurger) PurgeUser(_ context.Context, userID string) (int64, error) {
	s.users = append(s.users, userID)
	return 2, s.err
}

func (s *stubPurger) PruneOrphans(context.Context) (int64, error) {
	s.prunes++
	return 0, s.err
}

func newJob(p *stubPurger) *GrantMaintenanceJob {
	return NewGrantMaintenanceJob(p, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
}

func TestPurgeTasksRoundTrip(t *testing.T) {
	purger := &stubPurger{}
	job := newJob(purger)

	task, err := NewPurgeProjectTask(" p1 ")
	require.NoError(t, err)
	assert.Equal(t, TaskPurgeProject, task.Type())
	require.NoError(t, job.HandlePurgeProject(context.Background(), task))
	assert.Equal(t, []string{"p1"}, purger.projects)

	task, err = NewPurgeUserTask("u-1")
	require.NoError(t, err)
	require.NoError(t, job.HandlePurgeUser(context.Background(), task))
	assert.Equal(t, []string{"u-1"}, purger.users)

	require.NoError(t, job.HandlePruneOrphans(context.Background(), NewPruneOrphansTask()))
	assert.Equal(t, 1, purger.prunes)
}

func TestPurgeTaskValidation(t *testing.T) {
	_, err := NewPurgeProjectTask("")
	assert.Error(t, err)
	_, err = NewPurgeUserTask("   ")
	assert.Error(t, err)

	job := newJob(&stubPurger{})
	body, _ := json.Marshal(PurgeUserPayload{})
	err = job.HandlePurgeUser(context.Background(), asynq.NewTask(TaskPurgeUser, body))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = job.HandlePurgeProject(context.Background(), asynq.NewTask(TaskPurgeProject, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestPurgeFailureIsRetried(t *testing.T) {
	boom := errors.New("db down")
	job := newJob(&stubPurger{err: boom})

	task, err := NewPurgeProjectTask("p1")
	require.NoError(t, err)
	err = job.HandlePurgeProject(context.Background(), task)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, asynq.SkipRetry)

	var unconfigured *GrantMaintenanceJob
	assert.Error(t, unconfigured.HandlePruneOrphans(context.Background(), NewPruneOrphansTask()))
}

func TestHandlersCoverEveryTask(t *testing.T) {
	var types []string
	for _, h := range newJob(&stubPurger{}).Handlers() {
		types = append(types, h.Type)
	}
	assert.ElementsMatch(t, []string{TaskPurgeProject, TaskPurgeUser, TaskPruneOrphans}, types)
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestHealthEndpoint(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3, Retry: 1}}, nil).MountRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var got QueueHealth
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, QueueHealth{Queue: QueueDefault, Pending: 3, Retry: 1}, got)

	r = chi.NewRouter()
	NewHandler(stubInspector{err: errors.New("redis gone")}, nil).MountRoutes(r)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
