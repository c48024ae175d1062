package queuemonitor_test

import (
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/sentinel/internal/authz"
	"github.com/odyssey-erp/sentinel/internal/errorpage"
	"github.com/odyssey-erp/sentinel/internal/platform/httpx"
	"github.com/odyssey-erp/sentinel/internal/queuemonitor"
	"github.com/odyssey-erp/sentinel/internal/shared"
)

type fakeInspector struct {
	queues    map[string]*asynq.QueueInfo
	archived  map[string][]*asynq.TaskInfo
	completed map[string]int
	ran       []string
	deleted   []string
	paused    map[string]bool
	cancelled []string
	listOpts  int
}

func newFakeInspector() *fakeInspector {
	failedAt := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	return &fakeInspector{
		queues: map[string]*asynq.QueueInfo{
			"default":  {Queue: "default", Size: 3, Pending: 1, Archived: 2, Processed: 10, Latency: 1500 * time.Millisecond},
			"critical": {Queue: "critical", Paused: true},
		},
		archived: map[string][]*asynq.TaskInfo{
			"default": {
				{ID: "t1", Queue: "default", Type: "mail:send", Payload: []byte(`{"to":"a@example.com"}`), State: asynq.TaskStateArchived, MaxRetry: 3, Retried: 3, LastErr: "smtp: connection refused", LastFailedAt: failedAt},
				{ID: "t2", Queue: "default", Type: "activity:prune", Payload: []byte(`{}`), State: asynq.TaskStateArchived},
			},
		},
		completed: map[string]int{"default": 4, "critical": 1},
		paused:    map[string]bool{},
	}
}

func (f *fakeInspector) Queues() ([]string, error) {
	out := make([]string, 0, len(f.queues))
	for name := range f.queues {
		out = append(out, name)
	}
	return out, nil
}

func (f *fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	info, ok := f.queues[queue]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return info, nil
}

func (f *fakeInspector) list(queue string, opts []asynq.ListOption, tasks map[string][]*asynq.TaskInfo) ([]*asynq.TaskInfo, error) {
	f.listOpts = len(opts)
	if _, ok := f.queues[queue]; !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return tasks[queue], nil
}

func (f *fakeInspector) ListPendingTasks(q string, o ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return f.list(q, o, nil)
}

func (f *fakeInspector) ListActiveTasks(q string, o ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return f.list(q, o, nil)
}

func (f *fakeInspector) ListScheduledTasks(q string, o ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return f.list(q, o, nil)
}

func (f *fakeInspector) ListRetryTasks(q string, o ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return f.list(q, o, nil)
}

func (f *fakeInspector) ListArchivedTasks(q string, o ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return f.list(q, o, f.archived)
}

func (f *fakeInspector) ListCompletedTasks(q string, o ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return f.list(q, o, nil)
}

func (f *fakeInspector) RunTask(queue, id string) error {
	for _, t := range f.archived[queue] {
		if t.ID == id {
			f.ran = append(f.ran, id)
			return nil
		}
	}
	return asynq.ErrTaskNotFound
}

func (f *fakeInspector) DeleteTask(queue, id string) error {
	f.deleted = append(f.deleted, queue+"/"+id)
	return nil
}

func (f *fakeInspector) DeleteAllArchivedTasks(queue string) (int, error) {
	n := len(f.archived[queue])
	delete(f.archived, queue)
	return n, nil
}

func (f *fakeInspector) DeleteAllCompletedTasks(queue string) (int, error) {
	n := f.completed[queue]
	f.completed[queue] = 0
	return n, nil
}

func (f *fakeInspector) PauseQueue(queue string) error {
	f.paused[queue] = true
	return nil
}

func (f *fakeInspector) UnpauseQueue(queue string) error {
	f.paused[queue] = false
	return nil
}

func (f *fakeInspector) CancelProcessing(id string) error {
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeInspector) Servers() ([]*asynq.ServerInfo, error) {
	return []*asynq.ServerInfo{{ID: "srv-1", Host: "worker-a", PID: 42, Concurrency: 5, Queues: map[string]int{"default": 1}, Status: "active"}}, nil
}

// gateAuthorizer decides gates with the real engine against the principal in
// the request context.
type gateAuthorizer struct {
	engine *authz.Engine
	errs   httpx.Errors
}

func (g gateAuthorizer) RequireGate(ability string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !g.Allows(r, ability) {
				g.errs.Render(w, r, httpx.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (g gateAuthorizer) Allows(r *http.Request, ability string) bool {
	p, ok := authz.PrincipalFromContext(r.Context())
	return ok && g.engine.GateDecision(p, ability)
}

type fixture struct {
	router    http.Handler
	inspector *fakeInspector
}

func newFixture(t *testing.T, cfg queuemonitor.Config, principal authz.Principal) *fixture {
	t.Helper()
	engine, err := authz.NewDefaultEngine()
	require.NoError(t, err)
	errs := errorpage.NewHandler(errorpage.DefaultConfig(), nil, nil, nil)
	inspector := newFakeInspector()
	handler := queuemonitor.NewHandler(queuemonitor.NewService(inspector, cfg, nil), gateAuthorizer{engine: engine, errs: errs}, errs, nil)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(authz.WithPrincipal(req.Context(), principal)))
		})
	})
	r.Route("/admin/queues", handler.MountRoutes)
	return &fixture{router: r, inspector: inspector}
}

func (f *fixture) do(method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func operator(perms ...string) authz.Principal {
	return authz.NewPrincipal(5, "Ops", "ops@example.com", nil, append([]string{shared.PermQueueAccess}, perms...))
}

func superAdmin() authz.Principal {
	return authz.NewPrincipal(1, "Root", "root@example.com", []string{shared.OverrideRole}, nil)
}

func TestAccessGateGuardsEveryRoute(t *testing.T) {
	f := newFixture(t, queuemonitor.Config{}, authz.NewPrincipal(9, "Nobody", "", nil, []string{shared.PermQueueJobDetails}))
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodGet, "/admin/queues/").Code)
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodGet, "/admin/queues/default/tasks?state=archived").Code)
}

func TestQueueStatsRequireStatisticsGate(t *testing.T) {
	f := newFixture(t, queuemonitor.Config{}, operator())
	rec := f.do(http.MethodGet, "/admin/queues/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"stats"`)
	assert.Contains(t, rec.Body.String(), `"name":"critical","paused":true`)

	f = newFixture(t, queuemonitor.Config{}, operator(shared.PermQueueStatistics))
	rec = f.do(http.MethodGet, "/admin/queues/")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data []queuemonitor.Queue `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	assert.Equal(t, "critical", body.Data[0].Name)
	require.NotNil(t, body.Data[1].Stats)
	assert.Equal(t, 2, body.Data[1].Stats.Archived)
	assert.Equal(t, int64(1500), body.Data[1].Stats.LatencyMS)
}

func TestTaskListingRedactsPayloadAndFailures(t *testing.T) {
	f := newFixture(t, queuemonitor.Config{}, operator(shared.PermQueueJobDetails))
	rec := f.do(http.MethodGet, "/admin/queues/default/tasks?state=archived")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"id":"t1"`)
	assert.NotContains(t, body, "a@example.com")
	assert.NotContains(t, body, "connection refused")
	assert.Equal(t, 2, f.inspector.listOpts)

	f = newFixture(t, queuemonitor.Config{}, operator(shared.PermQueueJobDetails, shared.PermQueueJobPayload, shared.PermQueueFailedDetails))
	body = f.do(http.MethodGet, "/admin/queues/default/tasks?state=archived").Body.String()
	assert.Contains(t, body, "a@example.com")
	assert.Contains(t, body, "smtp: connection refused")
}

func TestTaskListingValidation(t *testing.T) {
	f := newFixture(t, queuemonitor.Config{Queues: []string{"default"}}, superAdmin())
	assert.Equal(t, http.StatusUnprocessableEntity, f.do(http.MethodGet, "/admin/queues/default/tasks?state=bogus").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/admin/queues/critical/tasks").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/admin/queues/default/nowhere").Code)
}

func TestOperationsUseTheirOwnGates(t *testing.T) {
	f := newFixture(t, queuemonitor.Config{}, operator(shared.PermQueueRetry))
	assert.Equal(t, http.StatusNoContent, f.do(http.MethodPost, "/admin/queues/default/tasks/t1/retry").Code)
	assert.Equal(t, []string{"t1"}, f.inspector.ran)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/admin/queues/default/tasks/zzz/retry").Code)
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodDelete, "/admin/queues/default/tasks/t1").Code)
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodDelete, "/admin/queues/default/archived").Code)
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodPost, "/admin/queues/default/pause").Code)
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodGet, "/admin/queues/servers").Code)
	assert.Empty(t, f.inspector.deleted)
}

func TestOverrideRoleRunsEveryOperation(t *testing.T) {
	f := newFixture(t, queuemonitor.Config{}, superAdmin())

	assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/admin/queues/default/tasks/t2").Code)
	assert.Equal(t, []string{"default/t2"}, f.inspector.deleted)

	rec := f.do(http.MethodDelete, "/admin/queues/default/archived")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted":2}`, rec.Body.String())

	rec = f.do(http.MethodDelete, "/admin/queues/default/completed")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted":4}`, rec.Body.String())

	assert.Equal(t, http.StatusNoContent, f.do(http.MethodPost, "/admin/queues/critical/resume").Code)
	assert.False(t, f.inspector.paused["critical"])
	assert.Equal(t, http.StatusNoContent, f.do(http.MethodPost, "/admin/queues/default/pause").Code)
	assert.True(t, f.inspector.paused["default"])

	assert.Equal(t, http.StatusAccepted, f.do(http.MethodPost, "/admin/queues/tasks/abc/cancel").Code)
	assert.Equal(t, []string{"abc"}, f.inspector.cancelled)

	rec = f.do(http.MethodGet, "/admin/queues/servers")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"host":"worker-a"`)

	rec = f.do(http.MethodGet, "/admin/queues/config")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"pageSize":30`)
}

func TestExportCSV(t *testing.T) {
	f := newFixture(t, queuemonitor.Config{}, operator(shared.PermQueueExport, shared.PermQueueFailedDetails))
	rec := f.do(http.MethodGet, "/admin/queues/default/export.csv")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "queue-default-archived.csv")

	rows, err := csv.NewReader(strings.NewReader(rec.Body.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"id", "queue", "type", "state", "retried", "max_retry", "next_process_at", "last_error", "last_failed_at"}, rows[0])
	assert.Equal(t, "smtp: connection refused", rows[1][7])
	assert.Equal(t, "2025-05-01T10:00:00Z", rows[1][8])
	assert.NotContains(t, rec.Body.String(), "a@example.com")
}

func TestServicePruneAll(t *testing.T) {
	inspector := newFakeInspector()
	svc := queuemonitor.NewService(inspector, queuemonitor.Config{}, nil)
	pruned, err := svc.PruneAll()
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"default": 4, "critical": 1}, pruned)
}
