package echoapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staffhub/backend/core"
	"github.com/staffhub/backend/core/etl"
	"github.com/staffhub/backend/jobs"
	testutil "github.com/staffhub/backend/tests"
)

const testSecret = "test-secret"

type fakeJobs struct {
	triggered []jobs.Kind
	full      bool
}

func (f *fakeJobs) Trigger(kind jobs.Kind) (string, error) {
	if f.full {
		return "", jobs.ErrQueueFull
	}
	f.triggered = append(f.triggered, kind)
	return "job-1", nil
}

func (f *fakeJobs) Job(id string) (jobs.Job, bool) {
	if id != "job-1" || len(f.triggered) == 0 {
		return jobs.Job{}, false
	}
	return jobs.Job{ID: id, Kind: jobs.KindManual, Status: jobs.StatusQueued}, true
}

func newTestServer(t *testing.T, collector *etl.Collector, queue *fakeJobs) Server {
	t.Helper()
	srv, err := NewServer(&Options{
		TestMode:       true,
		DisableReqLogs: true,
		SecretKey:      testSecret,
		TriggerRoles:   []string{"admin", "it"},
		Logger:         testutil.NewLogger(),
		Translator:     core.NewTranslator(),
		Metrics:        collector,
		Jobs:           queue,
	})
	require.NoError(t, err)
	return srv
}

func token(t *testing.T, roles ...string) string {
	t.Helper()
	tok, err := GenerateToken(testSecret, NewClaims("u1", "it@school.example", time.Hour, roles...))
	require.NoError(t, err)
	return tok
}

func serve(srv Server, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestETLAPI_health(t *testing.T) {
	collector := etl.NewCollector(etl.DefaultMetricsCapacity, etl.DefaultHealthWindow, testutil.NewLogger())
	srv := newTestServer(t, collector, new(fakeJobs))

	rec := serve(srv, http.MethodGet, "/v1/cases-etl/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var health etl.Health
	decode(t, rec, &health)
	assert.Equal(t, etl.Unhealthy, health.Status)
	assert.Equal(t, "No ETL runs recorded", health.Message)

	collector.Record(etl.RunMetrics{RunID: "r1", RecordsProcessed: 10, Success: true})
	rec = serve(srv, http.MethodGet, "/v1/cases-etl/health/", "")
	decode(t, rec, &health)
	assert.Equal(t, etl.Healthy, health.Status)
}

func TestETLAPI_metrics(t *testing.T) {
	collector := etl.NewCollector(etl.DefaultMetricsCapacity, etl.DefaultHealthWindow, testutil.NewLogger())
	srv := newTestServer(t, collector, new(fakeJobs))

	var resp metricsResponse
	rec := serve(srv, http.MethodGet, "/v1/cases-etl/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &resp)
	assert.Empty(t, resp.Recent)
	assert.Nil(t, resp.Average)

	for i := 0; i < 12; i++ {
		collector.Record(etl.RunMetrics{RunID: "r", RecordsProcessed: 10, RecordsErrored: 1})
	}

	rec = serve(srv, http.MethodGet, "/v1/cases-etl/metrics", "")
	decode(t, rec, &resp)
	assert.Len(t, resp.Recent, 10)
	require.NotNil(t, resp.Average)
	assert.Equal(t, 12, resp.Average.Runs)
	assert.InDelta(t, 0.1, resp.Average.ErrorRate, 1e-9)

	rec = serve(srv, http.MethodGet, "/v1/cases-etl/metrics?limit=3", "")
	decode(t, rec, &resp)
	assert.Len(t, resp.Recent, 3)

	rec = serve(srv, http.MethodGet, "/v1/cases-etl/metrics?limit=lol", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var fields map[string]string
	decode(t, rec, &fields)
	assert.Contains(t, fields, "limit")
}

func TestETLAPI_trigger(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		full     bool
		wantCode int
	}{
		{name: "no token", wantCode: http.StatusUnauthorized},
		{name: "bad token", token: "not.a.jwt", wantCode: http.StatusUnauthorized},
		{name: "teacher", token: "teacher", wantCode: http.StatusForbidden},
		{name: "admin", token: "admin", wantCode: http.StatusOK},
		{name: "it (case-insensitive)", token: "IT", wantCode: http.StatusOK},
		{name: "queue full", token: "admin", full: true, wantCode: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := &fakeJobs{full: tt.full}
			srv := newTestServer(t, etl.NewCollector(10, 10, testutil.NewLogger()), queue)

			tok := tt.token
			if tok != "" && tok != "not.a.jwt" {
				tok = token(t, tok)
			}
			rec := serve(srv, http.MethodPost, "/v1/cases-etl/trigger", tok)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())

			if tt.wantCode == http.StatusOK {
				var resp triggerResponse
				decode(t, rec, &resp)
				assert.Equal(t, triggerResponse{Message: "ETL job triggered", JobID: "job-1"}, resp)
				assert.Equal(t, []jobs.Kind{jobs.KindManual}, queue.triggered)
			} else {
				assert.Empty(t, queue.triggered)
			}
		})
	}
}

func TestETLAPI_job(t *testing.T) {
	queue := new(fakeJobs)
	srv := newTestServer(t, etl.NewCollector(10, 10, testutil.NewLogger()), queue)
	tok := token(t, "admin")

	rec := serve(srv, http.MethodGet, "/v1/cases-etl/jobs/job-1", tok)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	serve(srv, http.MethodPost, "/v1/cases-etl/trigger", tok)
	rec = serve(srv, http.MethodGet, "/v1/cases-etl/jobs/job-1", tok)
	require.Equal(t, http.StatusOK, rec.Code)
	var job jobs.Job
	decode(t, rec, &job)
	assert.Equal(t, jobs.StatusQueued, job.Status)
}

func TestNewServer_requiresDeps(t *testing.T) {
	_, err := NewServer(&Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Logger")
}
