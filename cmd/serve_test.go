package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/classify-cli/internal/job"
	"github.com/sells-group/classify-cli/internal/model"
	"github.com/sells-group/classify-cli/internal/store"
	"github.com/sells-group/classify-cli/internal/taxonomy"
)

type stubEngine struct{}

func (stubEngine) Run(ctx context.Context, vendors []string) (map[string]*model.Outcome, error) {
	out := make(map[string]*model.Outcome, len(vendors))
	for _, v := range vendors {
		out[v] = &model.Outcome{
			NormalizedName: v,
			Levels: []model.LevelResult{
				{Level: 1, CategoryID: "23", CategoryName: "Construction", Confidence: 0.9},
			},
		}
	}
	return out, nil
}

type stubResolver struct{}

func (stubResolver) Resolve(ctx context.Context, vendor string, _ []*taxonomy.Node, _ *model.UsageAccumulator) (*model.SearchResolution, error) {
	return &model.SearchResolution{Error: "no search results found"}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, store.Store) {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	tree, err := taxonomy.Build([]taxonomy.FlatNode{
		{ID: "23", Name: "Construction", Level: 1},
	})
	require.NoError(t, err)

	orch := job.NewOrchestrator(st, tree,
		func(acc *model.UsageAccumulator, onLevel func(int)) job.EngineRunner { return stubEngine{} },
		stubResolver{},
		func(jobID string, _ []model.OutputRow) (string, error) { return "/artifacts/" + jobID + ".xlsx", nil })

	srv := httptest.NewServer(newRouter(context.Background(), st, orch))
	t.Cleanup(srv.Close)
	return srv, st
}

func TestServe_Health(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServe_SubmitAndPoll(t *testing.T) {
	srv, st := newTestServer(t)

	body, _ := json.Marshal(map[string]any{"vendors": []string{"Acme Inc", "acme inc"}})
	resp, err := http.Post(srv.URL+"/jobs", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var submitted model.Job
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&submitted))
	require.NotEmpty(t, submitted.ID)

	assert.Eventually(t, func() bool {
		j, err := st.GetJob(context.Background(), submitted.ID)
		return err == nil && j.Status == model.JobStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	j, err := st.GetJob(context.Background(), submitted.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, j.Stats.TotalVendors)
	assert.Equal(t, 1, j.Stats.UniqueVendors)
	assert.NotEmpty(t, j.ArtifactPath)
}

func TestServe_SubmitRejectsEmpty(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/jobs", "application/json", bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServe_GetJobNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/jobs/does-not-exist")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServe_CancelPendingJob(t *testing.T) {
	srv, st := newTestServer(t)

	// Create directly so no worker races the cancel.
	j, err := st.CreateJob(context.Background(), []string{"Acme Inc"})
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/jobs/"+j.ID+"/cancel", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Cancelled bool `json:"cancelled"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out.Cancelled)

	got, err := st.GetJob(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, got.Status)
}

func TestServe_ListJobs(t *testing.T) {
	srv, st := newTestServer(t)

	_, err := st.CreateJob(context.Background(), []string{"Acme Inc"})
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/jobs")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var jobs []model.Job
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&jobs))
	assert.Len(t, jobs, 1)
}
