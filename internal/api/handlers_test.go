package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexmem/cortex/internal/config"
	"github.com/cortexmem/cortex/internal/decay"
	"github.com/cortexmem/cortex/internal/embed"
	"github.com/cortexmem/cortex/internal/engine"
	"github.com/cortexmem/cortex/internal/model"
	"github.com/cortexmem/cortex/internal/sector"
	"github.com/cortexmem/cortex/internal/store/sqlite"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.NewForTesting()

	st, err := sqlite.New(filepath.Join(t.TempDir(), "cortex.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	emb := embed.NewCoordinator(cfg, nil, st.EmbedLogs(), zerolog.Nop())
	eng := engine.New(cfg, st, sector.New(), emb, zerolog.Nop())
	worker := decay.NewWorker(st, decay.Config{
		Shards:      cfg.DecayShards,
		PruneWeight: cfg.WaypointPruneWeight,
		Interval:    time.Minute,
	}, zerolog.Nop())
	eng.BindDecayInfo(worker.LastRuns)

	srv := httptest.NewServer(NewHandler(eng, worker, nil).Router())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, payload interface{}) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestAddAndGetMemory(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/memories", model.AddRequest{
		Content: "the capital of France is Paris",
		UserID:  "u1",
		Tags:    []string{"geo"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var added model.AddResult
	decode(t, resp, &added)
	require.NotEmpty(t, added.MemoryID)
	assert.Contains(t, added.Sectors, model.SectorSemantic)

	got, err := http.Get(srv.URL + "/api/memories/" + added.MemoryID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, got.StatusCode)
	var m model.Memory
	decode(t, got, &m)
	assert.Equal(t, "the capital of France is Paris", m.Content)
	assert.Equal(t, []string{"geo"}, m.Tags)
}

func TestAddValidation(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/memories", model.AddRequest{Content: ""})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/memories", model.AddRequest{ID: "dup", Content: "x"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	_ = resp.Body.Close()
	resp = postJSON(t, srv.URL+"/api/memories", model.AddRequest{ID: "dup", Content: "y"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestQueryEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/memories", model.AddRequest{Content: "the capital of France is Paris", UserID: "u1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	_ = resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/memories/query", model.QueryRequest{Text: "capital of France", UserID: "u1", Limit: 5})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Results []*model.QueryResult `json:"results"`
		Count   int                  `json:"count"`
	}
	decode(t, resp, &out)
	require.Equal(t, 1, out.Count)
	assert.GreaterOrEqual(t, out.Results[0].Score, 0.5)
	assert.NotZero(t, out.Results[0].Explanation.Similarity)
}

func TestListPagination(t *testing.T) {
	srv := newTestServer(t)
	for i := 0; i < 5; i++ {
		resp := postJSON(t, srv.URL+"/api/memories", model.AddRequest{Content: fmt.Sprintf("fact number %d about topic", i), UserID: "u1"})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		_ = resp.Body.Close()
	}

	resp, err := http.Get(srv.URL + "/api/memories?userId=u1&limit=3")
	require.NoError(t, err)
	var page model.ListPage
	decode(t, resp, &page)
	require.Len(t, page.Memories, 3)
	require.NotEmpty(t, page.NextCursor)

	resp, err = http.Get(srv.URL + "/api/memories?userId=u1&limit=3&cursor=" + page.NextCursor)
	require.NoError(t, err)
	var rest model.ListPage
	decode(t, resp, &rest)
	assert.Len(t, rest.Memories, 2)
	assert.Empty(t, rest.NextCursor)
}

func TestReinforceEndpointCapsSalience(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/memories", model.AddRequest{ID: "r1", Content: "some fact"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	_ = resp.Body.Close()

	var out map[string]float64
	for i := 0; i < 20; i++ {
		resp = postJSON(t, srv.URL+"/api/memories/r1/reinforce", map[string]interface{}{})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		decode(t, resp, &out)
		require.LessOrEqual(t, out["salience"], 1.0)
	}
	assert.Equal(t, 1.0, out["salience"])

	resp = postJSON(t, srv.URL+"/api/memories/missing/reinforce", map[string]interface{}{})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestDeleteEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/memories", model.AddRequest{ID: "d1", Content: "bye"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	_ = resp.Body.Close()

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/memories/d1", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestStatsAndDecayEndpoints(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/memories", model.AddRequest{Content: "today I felt happy"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	_ = resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/decay/run", map[string]interface{}{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var runInfo map[string]int64
	decode(t, resp, &runInfo)
	assert.NotZero(t, runInfo["decayLastRun"])

	resp, err := http.Get(srv.URL + "/api/stats")
	require.NoError(t, err)
	var st model.Stats
	decode(t, resp, &st)
	assert.Equal(t, int64(1), st.Total)
	assert.Equal(t, int64(1), st.BySector[model.SectorEmotional])
	assert.NotZero(t, st.DecayLastRun)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
}
