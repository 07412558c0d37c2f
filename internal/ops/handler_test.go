package ops

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scoresync/internal/storage"
)

func newTestServer(t *testing.T, runs storage.RunStore) *httptest.Server {
	t.Helper()
	h := New(nil, nil, runs, slog.Default())
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, storage.NewInMemoryRunStore())

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReadyz_NothingConfigured(t *testing.T) {
	srv := newTestServer(t, storage.NewInMemoryRunStore())

	resp, err := http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRuns_ReturnsRecentHistory(t *testing.T) {
	runs := storage.NewInMemoryRunStore()
	started := time.Now().UTC()
	for _, runID := range []string{"run-1", "run-2"} {
		require.NoError(t, runs.Append(context.Background(), &storage.RunRecord{
			RunID:     runID,
			StartedAt: started,
			Result:    "success",
		}))
		started = started.Add(time.Minute)
	}
	srv := newTestServer(t, runs)

	resp, err := http.Get(srv.URL + "/runs?limit=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got []storage.RunRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, "run-2", got[0].RunID, "most recent first")
}

func TestRuns_EmptyHistoryIsEmptyArray(t *testing.T) {
	srv := newTestServer(t, storage.NewInMemoryRunStore())

	resp, err := http.Get(srv.URL + "/runs")
	require.NoError(t, err)
	defer resp.Body.Close()

	var got []storage.RunRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Empty(t, got)
}

func TestMetricsEndpointServes(t *testing.T) {
	srv := newTestServer(t, storage.NewInMemoryRunStore())

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
