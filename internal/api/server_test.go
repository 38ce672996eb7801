package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/procurio/ted-harvester/internal/metrics"
	"github.com/procurio/ted-harvester/internal/ted"
)

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	s := NewServer(zap.NewNop())
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.NoError(t, resp.Body.Close())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	metrics.Init()
	s := NewServer(zap.NewNop())
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLastRunEndpoint(t *testing.T) {
	t.Parallel()

	s := NewServer(zap.NewNop())
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/runs/last")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.NoError(t, resp.Body.Close())

	s.SetLastRun(ted.RunSummary{
		RunID:      "run-1",
		Rows:       3,
		OutputPath: "out.xlsx",
		StartedAt:  time.Unix(1700000000, 0).UTC(),
	})

	resp, err = http.Get(ts.URL + "/v1/runs/last")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got ted.RunSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Equal(t, "run-1", got.RunID)
	require.Equal(t, 3, got.Rows)
}
