package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestRegisterDefaultIsIdempotent(t *testing.T) {
	RegisterDefault()
	RegisterDefault()
	Plans.WithLabelValues("greedy", "ok").Inc()
	assert.Contains(t, scrape(t), `batch_plans_total{outcome="ok",strategy="greedy"} 1`)
}

func TestHandlerExposesCollectors(t *testing.T) {
	RegisterDefault()
	SolverRuns.WithLabelValues("pb", "optimal").Inc()
	body := scrape(t)
	assert.Contains(t, body, `solver_runs_total{backend="pb",status="optimal"}`)
	assert.Contains(t, body, "go_goroutines")
}
