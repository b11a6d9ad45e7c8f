package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/aster/pkg/health"
)

func probe(err error) func(context.Context) error {
	return func(context.Context) error { return err }
}

func get(t *testing.T, checker *health.Checker, path string) (int, health.Response) {
	t.Helper()
	e := echo.New()
	checker.RegisterRoutes(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var resp health.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func TestReadiness(t *testing.T) {
	checker := health.NewChecker("1.0.0",
		health.Check{Name: "database", Probe: probe(nil)},
		health.Check{Name: "redis", Probe: probe(nil), Optional: true},
	)

	code, resp := get(t, checker, "/api/v1/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code, "not ready before startup completes")
	assert.Equal(t, health.StatusUnhealthy, resp.Status)

	checker.SetReady(true)
	code, resp = get(t, checker, "/api/v1/health/ready")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, health.StatusHealthy, resp.Status)
	assert.Equal(t, "1.0.0", resp.Version)
	assert.Len(t, resp.Checks, 2)
}

func TestHealth_RequiredCheckDown(t *testing.T) {
	checker := health.NewChecker("1.0.0",
		health.Check{Name: "database", Probe: probe(errors.New("connection refused"))},
	)

	code, resp := get(t, checker, "/api/v1/health")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, health.StatusUnhealthy, resp.Checks["database"].Status)
	assert.Equal(t, "connection refused", resp.Checks["database"].Message)
}

func TestHealth_OptionalFailureAndDisabledDegrade(t *testing.T) {
	tests := []struct {
		name  string
		check health.Check
	}{
		{name: "optional failure", check: health.Check{Name: "redis", Probe: probe(errors.New("timeout")), Optional: true}},
		{name: "not configured", check: health.Check{Name: "redis", Disabled: "redis not configured"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := health.NewChecker("1.0.0", health.Check{Name: "database", Probe: probe(nil)}, tt.check)

			code, resp := get(t, checker, "/api/v1/health")
			assert.Equal(t, http.StatusOK, code)
			assert.Equal(t, health.StatusDegraded, resp.Status)
			assert.Equal(t, health.StatusDegraded, resp.Checks["redis"].Status)
		})
	}
}

func TestLiveness(t *testing.T) {
	code, resp := get(t, health.NewChecker("dev"), "/api/v1/health/live")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, health.StatusHealthy, resp.Status)
}

func TestOverall(t *testing.T) {
	assert.Equal(t, health.StatusHealthy, health.Overall(nil))
	assert.Equal(t, health.StatusUnhealthy, health.Overall(map[string]health.CheckResult{
		"a": {Status: health.StatusDegraded},
		"b": {Status: health.StatusUnhealthy},
	}))
}
