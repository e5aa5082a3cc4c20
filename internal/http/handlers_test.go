package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpessa/dynamic-text-sub006/internal/orchestrator"
	"github.com/kpessa/dynamic-text-sub006/internal/sandbox"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := sandbox.DefaultConfig()
	cfg.Deadline = 2 * time.Second
	orch := orchestrator.New(cfg, 2, nil, nil)
	t.Cleanup(orch.Close)

	h := NewHandlers(orch)
	r := gin.New()
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/api/metrics", h.Metrics)
	r.POST("/api/execute", h.Execute)
	r.POST("/api/batch", h.BatchExecute)
	r.POST("/api/validate", h.Validate)
	r.POST("/api/cache/clear", h.ClearCache)
	return r
}

func postJSON(t *testing.T, r *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func getJSON(t *testing.T, r *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealthEndpoints(t *testing.T) {
	r := newTestRouter(t)

	w := getJSON(t, r, "/")
	assert.Equal(t, http.StatusOK, w.Code)

	w = getJSON(t, r, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "healthy", body["status"])
}

func TestExecuteEndpoint(t *testing.T) {
	r := newTestRouter(t)

	w := postJSON(t, r, "/api/execute", gin.H{"source": "return 2 + 2;"})
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["requestId"])

	result := body["result"].(map[string]any)
	assert.EqualValues(t, 4, result["value"])
}

func TestExecuteEndpointWithContext(t *testing.T) {
	r := newTestRouter(t)

	w := postJSON(t, r, "/api/execute", gin.H{
		"source":  "return me.getValue('weight') * 2;",
		"context": gin.H{"values": gin.H{"weight": 3.5}},
	})
	require.Equal(t, http.StatusOK, w.Code)

	result := decode(t, w)["result"].(map[string]any)
	assert.EqualValues(t, 7, result["value"])
}

func TestExecuteEndpointScriptErrorIs200(t *testing.T) {
	r := newTestRouter(t)

	w := postJSON(t, r, "/api/execute", gin.H{"source": "throw new Error('nope');"})
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	result := body["result"].(map[string]any)
	assert.Equal(t, "runtime_error", result["errorKind"])
	assert.Contains(t, result["errorMessage"], "nope")
}

func TestExecuteEndpointConsole(t *testing.T) {
	r := newTestRouter(t)

	w := postJSON(t, r, "/api/execute", gin.H{"source": "console.log('out'); return 1;"})
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, []any{"out"}, body["console"])
}

func TestExecuteEndpointMissingSource(t *testing.T) {
	r := newTestRouter(t)

	w := postJSON(t, r, "/api/execute", gin.H{"context": gin.H{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBatchEndpoint(t *testing.T) {
	r := newTestRouter(t)

	w := postJSON(t, r, "/api/batch", gin.H{
		"items": []gin.H{
			{"id": "a", "source": "return 1;"},
			{"id": "b", "source": "return ((("},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.EqualValues(t, 1, body["successCount"])
	assert.EqualValues(t, 1, body["errorCount"])
	results := body["results"].([]any)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].(map[string]any)["itemId"])
}

func TestBatchEndpointEmpty(t *testing.T) {
	r := newTestRouter(t)

	w := postJSON(t, r, "/api/batch", gin.H{"items": []gin.H{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestValidateEndpoint(t *testing.T) {
	r := newTestRouter(t)

	w := postJSON(t, r, "/api/validate", gin.H{"source": "return 1;"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["valid"])

	w = postJSON(t, r, "/api/validate", gin.H{"source": "return ((("})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["valid"])
	assert.NotEmpty(t, body["errors"])
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(t)

	postJSON(t, r, "/api/execute", gin.H{"source": "return 1;"})

	w := getJSON(t, r, "/api/metrics")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.EqualValues(t, 1, body["executions"])
	assert.EqualValues(t, 1, body["succeeded"])
}

func TestClearCacheEndpoint(t *testing.T) {
	r := newTestRouter(t)

	postJSON(t, r, "/api/execute", gin.H{"source": "return 'cached';"})

	w := postJSON(t, r, "/api/cache/clear", gin.H{})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["success"])

	w = getJSON(t, r, "/api/metrics")
	cache := decode(t, w)["cache"].(map[string]any)
	assert.EqualValues(t, 0, cache["entries"])
}
