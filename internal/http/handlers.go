package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kpessa/dynamic-text-sub006/internal/orchestrator"
	"github.com/kpessa/dynamic-text-sub006/internal/sandbox"
	"github.com/kpessa/dynamic-text-sub006/internal/worker"
)

// MaxBatchItems bounds one batch request.
const MaxBatchItems = 100

// Handlers contains all HTTP handlers
type Handlers struct {
	orch *orchestrator.Orchestrator
}

// NewHandlers creates a new handler set
func NewHandlers(orch *orchestrator.Orchestrator) *Handlers {
	return &Handlers{orch: orch}
}

// ExecuteRequest is the body of POST /api/execute.
type ExecuteRequest struct {
	Source  string                   `json:"source" binding:"required"`
	Context sandbox.ExecutionContext `json:"context"`
}

// BatchRequest is the body of POST /api/batch.
type BatchRequest struct {
	Items []worker.BatchItem `json:"items" binding:"required"`
}

// ValidateRequest is the body of POST /api/validate.
type ValidateRequest struct {
	Source string `json:"source" binding:"required"`
}

// Root handles health check
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "script-sandbox",
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"pool_size": h.orch.PoolSize(),
	})
}

// Execute runs one script. Script failures are data in the result, not
// HTTP errors; only malformed requests and transport failures map to
// non-200 statuses.
func (h *Handlers) Execute(c *gin.Context) {
	var req ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	out, err := h.orch.Execute(c.Request.Context(), req.Source, req.Context)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"requestId": out.RequestID,
		"success":   out.Result.OK(),
		"result":    out.Result,
		"console":   out.Console,
	})
}

// BatchExecute runs independent scripts and returns per-item results in
// submission order.
func (h *Handlers) BatchExecute(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Items) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "batch must contain at least one item"})
		return
	}
	if len(req.Items) > MaxBatchItems {
		c.JSON(http.StatusBadRequest, gin.H{"error": "batch exceeds maximum item count"})
		return
	}

	res, err := h.orch.BatchExecute(c.Request.Context(), req.Items)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, res)
}

// Validate compiles a script without executing it.
func (h *Handlers) Validate(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.orch.Validate(c.Request.Context(), req.Source)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, res)
}

// Metrics returns the merged execution counters and cache stats.
func (h *Handlers) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.orch.Metrics(c.Request.Context()))
}

// ClearCache drops every worker's compiled programs.
func (h *Handlers) ClearCache(c *gin.Context) {
	h.orch.ClearCache(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"success": true})
}
