// Package api exposes the query pipeline over HTTP: POST /query runs a
// query through the semantic cache, GET /health reports liveness, and
// GET /stats serves the metrics snapshot. Request validation rejects
// blank queries before any pipeline work happens.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/developer-mesh/semcache/internal/llm"
	"github.com/developer-mesh/semcache/internal/metrics"
	"github.com/developer-mesh/semcache/internal/service"
	"github.com/developer-mesh/semcache/pkg/observability"
)

// QueryProcessor is the pipeline surface the handler consumes.
type QueryProcessor interface {
	Process(ctx context.Context, query string, forceRefresh bool) (service.Result, error)
	Stats() metrics.Stats
}

// Handler serves the request API.
type Handler struct {
	processor QueryProcessor
	logger    observability.Logger
}

// NewHandler creates a handler over the given pipeline.
func NewHandler(processor QueryProcessor, logger observability.Logger) *Handler {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	registerValidations()

	return &Handler{
		processor: processor,
		logger:    logger.WithPrefix("api"),
	}
}

// registerValidations installs the notblank rule on gin's binding
// validator. Registration is idempotent.
func registerValidations() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
	}
}

// Query handles POST /query
func (h *Handler) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "query must be a non-empty string"})
		return
	}

	result, err := h.processor.Process(c.Request.Context(), req.Query, req.ForceRefresh)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// Stats handles GET /stats
func (h *Handler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.processor.Stats())
}

// renderError maps pipeline errors onto the response status taxonomy:
// 429 for rate limits, 502 for an unavailable backend, 500 otherwise.
func (h *Handler) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, llm.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limit exceeded, please retry later"})

	case errors.Is(err, llm.ErrBackendUnavailable):
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "backend unavailable"})

	default:
		h.logger.Error("Request failed", map[string]interface{}{
			"error": err.Error(),
			"path":  c.FullPath(),
		})
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}
