package api

import (
	"github.com/gin-gonic/gin"

	"github.com/developer-mesh/semcache/pkg/observability"
)

// NewRouter builds the request API engine. Gin mode is the caller's
// responsibility; the composition root derives it from the log level.
func NewRouter(handler *Handler, logger observability.Logger) *gin.Engine {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestID())
	router.Use(AccessLog(logger))

	router.POST("/query", handler.Query)
	router.GET("/health", handler.Health)
	router.GET("/stats", handler.Stats)

	return router
}
