// handlers_health.go - Health check handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version string
	index   IndexStats
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, index IndexStats) HealthHandler {
	return &HealthHandlerImpl{
		version: version,
		index:   index,
	}
}

// HandleHealth returns server health status
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	indexed := 0
	if h.index != nil {
		indexed = h.index.Len()
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": h.version,
		"indexed": indexed,
	})
}
