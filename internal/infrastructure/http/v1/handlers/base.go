// Package handlers implements the HTTP handlers of the fiscal API.
package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"hostal/internal/core/apperror"
	"hostal/internal/domain/fiscal"
)

// BaseHandler provides common handler utilities.
type BaseHandler struct{}

// NewBaseHandler creates a new base handler.
func NewBaseHandler() *BaseHandler {
	return &BaseHandler{}
}

// BindJSON binds and validates JSON request body.
func (h *BaseHandler) BindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		h.Error(c, apperror.NewValidation("invalid request body").WithDetail("error", err.Error()))
		return false
	}
	return true
}

// Error registers the error on the Gin context and aborts the request.
// The JSON response is produced by middleware.ErrorHandler.
func (h *BaseHandler) Error(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// ParseSeries extracts and validates a series from a path or query value.
func (h *BaseHandler) ParseSeries(c *gin.Context, value string) (fiscal.Series, bool) {
	series, err := fiscal.ParseSeries(value)
	if err != nil {
		h.Error(c, apperror.NewValidation("unknown series").WithDetail("series", value))
		return "", false
	}
	return series, true
}

// ParseIntQuery parses integer query parameter with default value.
func (h *BaseHandler) ParseIntQuery(c *gin.Context, key string, defaultVal int) int {
	val := c.Query(key)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}
