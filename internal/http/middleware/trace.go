package middleware

import (
	"github.com/gin-gonic/gin"

	"basegraph.app/quizsolver/common/logger"
)

// TraceHeader echoes the request's trace id in a response header so a
// caller can find the worker logs for the job it just submitted.
func TraceHeader(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if traceID := logger.TraceID(c.Request.Context()); traceID != "" {
			c.Header(name, traceID)
		}
		c.Next()
	}
}
