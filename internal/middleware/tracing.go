package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/tracing"
)

// Tracing opens a span per request and propagates it on the request context
func Tracing() gin.HandlerFunc {
	return func(c *gin.Context) {
		operation := c.Request.Method + " " + c.FullPath()
		span, ctx := tracing.StartSpan(c.Request.Context(), operation)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		tracing.SetTag(span, "http.status_code", c.Writer.Status())
		tracing.SetTag(span, "http.method", c.Request.Method)
		tracing.FinishSpan(span, nil)
	}
}
