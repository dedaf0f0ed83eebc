package logger

import (
	"time"

	"github.com/gin-gonic/gin"
)

// ContextKey is the gin context key holding the request-scoped *Logger.
const ContextKey = "logger"

// Middleware returns a Gin middleware function that logs requests.
// It expects the request id middleware to have run first.
func Middleware(logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLogger := logger.WithRequestID(c.GetString("requestID"))

		c.Set(ContextKey, reqLogger)
		c.Request = c.Request.WithContext(NewContext(c.Request.Context(), reqLogger))

		start := time.Now()
		c.Next()

		reqLogger = reqLogger.WithSessionID(c.GetString("sessionID"))
		reqLogger.LogRequest(c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// FromGin returns the request-scoped logger stored by Middleware.
func FromGin(c *gin.Context) *Logger {
	if l, ok := c.Get(ContextKey); ok {
		if lg, ok := l.(*Logger); ok {
			return lg
		}
	}
	return GetGlobal()
}
