package errors

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"nonprofit-site/backend/pkg/i18n"
	"nonprofit-site/backend/pkg/logger"
)

// Localized returns the client-facing text of e in the best language for acceptLanguage.
// Without a translator the developer message is used.
func (e *AppError) Localized(tr *i18n.Translator, acceptLanguage string) string {
	if tr == nil || e.MessageID == "" {
		return e.Message
	}
	return tr.Localize(acceptLanguage, e.MessageID, e.Data)
}

// ErrorHandler renders the last error attached to the gin context as {"error": "..."}.
func ErrorHandler(tr *i18n.Translator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		appErr := FromError(c.Errors.Last().Err)

		log := logger.FromGin(c).WithSessionID(c.GetString("sessionID"))
		args := []any{
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
			"status_code", appErr.StatusCode,
			"error_code", appErr.Code,
		}
		if appErr.Err != nil {
			args = append(args, "cause", appErr.Err.Error())
		}
		if appErr.StatusCode >= http.StatusInternalServerError {
			log.Error(appErr.Message, args...)
		} else {
			log.Warn(appErr.Message, args...)
		}

		if c.Writer.Written() {
			return
		}
		c.AbortWithStatusJSON(appErr.StatusCode, gin.H{
			"error": appErr.Localized(tr, c.GetHeader("Accept-Language")),
		})
	}
}

// RecoveryWithLogger returns a middleware that recovers from any panics
// and logs the error with the request ID if available
func RecoveryWithLogger(tr *i18n.Translator) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())

				logger.FromGin(c).Error("panic recovered",
					"error", fmt.Sprintf("%v", r),
					"stack", stack,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)

				appErr := NewInternalServerError("SERVER_PANIC", "the server encountered an unexpected error")
				c.AbortWithStatusJSON(appErr.StatusCode, gin.H{
					"error": appErr.Localized(tr, c.GetHeader("Accept-Language")),
				})
			}
		}()

		c.Next()
	}
}
