package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// setupDocs serves the OpenAPI document the request validator enforces.
func (r *Router) setupDocs() {
	doc := r.Container.Validator.Document()
	r.Engine.GET("/api/docs/openapi.json", func(c *gin.Context) {
		c.JSON(http.StatusOK, doc)
	})
	r.Logger.Debug("OpenAPI schema available", "url", "/api/docs/openapi.json")
}
