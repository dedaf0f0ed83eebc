package validator

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/gin-gonic/gin"

	apperrors "nonprofit-site/backend/pkg/errors"
	"nonprofit-site/backend/pkg/i18n"
)

//go:embed openapi.yaml
var defaultSchema []byte

// OpenAPIValidator validates requests against an OpenAPI document
type OpenAPIValidator struct {
	doc    *openapi3.T
	router routers.Router
}

// New builds a validator from the embedded schema, or from path when it is set.
func New(path string) (*OpenAPIValidator, error) {
	if path == "" {
		return NewFromData(defaultSchema)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read OpenAPI schema from %s: %w", path, err)
	}
	return NewFromData(data)
}

// NewFromData builds a validator from a YAML or JSON document.
func NewFromData(data []byte) (*OpenAPIValidator, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI schema: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI schema: %w", err)
	}

	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("error creating OpenAPI router: %w", err)
	}

	return &OpenAPIValidator{doc: doc, router: router}, nil
}

// Validate checks r against the schema. Requests for paths the schema does not
// describe pass.
func (v *OpenAPIValidator) Validate(r *http.Request) error {
	route, pathParams, err := v.router.FindRoute(r)
	if err != nil {
		return nil
	}

	return openapi3filter.ValidateRequest(r.Context(), &openapi3filter.RequestValidationInput{
		Request:    r,
		PathParams: pathParams,
		Route:      route,
		Options: &openapi3filter.Options{
			AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
		},
	})
}

// Middleware rejects requests that do not match the schema with a 400
func (v *OpenAPIValidator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := v.Validate(c.Request); err != nil {
			var maxBytes *http.MaxBytesError
			if errors.As(err, &maxBytes) {
				c.Error(apperrors.ErrRequestTooLarge(err))
			} else {
				c.Error(apperrors.NewBadRequestError("INVALID_REQUEST", i18n.MsgInvalidRequest, "request does not match the API schema").Wrap(err))
			}
			c.Abort()
			return
		}
		c.Next()
	}
}

// Document returns the loaded OpenAPI document.
func (v *OpenAPIValidator) Document() *openapi3.T {
	return v.doc
}
