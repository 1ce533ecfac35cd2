package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"oficiogen/backend/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const schemaPath = "../../api/openapi.yaml"

func newEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	v, err := NewOpenAPIValidator(schemaPath)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", v.Version())

	engine := gin.New()
	engine.Use(errors.ErrorHandler(), v.Middleware())
	engine.PUT("/api/v1/sessions/current", func(c *gin.Context) { c.Status(http.StatusOK) })
	engine.GET("/unlisted", func(c *gin.Context) { c.Status(http.StatusOK) })
	return engine
}

func TestMiddlewareRejectsInvalidBody(t *testing.T) {
	engine := newEngine(t)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/sessions/current", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "SCHEMA_VIOLATION")
}

func TestMiddlewareAcceptsValidBody(t *testing.T) {
	engine := newEngine(t)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/sessions/current", strings.NewReader(`{"id":"abc"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMiddlewareIgnoresUnknownRoutes(t *testing.T) {
	engine := newEngine(t)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/unlisted", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNewOpenAPIValidatorMissingFile(t *testing.T) {
	_, err := NewOpenAPIValidator("does-not-exist.yaml")
	assert.Error(t, err)
}
