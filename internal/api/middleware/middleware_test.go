package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func newAppEcho() *echo.Echo {
	e := echo.New()
	SetupMiddleware(e)
	e.GET("/api/v1/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	return e
}

func TestSetupMiddleware_リクエストIDが付与される(t *testing.T) {
	e := newAppEcho()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestSetupMiddleware_CORSは提供メソッドのみ許可(t *testing.T) {
	e := newAppEcho()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/health", nil)
	req.Header.Set(echo.HeaderOrigin, "http://example.com")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPut)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	allowed := rec.Header().Get(echo.HeaderAccessControlAllowMethods)
	assert.Contains(t, allowed, http.MethodPut)
	assert.NotContains(t, allowed, http.MethodPatch)
	assert.NotContains(t, allowed, http.MethodDelete)
	assert.Contains(t, rec.Header().Get(echo.HeaderAccessControlAllowHeaders), "X-User-ID")
}
