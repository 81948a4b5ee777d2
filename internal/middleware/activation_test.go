package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type checkerFunc func(ctx context.Context) (bool, error)

func (f checkerFunc) Activated(ctx context.Context) (bool, error) { return f(ctx) }

func serve(guard gin.HandlerFunc) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(WithResponseMeta(), guard)
	r.GET("/x", func(c *gin.Context) {
		SetMeta(c, "seen", true)
		c.JSON(http.StatusOK, ExtractMeta(c))
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	return w
}

func TestRequireActivation(t *testing.T) {
	never := checkerFunc(func(context.Context) (bool, error) { return false, nil })
	always := checkerFunc(func(context.Context) (bool, error) { return true, nil })
	broken := checkerFunc(func(context.Context) (bool, error) { return false, errors.New("disk") })

	w := serve(RequireActivation(never, false))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"seen":true`)
	assert.Contains(t, w.Body.String(), `"processing_time_ms"`)

	w = serve(RequireActivation(never, true))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_ACTIVATED")

	w = serve(RequireActivation(always, true))
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(RequireActivation(broken, true))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
