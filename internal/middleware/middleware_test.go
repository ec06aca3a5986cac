package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"printer-service/internal/config"
	"printer-service/internal/utils"
)

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(RecoveryMiddleware(zap.NewNop()))
	router.Use(RequestIDMiddleware())
	router.Use(LoggingMiddleware(utils.NewServiceLogger(zap.NewNop(), "test")))
	router.Use(CORSMiddleware(&config.SecurityConfig{AllowedOrigins: []string{"http://localhost:3000"}}))

	router.GET("/id", func(c *gin.Context) {
		c.String(http.StatusOK, utils.GetRequestID(c))
	})
	router.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})
	return router
}

func TestRequestIDMiddleware(t *testing.T) {
	router := newTestRouter()

	t.Run("assigns a new id", func(t *testing.T) {
		require := require.New(t)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/id", nil))

		require.Equal(http.StatusOK, w.Code)
		require.NotEmpty(w.Body.String())
		require.Equal(w.Body.String(), w.Header().Get(RequestIDHeader))
	})

	t.Run("propagates the caller id", func(t *testing.T) {
		require := require.New(t)
		req := httptest.NewRequest(http.MethodGet, "/id", nil)
		req.Header.Set(RequestIDHeader, "abc-123")

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal("abc-123", w.Body.String())
		require.Equal("abc-123", w.Header().Get(RequestIDHeader))
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	require := require.New(t)
	router := newTestRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	require.Equal(http.StatusInternalServerError, w.Code)
	require.Contains(w.Body.String(), "INTERNAL_SERVER_ERROR")
}

func TestCORSMiddleware(t *testing.T) {
	require := require.New(t)
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/id", nil)
	req.Header.Set("Origin", "http://localhost:3000")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal("http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}
