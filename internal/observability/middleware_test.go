package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLoggerAssignsRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.InfoLevel)

	r := gin.New()
	r.Use(RequestLogger(zap.New(core)))
	var seen string
	var ctxLogger *zap.Logger
	r.GET("/ping", func(c *gin.Context) {
		seen = RequestID(c)
		ctxLogger = FromContext(c.Request.Context(), nil)
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get(RequestIDHeader))
	require.NotNil(t, ctxLogger)
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "request completed", entry.Message)
	assert.Equal(t, seen, entry.ContextMap()["request_id"])
}

func TestRequestLoggerKeepsCallerRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger(zap.NewNop()))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "req-123\n")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))
}

func TestInstrumentCountsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics("test")
	r := gin.New()
	r.Use(Instrument(m))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Requests.WithLabelValues("/ping", "200")))

	m.ObserveTransition("shipped", "ok")
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.True(t, strings.Contains(w.Body.String(), "orderlifecycle_test_order_transitions_total"))
}

func TestSanitizeRequestID(t *testing.T) {
	assert.Equal(t, "abc[31m", sanitizeRequestID(" abc\x00\x1b[31m\r\n"))
	assert.Equal(t, "ok", sanitizeRequestID("o\xffk"))

	long := sanitizeRequestID("a" + strings.Repeat("é", 50))
	assert.True(t, utf8.ValidString(long))
	assert.Len(t, long, 79)

	even := sanitizeRequestID(strings.Repeat("é", 50))
	assert.True(t, utf8.ValidString(even))
	assert.Len(t, even, maxRequestIDLen)
}
