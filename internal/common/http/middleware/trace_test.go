package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"edujudge/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
)

func newTraceRouter(cfg TraceContextConfig, capture func(*gin.Context)) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TraceContextMiddlewareWithConfig(cfg))
	r.GET("/ping", func(c *gin.Context) {
		capture(c)
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestTraceContextPropagatesHeaders(t *testing.T) {
	var gotTrace string
	var gotUser int64
	var hasUser bool
	r := newTraceRouter(TraceContextConfig{AllowUserIDHeader: true}, func(c *gin.Context) {
		gotTrace, _ = c.Request.Context().Value(contextkey.TraceID).(string)
		gotUser, hasUser = contextkey.UserIDFrom(c.Request.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Trace-Id", "abc")
	req.Header.Set("X-User-Id", "7")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if gotTrace != "abc" {
		t.Fatalf("expected trace id abc, got %q", gotTrace)
	}
	if !hasUser || gotUser != 7 {
		t.Fatalf("expected user 7, got %d (%v)", gotUser, hasUser)
	}
	if w.Header().Get("X-Trace-Id") != "abc" {
		t.Fatalf("expected trace id echoed in response header")
	}
	if w.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected generated request id")
	}
}

func TestTraceContextIgnoresUserHeaderWhenDisabled(t *testing.T) {
	var hasUser bool
	r := newTraceRouter(TraceContextConfig{}, func(c *gin.Context) {
		_, hasUser = contextkey.UserIDFrom(c.Request.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-User-Id", "7")
	r.ServeHTTP(httptest.NewRecorder(), req)

	if hasUser {
		t.Fatalf("expected user header to be ignored")
	}
}

func TestTraceContextRejectsMalformedUserID(t *testing.T) {
	var hasUser bool
	r := newTraceRouter(TraceContextConfig{AllowUserIDHeader: true}, func(c *gin.Context) {
		_, hasUser = contextkey.UserIDFrom(c.Request.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-User-Id", "bob")
	r.ServeHTTP(httptest.NewRecorder(), req)

	if hasUser {
		t.Fatalf("expected malformed user id to be dropped")
	}
}
