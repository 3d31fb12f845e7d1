// Tests for the rate limiting middleware: per-project token buckets that
// track admin-edited limits live, and the plain per-IP limiter used ahead
// of authentication.
package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestContext(method, path string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, path, nil)
	return c, w
}

func TestProjectRateLimiter_AllowsUpToBurst(t *testing.T) {
	rl := NewProjectRateLimiter(func() (int, time.Duration) {
		return 3, time.Minute
	})

	mw := rl.Middleware()

	for i := 0; i < 3; i++ {
		c, w := newTestContext(http.MethodGet, "/reports")
		c.Set(ProjectIDKey, "proj_1")
		mw(c)
		if w.Code != http.StatusOK && w.Code != 0 {
			t.Fatalf("attempt %d: expected no abort, got status %d", i+1, w.Code)
		}
	}

	c, w := newTestContext(http.MethodGet, "/reports")
	c.Set(ProjectIDKey, "proj_1")
	mw(c)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after exhausting burst, got %d", w.Code)
	}
}

func TestProjectRateLimiter_IsolatesProjects(t *testing.T) {
	rl := NewProjectRateLimiter(func() (int, time.Duration) {
		return 1, time.Minute
	})
	mw := rl.Middleware()

	c1, w1 := newTestContext(http.MethodGet, "/reports")
	c1.Set(ProjectIDKey, "proj_a")
	mw(c1)
	if w1.Code != http.StatusOK && w1.Code != 0 {
		t.Fatalf("proj_a first request should pass, got %d", w1.Code)
	}

	c2, w2 := newTestContext(http.MethodGet, "/reports")
	c2.Set(ProjectIDKey, "proj_b")
	mw(c2)
	if w2.Code != http.StatusOK && w2.Code != 0 {
		t.Fatalf("proj_b should have its own bucket, got %d", w2.Code)
	}
}

func TestProjectRateLimiter_NoProjectIDSkips(t *testing.T) {
	rl := NewProjectRateLimiter(func() (int, time.Duration) {
		return 1, time.Minute
	})
	mw := rl.Middleware()

	c, w := newTestContext(http.MethodGet, "/health")
	mw(c)
	if w.Code != http.StatusOK && w.Code != 0 {
		t.Fatalf("requests without a resolved project should pass through, got %d", w.Code)
	}
}

func TestIPRateLimiter_AllowsUpToBurst(t *testing.T) {
	rl := NewIPRateLimiter(100, 2)
	mw := rl.Middleware()

	for i := 0; i < 2; i++ {
		c, w := newTestContext(http.MethodPost, "/login")
		c.Request.RemoteAddr = "203.0.113.5:1234"
		mw(c)
		if w.Code != http.StatusOK && w.Code != 0 {
			t.Fatalf("attempt %d should have passed, got %d", i+1, w.Code)
		}
	}

	c, w := newTestContext(http.MethodPost, "/login")
	c.Request.RemoteAddr = "203.0.113.5:1234"
	mw(c)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after exhausting burst, got %d", w.Code)
	}
}
