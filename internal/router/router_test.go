package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-practice/internal/cache/cachetest"
	"github.com/stemsi/exstem-practice/internal/config"
	"github.com/stemsi/exstem-practice/internal/handler"
	"github.com/stemsi/exstem-practice/internal/metrics"
	"github.com/stemsi/exstem-practice/internal/middleware"
	"github.com/stemsi/exstem-practice/internal/model"
	"github.com/stemsi/exstem-practice/internal/repository"
	"github.com/stemsi/exstem-practice/internal/scheduler"
	"github.com/stemsi/exstem-practice/internal/service"
	"github.com/stemsi/exstem-practice/internal/session/sessiontest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noOutcomes struct{}

func (noOutcomes) GetByAttemptID(_ context.Context, _ string) (*model.SessionOutcome, error) {
	return nil, repository.ErrOutcomeNotFound
}

func newTestRouter(t *testing.T, ratePerMinute int) *gin.Engine {
	t.Helper()
	m := metrics.New()
	svc := service.NewSessionService(
		sessiontest.NewFakeService(1, sessiontest.Single("q1", 4)),
		cachetest.NewLock(), cachetest.NewBus(), &cachetest.Queue{}, m,
		service.SessionServiceConfig{IdleTTL: time.Minute, LockGrace: time.Minute},
		zerolog.Nop(),
		service.WithSchedulerFactory(func() scheduler.Scheduler { return scheduler.NewManual(time.Unix(0, 0)) }),
	)
	t.Cleanup(svc.Shutdown)

	cfg := &config.Config{GinMode: gin.TestMode, RateLimitPerMinute: ratePerMinute}
	return SetupRouter(Deps{
		Identity: middleware.NewIdentityResolver(""),
		Metrics:  m,
		Limiter:  middleware.NewRateLimiter(ratePerMinute, time.Minute),
	}, &Handlers{
		Session: handler.NewSessionHandler(svc, zerolog.Nop()),
		Events:  handler.NewEventsHandler(svc, zerolog.Nop()),
		WS:      handler.NewWSHandler(svc, zerolog.Nop(), nil),
		Support: handler.NewSupportHandler(noOutcomes{}, zerolog.Nop()),
	}, cfg)
}

func serve(r *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthAndMetrics(t *testing.T) {
	r := newTestRouter(t, 100)

	w := serve(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = serve(r, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}

func TestSessionRoutesRequireCredential(t *testing.T) {
	r := newTestRouter(t, 100)

	w := serve(r, http.MethodPost, "/api/v1/exams/go-basics/sessions", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "TOKEN_REQUIRED")

	w = serve(r, http.MethodPost, "/api/v1/exams/go-basics/sessions", "tok")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	w = serve(r, http.MethodGet, "/api/v1/support/outcomes/1001", "tok")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRateLimit(t *testing.T) {
	r := newTestRouter(t, 2)

	serve(r, http.MethodGet, "/api/v1/sessions/x", "tok")
	serve(r, http.MethodGet, "/api/v1/sessions/x", "tok")
	w := serve(r, http.MethodGet, "/api/v1/sessions/x", "tok")

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")
}

func TestSkipCompression(t *testing.T) {
	for path, skip := range map[string]bool{
		"/api/v1/sessions/abc/events":        true,
		"/api/v1/sessions/abc/result/export": true,
		"/metrics":                           true,
		"/api/v1/sessions/abc":               false,
	} {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, path, nil)
		assert.Equal(t, skip, skipCompression(c), strings.TrimPrefix(path, "/"))
	}
}
