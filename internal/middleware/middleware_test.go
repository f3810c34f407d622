package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func signed(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func TestResolveVerified(t *testing.T) {
	r := NewIdentityResolver("s3cret")

	cred, err := r.Resolve(signed(t, "s3cret", jwt.MapClaims{"sub": "42"}))
	require.NoError(t, err)
	assert.Equal(t, "42", cred.Owner)
	assert.True(t, cred.Verified)

	_, err = r.Resolve(signed(t, "other", jwt.MapClaims{"sub": "42"}))
	assert.ErrorIs(t, err, errTokenInvalid)

	_, err = r.Resolve("not-a-jwt")
	assert.ErrorIs(t, err, errTokenInvalid)
}

func TestResolveUnverified(t *testing.T) {
	r := NewIdentityResolver("")

	cred, err := r.Resolve(signed(t, "whatever", jwt.MapClaims{"user_id": float64(17)}))
	require.NoError(t, err)
	assert.Equal(t, "17", cred.Owner)
	assert.False(t, cred.Verified)

	cred, err = r.Resolve("opaque-session-token")
	require.NoError(t, err)
	assert.Equal(t, Fingerprint("opaque-session-token"), cred.Owner)
	assert.True(t, strings.HasPrefix(cred.Owner, fingerprintPrefix))
	assert.NotContains(t, cred.Owner, "opaque")

	_, err = r.Resolve("")
	assert.ErrorIs(t, err, errTokenMissing)
}

func TestFingerprintStable(t *testing.T) {
	assert.Equal(t, Fingerprint("a"), Fingerprint("a"))
	assert.NotEqual(t, Fingerprint("a"), Fingerprint("b"))
}

func credentialEngine(resolver *IdentityResolver) *gin.Engine {
	r := gin.New()
	r.GET("/me", RequireCredential(resolver), func(c *gin.Context) {
		cred := GetCredential(c)
		c.String(http.StatusOK, cred.Owner+"|"+cred.Token)
	})
	return r
}

func TestRequireCredential(t *testing.T) {
	r := credentialEngine(NewIdentityResolver(""))
	tok := signed(t, "x", jwt.MapClaims{"sub": "alice"})

	tests := []struct {
		name   string
		header string
		query  string
		status int
		body   string
	}{
		{name: "header", header: "Bearer " + tok, status: http.StatusOK, body: "alice|" + tok},
		{name: "lowercase scheme", header: "bearer " + tok, status: http.StatusOK, body: "alice|" + tok},
		{name: "query", query: "?token=" + tok, status: http.StatusOK, body: "alice|" + tok},
		{name: "missing", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", status: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestRequireCredentialRejectsBadSignature(t *testing.T) {
	r := credentialEngine(NewIdentityResolver("s3cret"))
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+signed(t, "forged", jwt.MapClaims{"sub": "1"}))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "TOKEN_INVALID")
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(3, time.Minute)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.True(t, rl.allow("10.0.0.1"), "request %d", i)
	}
	assert.False(t, rl.allow("10.0.0.1"))
	assert.True(t, rl.allow("10.0.0.2"), "limits are per IP")

	now = now.Add(20 * time.Second)
	assert.True(t, rl.allow("10.0.0.1"), "one token refills every 20s")

	now = now.Add(visitorTTL + time.Second)
	rl.cleanup()
	assert.Empty(t, rl.visitors)
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	r := gin.New()
	r.Use(rl.Middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")
}

func brotliEngine(body string) *gin.Engine {
	r := gin.New()
	r.Use(Brotli())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, body) })
	return r
}

func TestBrotliCompressesLargeBodies(t *testing.T) {
	body := strings.Repeat("exam session ", 200)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip, br;q=1.0")
	w := httptest.NewRecorder()
	brotliEngine(body).ServeHTTP(w, req)

	assert.Equal(t, "br", w.Header().Get("Content-Encoding"))
	plain, err := io.ReadAll(brotli.NewReader(bytes.NewReader(w.Body.Bytes())))
	require.NoError(t, err)
	assert.Equal(t, body, string(plain))
}

func TestBrotliLeavesSmallBodies(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "br")
	w := httptest.NewRecorder()
	brotliEngine("ok").ServeHTTP(w, req)

	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, "ok", w.Body.String())
}

func TestBrotliSkipsEventStreams(t *testing.T) {
	body := strings.Repeat("x", 4096)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "br")
	req.Header.Set("Accept", "text/event-stream")
	w := httptest.NewRecorder()
	brotliEngine(body).ServeHTTP(w, req)

	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, body, w.Body.String())
}

func TestNoStore(t *testing.T) {
	r := gin.New()
	r.GET("/", NoStore(), func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}
