package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-papers/internal/config"
	"github.com/stemsi/exstem-papers/internal/model"
	"github.com/stemsi/exstem-papers/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newAuth() *service.AuthService {
	return service.NewAuthService(&config.Config{JWTSecret: "test-secret", JWTExpiry: time.Hour})
}

func serve(r *gin.Engine, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func ok(c *gin.Context) { c.Status(http.StatusNoContent) }

func TestRequireUserJWT(t *testing.T) {
	auth := newAuth()
	r := gin.New()
	r.GET("/x", RequireUserJWT(auth), func(c *gin.Context) {
		c.String(http.StatusOK, GetClaims(c).UserUID)
	})

	userToken, err := auth.IssueToken("u-1", service.TokenTypeUser, nil, 0)
	require.NoError(t, err)
	staffToken, err := auth.IssueToken("s-1", service.TokenTypeStaff, nil, 0)
	require.NoError(t, err)

	w := serve(r, userToken)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u-1", w.Body.String())

	assert.Equal(t, http.StatusForbidden, serve(r, staffToken).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "not-a-jwt").Code)
}

func TestRequirePermission(t *testing.T) {
	auth := newAuth()
	r := gin.New()
	r.GET("/x", RequireStaffJWT(auth), RequirePermission(model.PermissionPapersAdmin), ok)

	grader, err := auth.IssueToken("s-1", service.TokenTypeStaff, []string{string(model.PermissionPapersGrade)}, 0)
	require.NoError(t, err)
	admin, err := auth.IssueToken("s-2", service.TokenTypeStaff, []string{string(model.PermissionPapersAdmin)}, 0)
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, serve(r, grader).Code)
	assert.Equal(t, http.StatusNoContent, serve(r, admin).Code)
}

func TestRedisLimiterFixedWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	now := time.Date(2026, 1, 1, 10, 0, 5, 0, time.UTC)
	l := NewRedisLimiter(rdb, 2, time.Minute)
	l.now = func() time.Time { return now }

	ctx := context.Background()
	for i, want := range []bool{true, true, false} {
		got, err := l.Allow(ctx, "u-1")
		require.NoError(t, err)
		assert.Equal(t, want, got, "request %d", i)
	}

	// Another subject has its own budget.
	got, err := l.Allow(ctx, "u-2")
	require.NoError(t, err)
	assert.True(t, got)

	// The next window starts fresh.
	now = now.Add(time.Minute)
	got, err = l.Allow(ctx, "u-1")
	require.NoError(t, err)
	assert.True(t, got)
}

func TestRateLimitFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	mr.Close()

	r := gin.New()
	r.GET("/x", RateLimit(NewRedisLimiter(rdb, 1, time.Minute), zerolog.Nop()), ok)

	assert.Equal(t, http.StatusNoContent, serve(r, "").Code)
	assert.Equal(t, http.StatusNoContent, serve(r, "").Code)
}

func TestLocalLimiterRefills(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	l := NewLocalLimiter(1, time.Minute)
	l.now = func() time.Time { return now }

	r := gin.New()
	r.GET("/x", RateLimit(l, zerolog.Nop()), ok)

	assert.Equal(t, http.StatusNoContent, serve(r, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(r, "").Code)

	now = now.Add(time.Minute)
	assert.Equal(t, http.StatusNoContent, serve(r, "").Code)
}

func TestBrotliCompressesLargeBodies(t *testing.T) {
	r := gin.New()
	r.Use(BrotliWithConfig(BrotliConfig{MinLength: 16}))
	r.GET("/big", func(c *gin.Context) { c.String(http.StatusOK, "%0200d", 0) })
	r.GET("/small", func(c *gin.Context) { c.String(http.StatusOK, "tiny") })

	for path, encoded := range map[string]bool{"/big": true, "/small": false} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Accept-Encoding", "gzip, br;q=0.9")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if encoded {
			assert.Equal(t, "br", w.Header().Get("Content-Encoding"), path)
		} else {
			assert.Empty(t, w.Header().Get("Content-Encoding"), path)
			assert.Equal(t, "tiny", w.Body.String())
		}
	}
}
