package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-service/internal/auth"
	"storefront-service/pkg/ctxmanage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testKeys(t *testing.T) *auth.Keys {
	t.Helper()
	k, err := auth.NewKeys("test-secret", "storefront", "storefront-clients", time.Hour)
	require.NoError(t, err)
	return k
}

func TestNewMidRequiresKeys(t *testing.T) {
	_, err := NewMid(nil)
	assert.Error(t, err)
}

func TestLoggerAttachesTraceID(t *testing.T) {
	r := gin.New()
	r.Use(Logger())
	var seen string
	r.GET("/x", func(c *gin.Context) {
		seen = ctxmanage.GetTraceIdOfRequest(c)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.NotEqual(t, "Unknown", seen)
	assert.Equal(t, seen, w.Header().Get(TraceHeader))
}

func TestAuthentication(t *testing.T) {
	keys := testKeys(t)
	m, err := NewMid(keys)
	require.NoError(t, err)

	token, _, err := keys.GenerateToken(42, "a@example.com", auth.RoleCustomer)
	require.NoError(t, err)
	other, err := auth.NewKeys("other-secret", "storefront", "storefront-clients", time.Hour)
	require.NoError(t, err)
	forged, _, err := other.GenerateToken(42, "a@example.com", auth.RoleAdmin)
	require.NoError(t, err)

	r := gin.New()
	r.Use(Logger(), m.Authentication())
	r.GET("/me", func(c *gin.Context) {
		claims := c.Request.Context().Value(auth.ClaimsKey).(auth.Claims)
		id, _ := claims.UserID()
		c.JSON(http.StatusOK, gin.H{"id": id})
	})

	tt := []struct {
		name   string
		header string
		want   int
	}{
		{name: "valid", header: "Bearer " + token, want: http.StatusOK},
		{name: "lowercase scheme", header: "bearer " + token, want: http.StatusOK},
		{name: "missing", header: "", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic " + token, want: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer abc.def.ghi", want: http.StatusUnauthorized},
		{name: "foreign signature", header: "Bearer " + forged, want: http.StatusUnauthorized},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
			if tc.want == http.StatusOK {
				assert.JSONEq(t, `{"id":42}`, w.Body.String())
			}
		})
	}
}

func TestAuthorize(t *testing.T) {
	keys := testKeys(t)
	m, err := NewMid(keys)
	require.NoError(t, err)

	r := gin.New()
	r.Use(m.Authentication())
	r.GET("/admin", m.Authorize(func(c *gin.Context) { c.Status(http.StatusNoContent) }, auth.RoleAdmin))

	for role, want := range map[string]int{auth.RoleAdmin: http.StatusNoContent, auth.RoleCustomer: http.StatusForbidden} {
		token, _, err := keys.GenerateToken(1, "x@example.com", role)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code, role)
	}
}

func TestAuthorizeWithoutAuthentication(t *testing.T) {
	m, err := NewMid(testKeys(t))
	require.NoError(t, err)

	r := gin.New()
	r.GET("/admin", m.Authorize(func(c *gin.Context) { c.Status(http.StatusNoContent) }, auth.RoleAdmin))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func limitedRouter(l Limiter, perMinute int) *gin.Engine {
	r := gin.New()
	r.POST("/login", RateLimiter(l, perMinute), func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func hit(r http.Handler, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = ip + ":1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMemoryRateLimiter(t *testing.T) {
	r := limitedRouter(NewMemoryLimiter(2), 2)

	assert.Equal(t, http.StatusOK, hit(r, "10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, hit(r, "10.0.0.1").Code)
	w := hit(r, "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, hit(r, "10.0.0.2").Code)
}

func TestRedisRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisLimiter(client, 3)
	fixed := time.Date(2025, 1, 1, 12, 0, 30, 0, time.UTC)
	l.now = func() time.Time { return fixed }
	r := limitedRouter(l, 3)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, hit(r, "10.0.0.1").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, hit(r, "10.0.0.1").Code)

	fixed = fixed.Add(time.Minute)
	assert.Equal(t, http.StatusOK, hit(r, "10.0.0.1").Code)

	keys := mr.Keys()
	require.NotEmpty(t, keys)
	assert.Greater(t, mr.TTL(keys[0]), time.Duration(0))
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func TestRateLimiterFailsOpen(t *testing.T) {
	r := limitedRouter(failingLimiter{}, 1)
	assert.Equal(t, http.StatusOK, hit(r, "10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, hit(r, "10.0.0.1").Code)
}
