package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dreamlog-backend/internal/config"
	"dreamlog-backend/internal/middleware"
	"dreamlog-backend/internal/ratelimit"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
)

const testSecret = "test-secret-key-for-jwt-signing-must-be-long-enough"

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func newAuthRouter(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(mw)
	router.GET("/test", func(c *gin.Context) {
		userID, _ := middleware.UserID(c)
		c.JSON(http.StatusOK, gin.H{"user": userID})
	})
	return router
}

func serve(router *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("GET", "/test", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware_NoToken(t *testing.T) {
	router := newAuthRouter(middleware.AuthMiddleware(&config.Config{SupabaseJWTSecret: testSecret}))

	w := serve(router, "")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"reason":"unauthorized"`)
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	router := newAuthRouter(middleware.AuthMiddleware(&config.Config{SupabaseJWTSecret: testSecret}))

	assert.Equal(t, http.StatusUnauthorized, serve(router, "Bearer invalid-token").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(router, "Token abc.def.ghi").Code)
}

func TestAuthMiddleware_WrongSecret(t *testing.T) {
	router := newAuthRouter(middleware.AuthMiddleware(&config.Config{SupabaseJWTSecret: "another-secret"}))

	w := serve(router, "Bearer "+signedToken(t, jwt.MapClaims{"sub": "user-123"}))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "signature")
}

func TestAuthMiddleware_ExpiredToken(t *testing.T) {
	router := newAuthRouter(middleware.AuthMiddleware(&config.Config{SupabaseJWTSecret: testSecret}))

	w := serve(router, "Bearer "+signedToken(t, jwt.MapClaims{
		"sub": "user-123",
		"exp": time.Now().Add(-time.Hour).Unix(),
	}))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "expired")
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	router := newAuthRouter(middleware.AuthMiddleware(&config.Config{SupabaseJWTSecret: testSecret}))

	w := serve(router, "Bearer "+signedToken(t, jwt.MapClaims{"sub": "user-123"}))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"user-123"}`, w.Body.String())
}

func TestOptionalAuth(t *testing.T) {
	router := newAuthRouter(middleware.OptionalAuth(&config.Config{SupabaseJWTSecret: testSecret}))

	anonymous := serve(router, "")
	assert.Equal(t, http.StatusOK, anonymous.Code)
	assert.JSONEq(t, `{"user":""}`, anonymous.Body.String())

	member := serve(router, "Bearer "+signedToken(t, jwt.MapClaims{"sub": "user-9"}))
	assert.JSONEq(t, `{"user":"user-9"}`, member.Body.String())

	assert.Equal(t, http.StatusUnauthorized, serve(router, "Bearer nope").Code)
}

func TestRateLimit_RejectsWithRetryAfter(t *testing.T) {
	tracker := ratelimit.NewTracker(map[ratelimit.Capability]ratelimit.Budget{
		ratelimit.General: {Limit: 2, Window: time.Minute},
	}, ratelimit.NewMemoryCounter(), nil)
	router := newAuthRouter(middleware.RateLimit(tracker, ratelimit.General))

	first := serve(router, "")
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, http.StatusOK, serve(router, "").Code)

	rejected := serve(router, "")
	assert.Equal(t, http.StatusTooManyRequests, rejected.Code)
	assert.Contains(t, rejected.Body.String(), `"reason":"budget_exceeded"`)
	assert.NotEmpty(t, rejected.Header().Get("Retry-After"))
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, "1", middleware.RetryAfterSeconds(0))
	assert.Equal(t, "1", middleware.RetryAfterSeconds(0.2))
	assert.Equal(t, "43", middleware.RetryAfterSeconds(42.1))
}
