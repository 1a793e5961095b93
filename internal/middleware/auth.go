package middleware

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"dreamlog-backend/internal/apperr"
	"dreamlog-backend/internal/config"
	"dreamlog-backend/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const UserIDKey = "user_id"

var errNoToken = errors.New("missing authorization header")

// AuthMiddleware rejects requests without a valid Supabase JWT and stores the
// token subject under UserIDKey.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		sub, msg, err := authenticate(c.GetHeader("Authorization"), cfg.SupabaseJWTSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
				Error:   err.Error(),
				Reason:  apperr.Unauthorized,
				Message: msg,
			})
			return
		}
		c.Set(UserIDKey, sub)
		c.Next()
	}
}

// OptionalAuth records the user when a valid token is present and lets
// anonymous requests through. A token that is present but invalid is still
// rejected.
func OptionalAuth(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.Next()
			return
		}
		AuthMiddleware(cfg)(c)
	}
}

// UserID returns the authenticated user, if any.
func UserID(c *gin.Context) (string, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

func authenticate(header, secret string) (string, string, error) {
	if header == "" {
		return "", "", errNoToken
	}

	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", "", errors.New("invalid authorization header format")
	}

	tokenString := strings.TrimSpace(parts[1])
	if tokenString == "" {
		return "", "", errors.New("empty token")
	}

	// Tokens pasted from browsers are sometimes URL-encoded.
	if decoded, err := url.QueryUnescape(tokenString); err == nil && decoded != tokenString {
		tokenString = decoded
	}

	if len(strings.Split(tokenString, ".")) != 3 {
		return "", "JWT token must have 3 parts separated by dots", errors.New("invalid token format")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		if secret == "" {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		var msg string
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrSignatureInvalid):
			msg = "token signature is invalid - check JWT secret"
		case errors.Is(err, jwt.ErrTokenExpired):
			msg = "token has expired"
		case errors.Is(err, jwt.ErrTokenMalformed):
			msg = "token is malformed - ensure you're using a valid Supabase JWT token"
		default:
			msg = err.Error()
		}
		return "", msg, errors.New("invalid token")
	}

	if !token.Valid {
		return "", "", errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", errors.New("invalid token claims")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", "", errors.New("missing user id in token")
	}
	return sub, "", nil
}
