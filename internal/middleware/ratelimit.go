package middleware

import (
	"math"
	"net/http"
	"strconv"

	"dreamlog-backend/internal/apperr"
	"dreamlog-backend/internal/models"
	"dreamlog-backend/internal/ratelimit"
	"github.com/gin-gonic/gin"
)

// RateLimit admits each request against the capability budget of the
// client address.
func RateLimit(tracker *ratelimit.Tracker, capability ratelimit.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		d := tracker.Admit(c.Request.Context(), capability, c.ClientIP())
		if d.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		}
		if d.Allowed {
			c.Next()
			return
		}

		c.Header("Retry-After", RetryAfterSeconds(d.RetryAfter.Seconds()))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse{
			Error:   "Too many requests from this IP, please try again later.",
			Reason:  apperr.BudgetExceeded,
			Message: string(capability) + " budget exhausted",
		})
	}
}

// RetryAfterSeconds renders a Retry-After value, rounded up and at least 1.
func RetryAfterSeconds(secs float64) string {
	n := int(math.Ceil(secs))
	if n < 1 {
		n = 1
	}
	return strconv.Itoa(n)
}
