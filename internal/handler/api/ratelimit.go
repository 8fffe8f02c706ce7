package api

import (
	"github.com/labstack/echo/v4"

	"QuantPulse/internal/service/ratelimit"
	xhttp "QuantPulse/pkg/http"
)

// RateLimit rejects requests once the client IP's bucket is empty.
func RateLimit(l *ratelimit.Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !l.Allow(c.RealIP()) {
				return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limit exceeded"))
			}
			return next(c)
		}
	}
}
