package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"overstat-proxy-go/internal/metrics"
	"overstat-proxy-go/internal/model"
	"overstat-proxy-go/internal/ratelimit"
)

// Rate limit response headers (draft-ietf-httpapi-ratelimit-headers).
const (
	HeaderRateLimitPolicy    = "RateLimit-Policy"
	HeaderRateLimitLimit     = "RateLimit-Limit"
	HeaderRateLimitRemaining = "RateLimit-Remaining"
	HeaderRateLimitReset     = "RateLimit-Reset"
)

// RateLimit returns an Echo middleware that admits at most policy.Limit
// requests per client IP in each fixed window. If the store fails the
// request is let through and the failure logged. The metrics parameter is
// optional.
func RateLimit(store ratelimit.Store, policy ratelimit.Policy, logger *slog.Logger, m *metrics.Metrics) echo.MiddlewareFunc {
	windowSeconds := int(policy.Window / time.Second)
	policyHeader := strconv.Itoa(policy.Limit) + ";w=" + strconv.Itoa(windowSeconds)
	body := model.RateLimitBody{
		Error:      "Too many requests",
		Message:    "Rate limit exceeded. Please try again later.",
		RetryAfter: humanizeWindow(policy.Window),
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			res, err := store.Take(c.Request().Context(), ip)
			if err != nil {
				logger.Warn("rate limit store unavailable, admitting request",
					"remote_ip", ip,
					"err", err,
				)
				return next(c)
			}

			now := time.Now()
			reset := int(math.Ceil(res.RetryAfter(now).Seconds()))

			h := c.Response().Header()
			h.Set(HeaderRateLimitPolicy, policyHeader)
			h.Set(HeaderRateLimitLimit, strconv.Itoa(res.Limit))
			h.Set(HeaderRateLimitRemaining, strconv.Itoa(res.Remaining))
			h.Set(HeaderRateLimitReset, strconv.Itoa(reset))

			if res.Allowed {
				return next(c)
			}

			if m != nil {
				m.RateLimited.Inc()
			}
			logger.Debug("rate limit exceeded", "remote_ip", ip, "reset_seconds", reset)

			h.Set("Retry-After", strconv.Itoa(reset))
			out := body
			out.Timestamp = model.Timestamp(now)
			return c.JSON(http.StatusTooManyRequests, out)
		}
	}
}

// humanizeWindow renders a window length the way the 429 body reports it,
// e.g. "15 minutes".
func humanizeWindow(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	default:
		return plural(int(math.Ceil(d.Seconds())), "second")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}
