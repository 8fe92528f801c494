// Package middleware provides the Echo middleware chain: request logging,
// metrics, security headers, CORS and per-IP rate limiting.
package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestLogger returns an Echo middleware that logs each request with slog.
// It sits outside Recover so recovered panics are logged with their 500; an
// aborted stream is logged before the abort continues up to net/http.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			defer func() {
				if r := recover(); r != nil {
					if r == http.ErrAbortHandler {
						logRequest(logger, c, c.Response().Status, start, "aborted", true)
					}
					panic(r)
				}
			}()

			err := next(c)
			logRequest(logger, c, resolveStatus(c, err), start)

			return err
		}
	}
}

func logRequest(logger *slog.Logger, c echo.Context, status int, start time.Time, extra ...any) {
	req := c.Request()
	res := c.Response()

	args := []any{
		"method", req.Method,
		"path", req.URL.Path,
		"status", status,
		"duration_ms", time.Since(start).Milliseconds(),
		"request_id", res.Header().Get(echo.HeaderXRequestID),
		"remote_ip", c.RealIP(),
		"user_agent", req.UserAgent(),
		"bytes_out", res.Size,
	}
	logger.Info("request", append(args, extra...)...)
}

// resolveStatus returns the status the client will see. When a handler
// returns an error the response has not been written yet; the central error
// handler writes it after the middleware chain unwinds.
func resolveStatus(c echo.Context, err error) int {
	if err == nil || c.Response().Committed {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}
