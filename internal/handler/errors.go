package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"overstat-proxy-go/internal/model"
)

// Endpoints lists the public routes reported in 404 responses.
type Endpoints []string

// DefaultEndpoints describes the routes RegisterRoutes installs.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		"/ - Status page",
		"/health - Health check",
		"/api/* - Proxy to overstat.gg/api/*",
	}
}

// ErrorHandler returns Echo's central error handler. Unmatched routes get
// the 404 envelope, other client errors keep their status, and everything
// else becomes a generic 500 whose detail is only logged.
func ErrorHandler(logger *slog.Logger, endpoints Endpoints) echo.HTTPErrorHandler {
	logger = logger.With("component", "error_handler")

	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
		}

		now := model.Timestamp(time.Now())
		var body any
		switch {
		case code == http.StatusNotFound || code == http.StatusMethodNotAllowed:
			code = http.StatusNotFound
			body = model.NotFoundBody{
				Error:              "Not Found",
				Message:            "Endpoint not found",
				AvailableEndpoints: endpoints,
				Timestamp:          now,
			}
		case code < http.StatusInternalServerError:
			body = model.ErrorBody{
				Error:     http.StatusText(code),
				Message:   httpErrorMessage(he),
				Timestamp: now,
			}
		default:
			code = http.StatusInternalServerError
			logger.Error("unhandled error",
				"err", err,
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
			)
			body = model.ErrorBody{
				Error:     "Internal Server Error",
				Message:   "Something went wrong on the server",
				Timestamp: now,
			}
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, body)
		}
		if err != nil {
			logger.Error("write error response", "err", err)
		}
	}
}

func httpErrorMessage(he *echo.HTTPError) string {
	if msg, ok := he.Message.(string); ok {
		return msg
	}
	return http.StatusText(he.Code)
}
