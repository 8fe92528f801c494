package handler

import (
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"overstat-proxy-go/internal/client"
	"overstat-proxy-go/internal/model"
	"overstat-proxy-go/internal/service"
)

// ProxyHandler forwards /api traffic to the upstream Overstat API.
type ProxyHandler struct {
	service *service.ProxyService
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ProxyService, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle proxies the request to the upstream and streams the response back.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()
	if !withinAPI(req.URL.Path) {
		return echo.ErrNotFound
	}

	pr := &model.ProxyRequest{
		Ctx:           req.Context(),
		Method:        req.Method,
		Path:          req.URL.Path,
		RawPath:       req.URL.RawPath,
		RawQuery:      req.URL.RawQuery,
		Header:        req.Header,
		Body:          req.Body,
		ContentLength: req.ContentLength,
	}

	h.logger.Debug("proxying request",
		"method", req.Method,
		"uri", pr.URI(),
		"remote_ip", c.RealIP(),
	)

	resp, err := h.service.Forward(pr)
	if err != nil {
		return h.proxyError(c, err)
	}
	defer func() { _ = resp.Body.Close() }()

	h.logger.Debug("upstream response", "status", resp.StatusCode, "uri", pr.URI())

	// Replace rather than append so upstream values win over anything the
	// middleware chain set, without duplicating the CORS headers.
	dst := c.Response().Header()
	for key, vals := range resp.Header {
		dst[key] = vals
	}

	c.Response().WriteHeader(resp.StatusCode)

	// The status is already sent, so a mid-stream failure aborts the
	// connection; the client must not see a truncated body as complete.
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		h.logger.Error("streaming response body",
			"err", err,
			"cause", client.Cause(err),
			"path", req.URL.Path,
		)
		panic(http.ErrAbortHandler)
	}

	return nil
}

// withinAPI reports whether p stays under /api once dot segments are resolved.
func withinAPI(p string) bool {
	p = path.Clean(p)
	return p == "/api" || strings.HasPrefix(p, "/api/")
}

// proxyError answers a transport failure with the 502 envelope. The
// proxy never retries; the caller decides whether to.
func (h *ProxyHandler) proxyError(c echo.Context, err error) error {
	req := c.Request()
	h.logger.Error("proxy error",
		"err", err,
		"cause", client.Cause(err),
		"method", req.Method,
		"path", req.URL.Path,
	)

	return c.JSON(http.StatusBadGateway, model.ProxyErrorBody{
		Error:     "Proxy Error",
		Message:   "Failed to fetch data from target API",
		Details:   err.Error(),
		Timestamp: model.Timestamp(time.Now()),
		URL:       req.URL.RequestURI(),
	})
}
