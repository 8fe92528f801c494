// Package service implements the core proxy forwarding logic and the
// synthetic upstream health probe.
package service

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"overstat-proxy-go/internal/client"
	"overstat-proxy-go/internal/config"
	"overstat-proxy-go/internal/cors"
	"overstat-proxy-go/internal/model"
)

// allowedUpstreamHosts restricts which hosts the proxy will forward to.
var allowedUpstreamHosts = map[string]bool{
	"overstat.gg": true,
}

// hopByHopHeaders are connection-scoped and never forwarded in either direction.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// strippedRequestHeaders are removed before forwarding. Origin and Referer
// trip the upstream's bot heuristics; Accept-Encoding is left to the
// transport so it can negotiate and decode gzip itself.
var strippedRequestHeaders = []string{
	"Origin",
	"Referer",
	"Accept-Encoding",
	"Host",
}

// ProxyService handles the forwarding logic for proxy requests.
type ProxyService struct {
	client       *client.UpstreamClient
	cors         *cors.Policy
	logger       *slog.Logger
	baseURL      *url.URL
	userAgent    string
	cacheControl string
}

// NewProxyService creates a ProxyService.
func NewProxyService(c *client.UpstreamClient, policy *cors.Policy, cfg *config.Config, logger *slog.Logger) (*ProxyService, error) {
	s, err := NewProxyServiceForTest(c, policy, cfg, logger)
	if err != nil {
		return nil, err
	}

	if !allowedUpstreamHosts[s.baseURL.Hostname()] {
		return nil, fmt.Errorf("upstream host %q is not in the allowlist", s.baseURL.Hostname())
	}
	return s, nil
}

// NewProxyServiceForTest creates a ProxyService without host allowlist validation.
// This is intended only for tests that use httptest servers on localhost.
func NewProxyServiceForTest(c *client.UpstreamClient, policy *cors.Policy, cfg *config.Config, logger *slog.Logger) (*ProxyService, error) {
	u, err := url.Parse(cfg.Upstream.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream base_url: %w", err)
	}

	return &ProxyService{
		client:       c,
		cors:         policy,
		logger:       logger.With("component", "proxy_service"),
		baseURL:      u,
		userAgent:    cfg.Upstream.UserAgent,
		cacheControl: "public, max-age=" + strconv.Itoa(cfg.Upstream.CacheMaxAgeSeconds),
	}, nil
}

// Target returns the upstream origin.
func (s *ProxyService) Target() string {
	return s.baseURL.Scheme + "://" + s.baseURL.Host
}

// BreakerState reports the upstream circuit breaker state, empty when disabled.
func (s *ProxyService) BreakerState() string {
	return s.client.BreakerState()
}

// Forward sends a ProxyRequest to the upstream API and returns the response.
// The caller is responsible for closing the response body.
// Failures are returned as-is; the proxy never retries.
func (s *ProxyService) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	req, err := s.rewriteRequest(pr)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("forwarding request",
		"method", pr.Method,
		"url", req.URL.String(),
	)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("forward to upstream: %w", err)
	}

	s.rewriteResponse(pr.Method, resp)
	return resp, nil
}

// rewriteRequest builds the outbound request: same method, path and raw
// query under the upstream origin, with identifying headers replaced.
func (s *ProxyService) rewriteRequest(pr *model.ProxyRequest) (*http.Request, error) {
	// An empty inbound body may still be wrapped by middleware; send none
	// rather than an empty chunked body.
	body := pr.Body
	if body == nil || pr.ContentLength == 0 {
		body = http.NoBody
	}

	req, err := http.NewRequestWithContext(pr.Ctx, pr.Method, s.buildUpstreamURL(pr), body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header = s.filterRequestHeaders(pr.Header)
	req.Host = s.baseURL.Host
	if body != http.NoBody {
		req.ContentLength = pr.ContentLength
	}
	return req, nil
}

func (s *ProxyService) buildUpstreamURL(pr *model.ProxyRequest) string {
	u := *s.baseURL
	u.Path = pr.Path
	u.RawPath = pr.RawPath
	u.RawQuery = pr.RawQuery
	return u.String()
}

func (s *ProxyService) filterRequestHeaders(src http.Header) http.Header {
	dst := src.Clone()
	if dst == nil {
		dst = make(http.Header)
	}
	removeConnectionHeaders(dst)
	for _, key := range strippedRequestHeaders {
		dst.Del(key)
	}
	dst.Set("User-Agent", s.userAgent)
	dst.Set("Accept", "*/*")
	return dst
}

// rewriteResponse drops connection-scoped and upstream CORS headers, then
// applies the proxy's own CORS policy and browser cache directive.
func (s *ProxyService) rewriteResponse(method string, resp *model.ProxyResponse) {
	h := resp.Header
	if h == nil {
		h = make(http.Header)
		resp.Header = h
	}
	removeConnectionHeaders(h)
	for key := range h {
		if strings.HasPrefix(key, "Access-Control-") {
			delete(h, key)
		}
	}
	s.cors.Apply(h)

	if method == http.MethodGet && resp.StatusCode == http.StatusOK {
		h.Set("Cache-Control", s.cacheControl)
	}
}

// removeConnectionHeaders deletes hop-by-hop headers, including any named
// in the Connection header.
func removeConnectionHeaders(h http.Header) {
	for _, v := range h.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, key := range hopByHopHeaders {
		h.Del(key)
	}
}
