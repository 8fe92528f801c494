// Package model defines shared types for the proxy.
package model

import (
	"context"
	"io"
	"net/http"
)

// ProxyRequest represents a client request to be forwarded upstream.
type ProxyRequest struct {
	Ctx           context.Context
	Method        string
	Path          string
	RawPath       string // escaped form of Path, empty when the default encoding applies
	RawQuery      string
	Header        http.Header
	Body          io.ReadCloser
	ContentLength int64
}

// URI returns the request path and query as the client sent them.
func (r *ProxyRequest) URI() string {
	p := r.RawPath
	if p == "" {
		p = r.Path
	}
	if r.RawQuery != "" {
		return p + "?" + r.RawQuery
	}
	return p
}

// ProxyResponse represents the upstream response to be streamed back.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}
