// Package cors holds the cross-origin header policy shared by the CORS
// middleware and the forwarding engine's response rewrite.
package cors

import (
	"net/http"
	"strconv"
	"strings"

	"overstat-proxy-go/internal/config"
)

// Response header names.
const (
	HeaderAllowOrigin   = "Access-Control-Allow-Origin"
	HeaderAllowMethods  = "Access-Control-Allow-Methods"
	HeaderAllowHeaders  = "Access-Control-Allow-Headers"
	HeaderExposeHeaders = "Access-Control-Expose-Headers"
	HeaderMaxAge        = "Access-Control-Max-Age"
)

// Policy is a wildcard-origin CORS policy. Credentials are never allowed:
// browsers reject "*" together with Access-Control-Allow-Credentials.
type Policy struct {
	methods string
	headers string
	exposed string
	maxAge  string
}

// NewPolicy builds a Policy from the [cors] config section.
func NewPolicy(cfg *config.Config) *Policy {
	p := &Policy{
		methods: strings.Join(cfg.CORS.AllowedMethods, ", "),
		headers: strings.Join(cfg.CORS.AllowedHeaders, ", "),
		exposed: strings.Join(cfg.CORS.ExposedHeaders, ", "),
	}
	if cfg.CORS.MaxAgeSeconds > 0 {
		p.maxAge = strconv.Itoa(cfg.CORS.MaxAgeSeconds)
	}
	return p
}

// Apply sets the headers every response carries, replacing any existing
// Access-Control-* values.
func (p *Policy) Apply(h http.Header) {
	h.Del("Access-Control-Allow-Credentials")
	h.Set(HeaderAllowOrigin, "*")
	if p.methods != "" {
		h.Set(HeaderAllowMethods, p.methods)
	}
	if p.headers != "" {
		h.Set(HeaderAllowHeaders, p.headers)
	}
	if p.exposed != "" {
		h.Set(HeaderExposeHeaders, p.exposed)
	}
}

// ApplyPreflight sets the response headers for an OPTIONS request.
func (p *Policy) ApplyPreflight(h http.Header) {
	p.Apply(h)
	if p.maxAge != "" {
		h.Set(HeaderMaxAge, p.maxAge)
	}
}

// Describe returns a one-line summary for the status page.
func (p *Policy) Describe() string {
	return "Enabled for all origins (" + p.methods + ")"
}
