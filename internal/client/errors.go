package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"os"
	"syscall"

	"github.com/sony/gobreaker"
)

// Failure causes reported in logs and the upstream_errors_total metric.
const (
	CauseTimeout     = "timeout"
	CauseDNS         = "dns"
	CauseConnection  = "connection"
	CauseTLS         = "tls"
	CauseBreakerOpen = "breaker_open"
	CauseCanceled    = "canceled"
	CauseUnknown     = "unknown"
)

// Cause classifies an upstream transport error.
func Cause(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return CauseBreakerOpen
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return CauseTimeout
	}
	if errors.Is(err, context.Canceled) {
		return CauseCanceled
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return CauseTimeout
		}
		return CauseDNS
	}

	var (
		certErr     *tls.CertificateVerificationError
		unknownAuth x509.UnknownAuthorityError
		hostnameErr x509.HostnameError
		recordErr   tls.RecordHeaderError
	)
	if errors.As(err, &certErr) || errors.As(err, &unknownAuth) ||
		errors.As(err, &hostnameErr) || errors.As(err, &recordErr) {
		return CauseTLS
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CauseTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return CauseConnection
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return CauseConnection
	}

	return CauseUnknown
}
