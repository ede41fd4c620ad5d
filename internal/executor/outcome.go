package executor

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/y0f/apiprobe/internal/synth"
)

// Outcome is the raw result of dispatching one test case.
type Outcome struct {
	Case *synth.TestCase

	Method string
	URL    string

	// StatusCode is 0 when no response was received.
	StatusCode int
	Header     http.Header
	Body       []byte
	Truncated  bool

	Elapsed  time.Duration
	Attempts int
	Err      *TransportError

	Skipped    bool
	SkipReason string
}

// ErrorKind classifies transport failures.
type ErrorKind string

const (
	KindTimeout           ErrorKind = "timeout"
	KindConnectionRefused ErrorKind = "connection_refused"
	KindDNS               ErrorKind = "dns"
	KindTLS               ErrorKind = "tls"
	KindOther             ErrorKind = "other"
)

// TransportError is a failure to obtain any response.
type TransportError struct {
	Kind ErrorKind
	Err  error
}

func (e *TransportError) Error() string { return string(e.Kind) + ": " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

func classify(err error) *TransportError {
	return &TransportError{Kind: kindOf(err), Err: err}
}

func kindOf(err error) ErrorKind {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return KindTimeout
		}
		return KindDNS
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return KindConnectionRefused
	}

	var (
		certErr      *tls.CertificateVerificationError
		recordErr    tls.RecordHeaderError
		authorityErr x509.UnknownAuthorityError
		hostErr      x509.HostnameError
		invalidErr   x509.CertificateInvalidError
	)
	switch {
	case errors.As(err, &certErr),
		errors.As(err, &recordErr),
		errors.As(err, &authorityErr),
		errors.As(err, &hostErr),
		errors.As(err, &invalidErr):
		return KindTLS
	}
	if strings.Contains(err.Error(), "tls: ") {
		return KindTLS
	}
	return KindOther
}
