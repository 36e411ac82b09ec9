package webhook

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
)

// ErrorKind classifies why a delivery attempt did not produce a 2xx.
type ErrorKind string

const (
	ErrorKindNone       ErrorKind = ""
	ErrorKindTimeout    ErrorKind = "timeout"
	ErrorKindDNS        ErrorKind = "dns_error"
	ErrorKindTLS        ErrorKind = "ssl_error"
	ErrorKindConnection ErrorKind = "connection_error"
	ErrorKindHTTPStatus ErrorKind = "http_error"
)

// Classify maps a transport error from http.Client.Do to an ErrorKind.
func Classify(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return ErrorKindTimeout
		}
		return ErrorKindDNS
	}

	if isTLSError(err) {
		return ErrorKindTLS
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorKindTimeout
	}

	return ErrorKindConnection
}

func isTLSError(err error) bool {
	var (
		verifyErr    *tls.CertificateVerificationError
		recordErr    tls.RecordHeaderError
		alertErr     tls.AlertError
		authorityErr x509.UnknownAuthorityError
		hostnameErr  x509.HostnameError
		invalidErr   x509.CertificateInvalidError
	)

	return errors.As(err, &verifyErr) ||
		errors.As(err, &recordErr) ||
		errors.As(err, &alertErr) ||
		errors.As(err, &authorityErr) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidErr)
}
