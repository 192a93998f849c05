package dispatcher

import (
	"context"
	"crypto/x509"
	"errors"
	"net"
	"strings"

	"steamgate/internal/domain"
)

// categorizeTransportError maps a transport-layer error from an HTTP
// round trip to one of the cooldown reasons in spec.md §7. socksCapable
// indicates the connection used was a proxy, so SOCKS negotiation failures
// are possible; the direct connection can never produce ReasonSOCKSError.
func categorizeTransportError(err error, socksCapable bool) (domain.CooldownReason, bool) {
	if err == nil {
		return "", false
	}

	if socksCapable && isSOCKSError(err) {
		return domain.ReasonSOCKSError, true
	}

	if errors.Is(err, context.DeadlineExceeded) || isTimeoutError(err) {
		return domain.ReasonTimeout, true
	}

	if isDNSFailure(err) {
		return domain.ReasonDNSFailure, true
	}

	if isConnectionReset(err) {
		return domain.ReasonConnectionReset, true
	}

	return "", false
}

// isSOCKSError matches on message content: golang.org/x/net/proxy's SOCKS5
// dialer wraps negotiation failures as plain errors, without a dedicated
// type to errors.As against.
func isSOCKSError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "socks") &&
		(strings.Contains(msg, "handshake") || strings.Contains(msg, "negotiat") || strings.Contains(msg, "auth"))
}

func isTimeoutError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "etimedout") || strings.Contains(msg, "timeout")
}

func isDNSFailure(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "enotfound") || strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "ehostunreach") || strings.Contains(msg, "host unreachable")
}

func isConnectionReset(err error) bool {
	var certErr *x509.CertificateInvalidError
	if errors.As(err, &certErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{"econnreset", "econnrefused", "connection reset", "connection refused", "socket hang up", "tls", "certificate", "eof"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
