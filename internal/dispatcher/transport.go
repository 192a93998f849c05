// Package dispatcher implements the request-dispatch and rate-limit
// subsystem (spec.md §4.3): classifying upstream URLs into endpoint
// classes, selecting the best available connection, performing the HTTP
// call, categorising failures, and updating the Cooldown Store.
//
// Transport construction is grounded on the teacher's
// helper/request_helper.go CreateTransport: a *http.Transport with
// keep-alives disabled, built either as a plain direct dialer or wrapping
// golang.org/x/net/proxy's SOCKS5 dialer.
package dispatcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"

	"steamgate/internal/domain"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// BuildTransport constructs an *http.Transport bound to conn: the plain
// default transport for the direct connection, or one dialing through the
// SOCKS5 proxy URL for a proxy connection. Exported so other components
// that need to speak through a specific connection (e.g. the Connection
// Health Judge) reuse the same dialing logic instead of duplicating it.
func BuildTransport(conn domain.Connection, timeout time.Duration) (*http.Transport, error) {
	dialer := &net.Dialer{Timeout: timeout}

	transport := &http.Transport{
		DisableKeepAlives:     true,
		MaxIdleConnsPerHost:   0,
		IdleConnTimeout:       0,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if conn.IsDirect() {
		transport.DialContext = dialer.DialContext
		return transport, nil
	}

	proxyURL, err := url.Parse(conn.URL)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: parse proxy url %q: %w", conn.URL, err)
	}

	var auth *proxy.Auth
	if proxyURL.User != nil {
		password, _ := proxyURL.User.Password()
		auth = &proxy.Auth{User: proxyURL.User.Username(), Password: password}
	}

	socksDialer, err := proxy.SOCKS5("tcp", proxyURL.Host, auth, dialer)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: build socks5 dialer: %w", err)
	}

	transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		return socksDialer.Dial(network, addr)
	}

	return transport, nil
}

// applyBrowserHeaders attaches the browser-like Sec-Fetch-* headers used
// for inventory-class requests and a realistic User-Agent for every call
// (spec.md §4.3 step 4).
func applyBrowserHeaders(req *http.Request, endpoint domain.EndpointClass) {
	req.Header.Set("User-Agent", userAgent)
	if endpoint == domain.EndpointInventory {
		req.Header.Set("Sec-Fetch-Dest", "document")
		req.Header.Set("Sec-Fetch-Mode", "navigate")
		req.Header.Set("Sec-Fetch-Site", "none")
		req.Header.Set("Sec-Fetch-User", "?1")
	}
}
