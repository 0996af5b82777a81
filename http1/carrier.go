package http1

import (
	"net/http"
	"net/url"
)

// Route describes how a request reaches the origin, enough for the codec
// to pick origin-form vs absolute-form request lines and to redact a URL
// for error messages without needing the full connection pool logic.
type Route struct {
	// Proxy is true when the request must be sent in absolute-form because
	// it is being routed through an HTTP proxy rather than connected to
	// directly.
	Proxy bool

	// RedactedURL is a caller-supplied, credential-free rendering of the
	// request URL used in IOError messages.
	RedactedURL string
}

// Carrier is the connection-layer collaborator the codec reports outcomes
// to. It is out of scope to implement here (connection pooling, eviction)
// but the codec depends on its interface to retire or abort the
// underlying socket.
type Carrier interface {
	// Route returns routing information for the current exchange.
	Route() Route

	// TrackFailure records that an exchange on this carrier failed. err is
	// nil for failures that are not I/O failures (e.g. protocol errors).
	TrackFailure(err error)

	// NoNewExchanges retires the connection from the pool: once this
	// exchange's response body finishes, the connection is not offered
	// for reuse.
	NoNewExchanges()

	// Cancel aborts the underlying socket. Safe to call from any
	// goroutine, including concurrently with the goroutine driving the
	// codec.
	Cancel()
}

// CookieJar receives trailer headers exactly as it would receive ordinary
// response headers, so cookies set via chunked trailers are not silently
// dropped.
type CookieJar interface {
	SetCookies(requestURL *url.URL, header http.Header)
}
