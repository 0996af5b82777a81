package http1

import (
	"bufio"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// State is one stage of Http1ExchangeCodec's lifecycle. Any operation
// invoked while the codec is in a state that does not permit it fails
// with a StateError rather than corrupting the shared socket.
type State int

const (
	StateIdle State = iota
	StateOpenRequestBody
	StateWritingRequestBody
	StateReadResponseHeaders
	StateOpenResponseBody
	StateReadingResponseBody
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateOpenRequestBody:
		return "OPEN_REQUEST_BODY"
	case StateWritingRequestBody:
		return "WRITING_REQUEST_BODY"
	case StateReadResponseHeaders:
		return "READ_RESPONSE_HEADERS"
	case StateOpenResponseBody:
		return "OPEN_RESPONSE_BODY"
	case StateReadingResponseBody:
		return "READING_RESPONSE_BODY"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Trailers is the header block, if any, captured when a response body
// terminates. The zero value (nil map) means "not yet known"; Truncated
// is a distinguished non-nil value meaning the body ended abnormally.
type Trailers http.Header

// truncatedMarkerKey is never a valid HTTP header name (it is not a valid
// token), so it can be used as a private marker key without colliding
// with any real trailer the peer could send.
const truncatedMarkerKey = "\x00truncated"

// Truncated is the sentinel Trailers value signaling the response body
// ended abnormally. PeekTrailers fails when the trailers slot holds this
// value.
var Truncated = Trailers{truncatedMarkerKey: nil}

// IsTruncated reports whether t is the Truncated sentinel.
func (t Trailers) IsTruncated() bool {
	_, ok := t[truncatedMarkerKey]
	return ok
}

// Request is the subset of an HTTP/1.1 request the codec needs to encode
// a request line and headers. Cookie jars, redirects, and body content
// semantics beyond framing are the caller's concern.
type Request struct {
	Method string
	URL    *url.URL
	Header http.Header

	// Duplex marks a request body that streams both directions at once.
	// HTTP/1.1 cannot express this; CreateRequestBody always fails when
	// it is set.
	Duplex bool
}

// Response is the subset of an HTTP/1.1 response the codec produces from
// a status line and header block.
type Response struct {
	Minor      int
	StatusCode int
	Reason     string
	Header     http.Header
}

// Socket is the byte-stream transport the codec drives. Real
// implementations are *net.TCPConn or *tls.Conn; tests substitute an
// in-memory pipe.
type Socket interface {
	io.Reader
	io.Writer
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// Options configures optional codec behavior.
type Options struct {
	// MaxHeaderBytes bounds the accumulated size of any single header or
	// trailer block. <= 0 uses a 1 MiB default.
	MaxHeaderBytes int

	// DiscardStreamTimeout bounds how long Close on a response body
	// source will try to drain the remainder before giving up and marking
	// the carrier no-reuse. <= 0 uses DiscardStreamTimeoutDefault.
	DiscardStreamTimeout time.Duration
}

// DiscardStreamTimeoutDefault is the out-of-the-box budget for draining a
// response body closed early, matching the 100ms the source design uses.
const DiscardStreamTimeoutDefault = 100 * time.Millisecond

func (o Options) discardTimeout() time.Duration {
	if o.DiscardStreamTimeout <= 0 {
		return DiscardStreamTimeoutDefault
	}
	return o.DiscardStreamTimeout
}

// Http1ExchangeCodec serializes one HTTP/1.1 request and parses one
// HTTP/1.1 response over a reusable Socket. It owns the socket exclusively
// between construction and State == StateClosed; exactly one goroutine is
// expected to drive it at a time (Cancel is the sole exception).
type Http1ExchangeCodec struct {
	socket Socket
	reader *bufio.Reader
	writer *bufio.Writer

	carrier       Carrier
	cookieJar     CookieJar
	headersReader *HeadersReader
	opts          Options

	state    State
	request  *Request
	response *Response

	trailers    Trailers
	trailersSet bool
}

// NewHttp1ExchangeCodec creates a codec bound to socket. cookieJar may be
// nil if the caller does not want trailer-borne cookies forwarded.
func NewHttp1ExchangeCodec(socket Socket, carrier Carrier, cookieJar CookieJar, opts Options) *Http1ExchangeCodec {
	return &Http1ExchangeCodec{
		socket:        socket,
		reader:        bufio.NewReader(socket),
		writer:        bufio.NewWriter(socket),
		carrier:       carrier,
		cookieJar:     cookieJar,
		headersReader: NewHeadersReader(opts.MaxHeaderBytes),
		opts:          opts,
		state:         StateIdle,
	}
}

// State returns the codec's current lifecycle state.
func (c *Http1ExchangeCodec) State() State { return c.state }

// IsResponseComplete reports whether the exchange has fully finished.
func (c *Http1ExchangeCodec) IsResponseComplete() bool { return c.state == StateClosed }

func (c *Http1ExchangeCodec) requireState(op string, allowed ...State) error {
	for _, s := range allowed {
		if c.state == s {
			return nil
		}
	}
	return &StateError{Op: op, State: c.state}
}

func (c *Http1ExchangeCodec) redactedURL() string {
	if c.carrier == nil {
		return ""
	}
	return c.carrier.Route().RedactedURL
}

// WriteRequestHeaders forms and writes the request line plus header
// block. It does not flush; call FlushRequest or FinishRequest to push
// bytes to the socket.
func (c *Http1ExchangeCodec) WriteRequestHeaders(req *Request) error {
	if err := c.requireState("WriteRequestHeaders", StateIdle); err != nil {
		return err
	}
	c.request = req

	proxy := c.carrier != nil && c.carrier.Route().Proxy
	if _, err := c.writer.WriteString(buildRequestLine(req, proxy)); err != nil {
		c.carrier.TrackFailure(err)
		return &IOError{RequestURL: c.redactedURL(), Err: err}
	}
	if err := writeHeaders(c.writer, req.Header); err != nil {
		c.carrier.TrackFailure(err)
		return &IOError{RequestURL: c.redactedURL(), Err: err}
	}

	c.state = StateOpenRequestBody
	return nil
}

// CreateRequestBody returns a sink for the outgoing request body.
// contentLength < 0 with no chunked Transfer-Encoding header is a
// programmer error: the caller must pre-buffer to learn the length or
// switch to chunked encoding.
func (c *Http1ExchangeCodec) CreateRequestBody(req *Request, contentLength int64) (RequestBodySink, error) {
	if err := c.requireState("CreateRequestBody", StateOpenRequestBody); err != nil {
		return nil, err
	}
	if req.Duplex {
		c.carrier.NoNewExchanges()
		c.carrier.TrackFailure(nil)
		return nil, &ProtocolError{Msg: "HTTP/1.1 does not support duplex request bodies"}
	}

	var sink RequestBodySink
	switch {
	case isChunked(req.Header):
		sink = &chunkedSink{codec: c}
	case contentLength >= 0:
		sink = &knownLengthSink{codec: c}
	default:
		return nil, &StateError{Op: "CreateRequestBody: no Content-Length or chunked Transfer-Encoding", State: c.state}
	}

	c.state = StateWritingRequestBody
	return sink, nil
}

// FlushRequest pushes any buffered request bytes to the socket without
// changing state. The codec never half-closes the outbound direction.
func (c *Http1ExchangeCodec) FlushRequest() error {
	if err := c.writer.Flush(); err != nil {
		c.carrier.TrackFailure(err)
		return &IOError{RequestURL: c.redactedURL(), Err: err}
	}
	return nil
}

// FinishRequest is FlushRequest under a name that reads naturally at the
// call site once the request body sink has been closed.
func (c *Http1ExchangeCodec) FinishRequest() error {
	return c.FlushRequest()
}

func (c *Http1ExchangeCodec) resetWriteDeadline() {
	_ = c.socket.SetWriteDeadline(time.Time{})
}

func (c *Http1ExchangeCodec) resetReadDeadline() {
	_ = c.socket.SetReadDeadline(time.Time{})
}

// ReadResponseHeaders parses one status line and header block.
// expectContinue should be true only immediately after writing a request
// that sent "Expect: 100-continue"; a 100 response then yields (nil, nil)
// and the caller must call ReadResponseHeaders again once ready to read
// the real response. A final response (status >= 200, or 101) transitions
// to OPEN_RESPONSE_BODY; any other interim response (100 without
// expectContinue, or [102, 200)) stays in READ_RESPONSE_HEADERS for
// another call.
func (c *Http1ExchangeCodec) ReadResponseHeaders(expectContinue bool) (*Response, error) {
	if err := c.requireState("ReadResponseHeaders",
		StateIdle, StateOpenRequestBody, StateWritingRequestBody, StateReadResponseHeaders); err != nil {
		return nil, err
	}

	line, err := readStatusLine(c.reader)
	if err != nil {
		if protoErr, ok := err.(*ProtocolError); ok {
			c.carrier.NoNewExchanges()
			c.carrier.TrackFailure(nil)
			return nil, protoErr
		}
		c.carrier.TrackFailure(err)
		return nil, &IOError{RequestURL: c.redactedURL(), Err: err}
	}

	header, err := c.headersReader.ReadHeaders(c.reader)
	if err != nil {
		if protoErr, ok := err.(*ProtocolError); ok {
			c.carrier.NoNewExchanges()
			c.carrier.TrackFailure(nil)
			return nil, protoErr
		}
		c.carrier.TrackFailure(err)
		return nil, &IOError{RequestURL: c.redactedURL(), Err: err}
	}

	resp := &Response{Minor: line.Minor, StatusCode: line.Code, Reason: line.Reason, Header: header}

	if resp.StatusCode == 100 && expectContinue {
		c.state = StateReadResponseHeaders
		return nil, nil
	}
	if resp.StatusCode == 100 || (resp.StatusCode >= 102 && resp.StatusCode < 200) {
		c.state = StateReadResponseHeaders
		return resp, nil
	}

	c.state = StateOpenResponseBody
	c.response = resp
	return resp, nil
}

// ReportedContentLength returns 0 if resp cannot carry a body per HTTP
// method/status rules, -1 if the length is unknown in advance (chunked or
// absent), or the parsed Content-Length.
func (c *Http1ExchangeCodec) ReportedContentLength(resp *Response) int64 {
	if resp.StatusCode/100 == 1 || resp.StatusCode == 204 || resp.StatusCode == 304 {
		return 0
	}
	if c.request != nil && c.request.Method == http.MethodHead {
		return 0
	}
	if isChunked(resp.Header) {
		return -1
	}
	v := resp.Header.Get("Content-Length")
	if v == "" {
		return -1
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

// OpenResponseBodySource selects and returns the appropriate body source
// for resp: fixed-length, chunked, or unknown-length (which additionally
// retires the carrier from reuse, since the body's end cannot be framed
// unambiguously).
func (c *Http1ExchangeCodec) OpenResponseBodySource(resp *Response) (ResponseBodySource, error) {
	if err := c.requireState("OpenResponseBodySource", StateOpenResponseBody); err != nil {
		return nil, err
	}

	// Set before constructing the source: a zero-length fixed body moves the
	// codec straight on to CLOSED from inside its constructor.
	c.state = StateReadingResponseBody

	var src ResponseBodySource
	switch {
	case isChunked(resp.Header):
		src = newChunkedSource(c)
	default:
		contentLength := c.ReportedContentLength(resp)
		if contentLength >= 0 {
			src = newFixedLengthSource(c, contentLength)
		} else {
			src = newUnknownLengthSource(c)
		}
	}

	return src, nil
}

// finishResponseBody installs trailers (possibly Truncated or empty),
// transitions to CLOSED, resets the per-stream read deadline, and forwards
// non-empty, non-truncated trailers to the cookie jar.
func (c *Http1ExchangeCodec) finishResponseBody(trailers Trailers) {
	c.trailers = trailers
	c.trailersSet = true
	c.state = StateClosed
	c.resetReadDeadline()

	if c.cookieJar != nil && c.request != nil && len(trailers) > 0 && !trailers.IsTruncated() {
		c.cookieJar.SetCookies(c.request.URL, http.Header(trailers))
	}
}

// PeekTrailers returns the trailers slot's current value: nil if the body
// has not finished yet, or the captured trailers (possibly empty) once it
// has. It fails with an IOError if the slot holds Truncated, and with a
// StateError if called outside READING_RESPONSE_BODY/CLOSED.
func (c *Http1ExchangeCodec) PeekTrailers() (Trailers, error) {
	if err := c.requireState("PeekTrailers", StateReadingResponseBody, StateClosed); err != nil {
		return nil, err
	}
	if c.trailersSet && c.trailers.IsTruncated() {
		return nil, &IOError{RequestURL: c.redactedURL(), Err: errTruncatedTrailers}
	}
	if !c.trailersSet {
		return nil, nil
	}
	return c.trailers, nil
}

var errTruncatedTrailers = &ProtocolError{Msg: "response body ended abnormally; trailers unavailable"}

// closeBodyEarly implements early-close semantics shared by every
// ResponseBodySource: drain up to DiscardStreamTimeout, keeping the
// connection reusable if that succeeds, otherwise retiring it.
func (c *Http1ExchangeCodec) closeBodyEarly(src io.Reader) error {
	if c.state != StateReadingResponseBody {
		return nil
	}

	_ = c.socket.SetReadDeadline(time.Now().Add(c.opts.discardTimeout()))
	defer c.resetReadDeadline()

	_, err := io.Copy(io.Discard, src)
	if err != nil && c.state != StateClosed {
		c.carrier.NoNewExchanges()
		c.carrier.TrackFailure(err)
		c.finishResponseBody(Truncated)
	}
	return nil
}

// SkipConnectBody discards a CONNECT response's body, which should be
// empty but is drained defensively with a bounded timeout before the
// caller switches the socket to raw tunnel mode.
func (c *Http1ExchangeCodec) SkipConnectBody(resp *Response) error {
	contentLength := c.ReportedContentLength(resp)
	if contentLength <= 0 {
		return nil
	}

	src, err := c.OpenResponseBodySource(resp)
	if err != nil {
		return err
	}
	_ = c.socket.SetReadDeadline(time.Now().Add(c.opts.discardTimeout()))
	defer c.resetReadDeadline()

	_, err = io.CopyN(io.Discard, src, contentLength)
	if err != nil && err != io.EOF {
		return err
	}
	return nil
}

// Cancel aborts the underlying socket by delegating to the carrier. It
// may be called concurrently with whatever goroutine is driving the rest
// of the codec.
func (c *Http1ExchangeCodec) Cancel() {
	c.carrier.Cancel()
}
