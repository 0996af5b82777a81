package http1

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memSocket struct {
	r *bytes.Reader
	w bytes.Buffer
}

func newMemSocket(serverBytes string) *memSocket {
	return &memSocket{r: bytes.NewReader([]byte(serverBytes))}
}

func (s *memSocket) Read(p []byte) (int, error)  { return s.r.Read(p) }
func (s *memSocket) Write(p []byte) (int, error) { return s.w.Write(p) }
func (s *memSocket) SetReadDeadline(time.Time) error  { return nil }
func (s *memSocket) SetWriteDeadline(time.Time) error { return nil }

type fakeCarrier struct {
	route     Route
	failures  []error
	noReuse   bool
	cancelled bool
}

func (c *fakeCarrier) Route() Route          { return c.route }
func (c *fakeCarrier) TrackFailure(err error) { c.failures = append(c.failures, err) }
func (c *fakeCarrier) NoNewExchanges()        { c.noReuse = true }
func (c *fakeCarrier) Cancel()                { c.cancelled = true }

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

// Property 6: round-tripping bytes through a chunked sink then a chunked
// source yields the original bytes back.
func TestProperty_ChunkedSink_RoundTrip(t *testing.T) {
	data := []byte("hello world, this is a chunked payload that spans more than one write")

	encodeSocket := newMemSocket("")
	encodeCodec := NewHttp1ExchangeCodec(encodeSocket, &fakeCarrier{}, nil, Options{})
	req := &Request{
		Method: http.MethodPost,
		URL:    mustURL(t, "http://example.com/upload"),
		Header: http.Header{"Transfer-Encoding": {"chunked"}},
	}
	require.NoError(t, encodeCodec.WriteRequestHeaders(req))
	sink, err := encodeCodec.CreateRequestBody(req, -1)
	require.NoError(t, err)
	_, err = sink.Write(data[:20])
	require.NoError(t, err)
	_, err = sink.Write(data[20:])
	require.NoError(t, err)
	require.NoError(t, sink.Close())
	require.NoError(t, encodeCodec.FinishRequest())

	encoded := encodeSocket.w.Bytes()
	idx := bytes.Index(encoded, []byte("\r\n\r\n"))
	require.GreaterOrEqual(t, idx, 0)
	chunkedBody := encoded[idx+4:]

	decodeSocket := &memSocket{r: bytes.NewReader(chunkedBody)}
	decodeCodec := NewHttp1ExchangeCodec(decodeSocket, &fakeCarrier{}, nil, Options{})
	decodeCodec.state = StateOpenResponseBody
	resp := &Response{StatusCode: 200, Header: http.Header{"Transfer-Encoding": {"chunked"}}}

	src, err := decodeCodec.OpenResponseBodySource(resp)
	require.NoError(t, err)
	got, err := io.ReadAll(src)
	require.NoError(t, err)
	require.Equal(t, data, got)
	require.Equal(t, StateClosed, decodeCodec.State())
}

// Property 7: state == CLOSED iff the trailers slot is populated.
func TestProperty_StateClosedIffTrailersPopulated(t *testing.T) {
	socket := newMemSocket("")
	codec := NewHttp1ExchangeCodec(socket, &fakeCarrier{}, nil, Options{})
	codec.state = StateOpenResponseBody
	resp := &Response{StatusCode: 200, Header: http.Header{"Content-Length": {"0"}}}

	require.False(t, codec.trailersSet)
	_, err := codec.OpenResponseBodySource(resp)
	require.NoError(t, err)

	require.Equal(t, StateClosed, codec.State())
	require.True(t, codec.trailersSet)
}

func TestProperty_StateNotClosedWhileTrailersUnset(t *testing.T) {
	socket := newMemSocket(repeatString("x", 5))
	codec := NewHttp1ExchangeCodec(socket, &fakeCarrier{}, nil, Options{})
	codec.state = StateOpenResponseBody
	resp := &Response{StatusCode: 200, Header: http.Header{"Content-Length": {"5"}}}

	src, err := codec.OpenResponseBodySource(resp)
	require.NoError(t, err)
	require.NotEqual(t, StateClosed, codec.State())

	buf := make([]byte, 5)
	n, err := src.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 5, n)

	require.Equal(t, StateClosed, codec.State())
}

func repeatString(s string, n int) string {
	out := make([]byte, 0, len(s)*n)
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}

// Property 8: fixed-length source yields exactly contentLength bytes then
// EOF; fewer causes ProtocolError and marks the carrier no-reuse.
func TestProperty_FixedLengthSource_ExactLength(t *testing.T) {
	socket := newMemSocket("abcdefghij")
	codec := NewHttp1ExchangeCodec(socket, &fakeCarrier{}, nil, Options{})
	codec.state = StateOpenResponseBody
	resp := &Response{StatusCode: 200, Header: http.Header{"Content-Length": {"10"}}}

	src, err := codec.OpenResponseBodySource(resp)
	require.NoError(t, err)
	got, err := io.ReadAll(src)
	require.NoError(t, err)
	require.Equal(t, "abcdefghij", string(got))
	require.Equal(t, StateClosed, codec.State())
}

func TestProperty_FixedLengthSource_TruncatedBody(t *testing.T) {
	socket := newMemSocket("abcd")
	carrier := &fakeCarrier{}
	codec := NewHttp1ExchangeCodec(socket, carrier, nil, Options{})
	codec.state = StateOpenResponseBody
	resp := &Response{StatusCode: 200, Header: http.Header{"Content-Length": {"10"}}}

	src, err := codec.OpenResponseBodySource(resp)
	require.NoError(t, err)

	_, err = io.ReadAll(src)
	require.Error(t, err)
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	require.True(t, carrier.noReuse)
	require.Len(t, carrier.failures, 1)

	trailers, err := codec.PeekTrailers()
	require.Nil(t, trailers)
	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
}

// Property 9: reportedContentLength is 0 iff the response cannot carry a
// body per HTTP method/status rules.
func TestProperty_ReportedContentLength_ZeroCases(t *testing.T) {
	socket := newMemSocket("")
	codec := NewHttp1ExchangeCodec(socket, &fakeCarrier{}, nil, Options{})
	codec.request = &Request{Method: http.MethodGet}

	for _, code := range []int{100, 150, 199, 204, 304} {
		resp := &Response{StatusCode: code, Header: http.Header{}}
		require.Equal(t, int64(0), codec.ReportedContentLength(resp), "status %d", code)
	}

	codec.request = &Request{Method: http.MethodHead}
	resp := &Response{StatusCode: 200, Header: http.Header{"Content-Length": {"500"}}}
	require.Equal(t, int64(0), codec.ReportedContentLength(resp))

	codec.request = &Request{Method: http.MethodGet}
	resp = &Response{StatusCode: 200, Header: http.Header{"Content-Length": {"500"}}}
	require.Equal(t, int64(500), codec.ReportedContentLength(resp))

	resp = &Response{StatusCode: 200, Header: http.Header{"Transfer-Encoding": {"chunked"}}}
	require.Equal(t, int64(-1), codec.ReportedContentLength(resp))
}

// S1 is a scheduler scenario, not a codec one; the nearest test is
// core/backend_test.go's TestFakeBackend_AdvanceWakesCoordinator (one
// delayed task on a virtual clock).

// S2: chunked response with a trailer.
func TestScenario_ChunkedResponseWithTrailer(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nhello\r\n0\r\nX-Trailer: v\r\n\r\n"
	socket := newMemSocket(raw)
	codec := NewHttp1ExchangeCodec(socket, &fakeCarrier{}, nil, Options{})
	codec.request = &Request{Method: http.MethodGet, URL: mustURL(t, "http://example.com/")}

	resp, err := codec.ReadResponseHeaders(false)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	src, err := codec.OpenResponseBodySource(resp)
	require.NoError(t, err)
	got, err := io.ReadAll(src)
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))

	trailers, err := codec.PeekTrailers()
	require.NoError(t, err)
	require.Equal(t, "v", http.Header(trailers).Get("X-Trailer"))
	require.Equal(t, StateClosed, codec.State())
}

// S3: Expect: 100-continue.
func TestScenario_ExpectContinue(t *testing.T) {
	raw := "HTTP/1.1 100 Continue\r\n\r\nHTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"
	socket := newMemSocket(raw)
	codec := NewHttp1ExchangeCodec(socket, &fakeCarrier{}, nil, Options{})
	codec.request = &Request{Method: http.MethodPost, Header: http.Header{"Expect": {"100-continue"}}}

	resp, err := codec.ReadResponseHeaders(true)
	require.NoError(t, err)
	require.Nil(t, resp)
	require.Equal(t, StateReadResponseHeaders, codec.State())

	resp, err = codec.ReadResponseHeaders(false)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, StateOpenResponseBody, codec.State())
}

// S4: truncated fixed-length body.
func TestScenario_TruncatedFixedBody(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nContent-Length: 10\r\n\r\nabcd"
	socket := newMemSocket(raw)
	carrier := &fakeCarrier{}
	codec := NewHttp1ExchangeCodec(socket, carrier, nil, Options{})
	codec.request = &Request{Method: http.MethodGet}

	resp, err := codec.ReadResponseHeaders(false)
	require.NoError(t, err)

	src, err := codec.OpenResponseBodySource(resp)
	require.NoError(t, err)

	_, err = io.ReadAll(src)
	require.Error(t, err)
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	require.True(t, carrier.noReuse)
	require.Len(t, carrier.failures, 1)
}

// S6: early hints (103) followed by a final response.
func TestScenario_EarlyHints(t *testing.T) {
	raw := "HTTP/1.1 103 Early Hints\r\nLink: </a>\r\n\r\nHTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"
	socket := newMemSocket(raw)
	codec := NewHttp1ExchangeCodec(socket, &fakeCarrier{}, nil, Options{})
	codec.request = &Request{Method: http.MethodGet}

	resp, err := codec.ReadResponseHeaders(false)
	require.NoError(t, err)
	require.Equal(t, 103, resp.StatusCode)
	require.Equal(t, StateReadResponseHeaders, codec.State())

	resp, err = codec.ReadResponseHeaders(false)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, StateOpenResponseBody, codec.State())

	src, err := codec.OpenResponseBodySource(resp)
	require.NoError(t, err)
	got, err := io.ReadAll(src)
	require.NoError(t, err)
	require.Len(t, got, 0)
	require.Equal(t, StateClosed, codec.State())
}

func TestCodec_OperationInWrongState_FailsWithStateError(t *testing.T) {
	socket := newMemSocket("")
	codec := NewHttp1ExchangeCodec(socket, &fakeCarrier{}, nil, Options{})

	_, err := codec.CreateRequestBody(&Request{}, 0)
	var stateErr *StateError
	require.ErrorAs(t, err, &stateErr)
	require.Equal(t, StateIdle, stateErr.State)
}

func TestCodec_ReadResponseHeaders_MalformedStatusLine_MarksNoReuse(t *testing.T) {
	socket := newMemSocket("not a status line\r\n\r\n")
	carrier := &fakeCarrier{}
	codec := NewHttp1ExchangeCodec(socket, carrier, nil, Options{})

	_, err := codec.ReadResponseHeaders(false)
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	require.True(t, carrier.noReuse)
	require.Len(t, carrier.failures, 1)
	require.Nil(t, carrier.failures[0])
}

func TestCodec_ReadResponseHeaders_MalformedHeaderBlock_MarksNoReuse(t *testing.T) {
	socket := newMemSocket("HTTP/1.1 200 OK\r\nbad header no colon\r\n\r\n")
	carrier := &fakeCarrier{}
	codec := NewHttp1ExchangeCodec(socket, carrier, nil, Options{})

	_, err := codec.ReadResponseHeaders(false)
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	require.True(t, carrier.noReuse)
	require.Len(t, carrier.failures, 1)
}

func TestCodec_CreateRequestBody_Duplex_MarksNoReuse(t *testing.T) {
	socket := newMemSocket("")
	carrier := &fakeCarrier{}
	codec := NewHttp1ExchangeCodec(socket, carrier, nil, Options{})
	req := &Request{Method: http.MethodPost, URL: mustURL(t, "http://example.com/"), Duplex: true}
	require.NoError(t, codec.WriteRequestHeaders(req))

	_, err := codec.CreateRequestBody(req, -1)
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	require.True(t, carrier.noReuse)
	require.Len(t, carrier.failures, 1)
	require.Nil(t, carrier.failures[0])
}

func TestCodec_Cancel_DelegatesToCarrier(t *testing.T) {
	socket := newMemSocket("")
	carrier := &fakeCarrier{}
	codec := NewHttp1ExchangeCodec(socket, carrier, nil, Options{})

	codec.Cancel()
	require.True(t, carrier.cancelled)
}
