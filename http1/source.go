package http1

import (
	"io"
	"strconv"
	"strings"
)

// ResponseBodySource streams the body of an incoming response. Read
// returns io.EOF once the body is exhausted, at which point the codec has
// already transitioned to CLOSED and its trailers slot is populated.
// Close drains or abandons a body that was not fully read.
type ResponseBodySource interface {
	io.Reader
	io.Closer
}

// fixedLengthSource yields exactly contentLength bytes then io.EOF. A
// remaining count of zero at construction closes the codec immediately,
// since there is nothing to read.
type fixedLengthSource struct {
	codec     *Http1ExchangeCodec
	remaining int64
}

func newFixedLengthSource(codec *Http1ExchangeCodec, contentLength int64) *fixedLengthSource {
	s := &fixedLengthSource{codec: codec, remaining: contentLength}
	if contentLength == 0 {
		codec.finishResponseBody(Trailers{})
	}
	return s
}

func (s *fixedLengthSource) Read(p []byte) (int, error) {
	if s.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > s.remaining {
		p = p[:s.remaining]
	}

	n, err := s.codec.reader.Read(p)
	s.remaining -= int64(n)

	switch {
	case err == io.EOF && s.remaining > 0:
		s.codec.carrier.NoNewExchanges()
		s.codec.carrier.TrackFailure(nil)
		s.codec.finishResponseBody(Truncated)
		return n, &ProtocolError{Msg: "unexpected EOF reading fixed-length response body"}
	case err != nil && err != io.EOF:
		return n, err
	case s.remaining == 0:
		s.codec.finishResponseBody(Trailers{})
		return n, nil
	}
	return n, nil
}

func (s *fixedLengthSource) Close() error {
	return s.codec.closeBodyEarly(s)
}

// chunkedSource decodes "<hex>[;ext]\r\n<bytes>\r\n" chunks, ending with a
// zero-size chunk followed by an optional trailer block.
type chunkedSource struct {
	codec         *Http1ExchangeCodec
	remainingInChunk int64
	awaitingHeader   bool
	done             bool
}

func newChunkedSource(codec *Http1ExchangeCodec) *chunkedSource {
	return &chunkedSource{codec: codec, awaitingHeader: true}
}

func (s *chunkedSource) Read(p []byte) (int, error) {
	for {
		if s.done {
			return 0, io.EOF
		}

		if s.awaitingHeader {
			size, err := s.readChunkHeader()
			if err != nil {
				return 0, err
			}
			if size == 0 {
				trailers, err := s.readTrailer()
				if err != nil {
					return 0, err
				}
				s.done = true
				s.codec.finishResponseBody(trailers)
				return 0, io.EOF
			}
			s.remainingInChunk = size
			s.awaitingHeader = false
		}

		max := int64(len(p))
		if max > s.remainingInChunk {
			max = s.remainingInChunk
		}

		n, err := s.codec.reader.Read(p[:max])
		s.remainingInChunk -= int64(n)

		if err == io.EOF {
			s.codec.carrier.NoNewExchanges()
			s.codec.carrier.TrackFailure(nil)
			s.codec.finishResponseBody(Truncated)
			return n, &ProtocolError{Msg: "unexpected EOF reading chunked response body"}
		}
		if err != nil {
			return n, err
		}

		if s.remainingInChunk == 0 {
			if err := s.discardChunkCRLF(); err != nil {
				s.codec.carrier.NoNewExchanges()
				s.codec.carrier.TrackFailure(nil)
				s.codec.finishResponseBody(Truncated)
				return n, err
			}
			s.awaitingHeader = true
		}

		if n > 0 {
			return n, nil
		}
	}
}

func (s *chunkedSource) readChunkHeader() (int64, error) {
	raw, err := s.codec.reader.ReadString('\n')
	if err != nil {
		s.codec.carrier.NoNewExchanges()
		s.codec.carrier.TrackFailure(nil)
		s.codec.finishResponseBody(Truncated)
		return 0, &ProtocolError{Msg: "unexpected EOF reading chunk size", Err: err}
	}
	line := strings.TrimRight(raw, "\r\n")
	hexSize, _, _ := strings.Cut(line, ";") // extensions, if any, are discarded

	size, err := strconv.ParseInt(hexSize, 16, 64)
	if err != nil || size < 0 {
		s.codec.carrier.NoNewExchanges()
		s.codec.carrier.TrackFailure(nil)
		s.codec.finishResponseBody(Truncated)
		return 0, &ProtocolError{Msg: "malformed chunk size " + strconv.Quote(hexSize)}
	}
	return size, nil
}

func (s *chunkedSource) readTrailer() (Trailers, error) {
	header, err := s.codec.headersReader.ReadHeaders(s.codec.reader)
	if err != nil {
		s.codec.carrier.NoNewExchanges()
		s.codec.carrier.TrackFailure(nil)
		return Truncated, &ProtocolError{Msg: "malformed chunked trailer block", Err: err}
	}
	return Trailers(header), nil
}

func (s *chunkedSource) discardChunkCRLF() error {
	buf := make([]byte, 2)
	if _, err := io.ReadFull(s.codec.reader, buf); err != nil {
		return &ProtocolError{Msg: "missing CRLF after chunk data", Err: err}
	}
	if buf[0] != '\r' || buf[1] != '\n' {
		return &ProtocolError{Msg: "missing CRLF after chunk data"}
	}
	return nil
}

func (s *chunkedSource) Close() error {
	return s.codec.closeBodyEarly(s)
}

// unknownLengthSource reads until the underlying socket reaches EOF. The
// codec marks the carrier no-reuse as soon as this source is constructed,
// since framing is ambiguous and the connection cannot be reused once this
// body ends.
type unknownLengthSource struct {
	codec *Http1ExchangeCodec
}

func newUnknownLengthSource(codec *Http1ExchangeCodec) *unknownLengthSource {
	codec.carrier.NoNewExchanges()
	return &unknownLengthSource{codec: codec}
}

func (s *unknownLengthSource) Read(p []byte) (int, error) {
	n, err := s.codec.reader.Read(p)
	if err == io.EOF {
		s.codec.finishResponseBody(Trailers{})
	}
	return n, err
}

func (s *unknownLengthSource) Close() error {
	return s.codec.closeBodyEarly(s)
}
