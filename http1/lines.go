package http1

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// statusLine is the parsed form of an HTTP/1.1 response status line:
// "HTTP/<major>.<minor> <code> <reason>".
type statusLine struct {
	Minor  int
	Code   int
	Reason string
}

func readStatusLine(r *bufio.Reader) (statusLine, error) {
	raw, err := r.ReadString('\n')
	if err != nil {
		return statusLine{}, err
	}
	line := strings.TrimRight(raw, "\r\n")

	proto, rest, ok := strings.Cut(line, " ")
	if !ok {
		return statusLine{}, &ProtocolError{Msg: fmt.Sprintf("malformed status line %q", line)}
	}
	_, minor, ok := parseHTTPVersion(proto)
	if !ok {
		return statusLine{}, &ProtocolError{Msg: fmt.Sprintf("malformed HTTP version %q", proto)}
	}

	codeField, reason, _ := strings.Cut(rest, " ")
	code, err := strconv.Atoi(codeField)
	if err != nil || code < 100 || code > 999 {
		return statusLine{}, &ProtocolError{Msg: fmt.Sprintf("malformed status code %q", codeField)}
	}

	return statusLine{Minor: minor, Code: code, Reason: reason}, nil
}

func parseHTTPVersion(proto string) (major, minor int, ok bool) {
	rest, found := strings.CutPrefix(proto, "HTTP/")
	if !found {
		return 0, 0, false
	}
	majorField, minorField, found := strings.Cut(rest, ".")
	if !found {
		return 0, 0, false
	}
	major, err1 := strconv.Atoi(majorField)
	minor, err2 := strconv.Atoi(minorField)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return major, minor, true
}

// buildRequestLine renders the request line in origin-form for direct
// connections or absolute-form for requests routed through an HTTP proxy.
func buildRequestLine(req *Request, proxy bool) string {
	target := req.URL.RequestURI()
	if proxy {
		target = req.URL.String()
	}
	return fmt.Sprintf("%s %s HTTP/1.1\r\n", req.Method, target)
}
