package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/hexacore-go/taskhttp/http1"
	"github.com/urfave/cli/v2"
	"golang.org/x/time/rate"
)

func fetchCommand() *cli.Command {
	return &cli.Command{
		Name:  "fetch",
		Usage: "drive one HTTP/1.1 request/response exchange and print it",

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "url",
				Aliases:  []string{"u"},
				Required: true,
				Usage:    "absolute http:// URL to fetch",
			},
			&cli.IntFlag{
				Name:  "retries",
				Value: 3,
				Usage: "dial attempts before giving up",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 10 * time.Second,
				Usage: "overall exchange timeout",
			},
		},

		Action: fetchAction,
	}
}

func fetchAction(c *cli.Context) error {
	target, err := url.Parse(c.String("url"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid URL: %v", err), 1)
	}
	if target.Scheme != "http" {
		return cli.Exit("fetch only supports plain http:// (no TLS)", 1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
	defer cancel()

	throttle := newDialThrottle(c.Int("retries"))
	conn, err := throttle.dial(ctx, "tcp", target.Host)
	if err != nil {
		return cli.Exit(fmt.Sprintf("dial failed: %v", err), 1)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	carrier := &connCarrier{conn: conn, redactedURL: target.Redacted()}
	codec := http1.NewHttp1ExchangeCodec(conn, carrier, nil, http1.Options{})

	req := &http1.Request{
		Method: http.MethodGet,
		URL:    target,
		Header: http.Header{"Host": {target.Host}, "Connection": {"close"}},
	}
	if err := codec.WriteRequestHeaders(req); err != nil {
		return cli.Exit(fmt.Sprintf("write request headers: %v", err), 1)
	}
	if err := codec.FinishRequest(); err != nil {
		return cli.Exit(fmt.Sprintf("finish request: %v", err), 1)
	}

	resp, err := codec.ReadResponseHeaders(false)
	if err != nil {
		return cli.Exit(fmt.Sprintf("read response headers: %v", err), 1)
	}

	fmt.Printf("HTTP/1.%d %d %s\n", resp.Minor, resp.StatusCode, resp.Reason)
	for k, vs := range resp.Header {
		for _, v := range vs {
			fmt.Printf("%s: %s\n", k, v)
		}
	}
	fmt.Println()

	src, err := codec.OpenResponseBodySource(resp)
	if err != nil {
		return cli.Exit(fmt.Sprintf("open response body: %v", err), 1)
	}
	defer src.Close()

	body, err := io.ReadAll(src)
	if err != nil {
		return cli.Exit(fmt.Sprintf("read response body: %v", err), 1)
	}
	fmt.Print(string(body))

	trailers, err := codec.PeekTrailers()
	if err != nil {
		return cli.Exit(fmt.Sprintf("peek trailers: %v", err), 1)
	}
	if len(trailers) > 0 {
		fmt.Println("\n--- trailers ---")
		for k, vs := range http.Header(trailers) {
			for _, v := range vs {
				fmt.Printf("%s: %s\n", k, v)
			}
		}
	}

	return nil
}

// dialThrottle rate-limits connection attempts so a misbehaving retry loop
// cannot hammer an origin; the codec itself stays transport-agnostic and
// never sees this.
type dialThrottle struct {
	limiter *rate.Limiter
	retries int
}

func newDialThrottle(retries int) *dialThrottle {
	if retries < 1 {
		retries = 1
	}
	return &dialThrottle{limiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 1), retries: retries}
}

func (t *dialThrottle) dial(ctx context.Context, network, addr string) (net.Conn, error) {
	var lastErr error
	for attempt := 0; attempt < t.retries; attempt++ {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		conn, err := (&net.Dialer{}).DialContext(ctx, network, addr)
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// connCarrier is the minimal Carrier a one-shot CLI exchange needs: there
// is no connection pool to evict from, so TrackFailure/NoNewExchanges are
// observational only.
type connCarrier struct {
	conn        net.Conn
	redactedURL string
	failed      bool
	noReuse     bool
}

func (c *connCarrier) Route() http1.Route {
	return http1.Route{RedactedURL: c.redactedURL}
}

func (c *connCarrier) TrackFailure(err error) {
	if err != nil {
		c.failed = true
	}
}

func (c *connCarrier) NoNewExchanges() { c.noReuse = true }

func (c *connCarrier) Cancel() { _ = c.conn.Close() }
