package hypervisor

import (
	"net"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
)

// LocalHost is where every backend's control port listens.
const LocalHost = "127.0.0.1"

// Option configures an HTTP client.
type Option func(*HTTPClient)

// WithHTTPClient replaces the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) { h.http = c }
}

// WithDialer replaces the websocket dialer used for console sessions.
func WithDialer(d *websocket.Dialer) Option {
	return func(h *HTTPClient) { h.dialer = d }
}

// New creates a client for the backend at addr (host:port). Requests have
// no client-side timeout; callers bound them with the context.
func New(addr string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		addr:   addr,
		http:   &http.Client{},
		dialer: websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Local creates a client for a backend on the local control port.
func Local(port uint16, opts ...Option) *HTTPClient {
	return New(net.JoinHostPort(LocalHost, strconv.Itoa(int(port))), opts...)
}

// LocalFactory is the Factory used outside of tests.
func LocalFactory(port uint16) Client {
	return Local(port)
}
