package hypervisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/javanstorm/vmtopo/internal/errdefs"
)

// HTTPClient implements Client against the backend's HTTP API.
type HTTPClient struct {
	addr   string
	http   *http.Client
	dialer *websocket.Dialer
}

var _ Client = (*HTTPClient)(nil)

// Addr returns the backend address.
func (c *HTTPClient) Addr() string {
	return c.addr
}

func (c *HTTPClient) url(scheme string, elem ...string) string {
	u := url.URL{Scheme: scheme, Host: c.addr, Path: "/" + path.Join(elem...)}
	return u.String()
}

// request is the generic way to hit an API endpoint. body, when non-nil, is
// sent as JSON. The response body is returned for the caller to decode.
func (c *HTTPClient) request(ctx context.Context, method, endpoint string, expected int, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != expected && !(expected == http.StatusOK && resp.StatusCode/100 == 2) {
		return nil, &StatusError{Expected: expected, Got: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}

// Ping implements Client.
func (c *HTTPClient) Ping(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return errdefs.Backend("ping", c.addr, err)
	}
	return conn.Close()
}

// EnsureInstance implements Client.
func (c *HTTPClient) EnsureInstance(ctx context.Context, spec InstanceSpec) error {
	body := struct {
		Properties InstanceSpec `json:"properties"`
		Nics       []any        `json:"nics"`
		Disks      []any        `json:"disks"`
	}{Properties: spec, Nics: []any{}, Disks: []any{}}

	if _, err := c.request(ctx, http.MethodPut, c.url("http", "instances", spec.ID.String()), http.StatusOK, body); err != nil {
		return errdefs.Backend("ensure instance", spec.Name, err)
	}
	return nil
}

// ResolveInstance implements Client.
func (c *HTTPClient) ResolveInstance(ctx context.Context, name string) (uuid.UUID, error) {
	data, err := c.request(ctx, http.MethodGet, c.url("http", "instances", name, "uuid"), http.StatusOK, nil)
	if err != nil {
		return uuid.Nil, errdefs.Backend("resolve instance", name, err)
	}

	var id uuid.UUID
	if err := json.Unmarshal(data, &id); err != nil {
		return uuid.Nil, errdefs.Backend("resolve instance", name, fmt.Errorf("decode uuid: %w", err))
	}
	return id, nil
}

// RequestState implements Client.
func (c *HTTPClient) RequestState(ctx context.Context, id uuid.UUID, state State) error {
	if _, err := c.request(ctx, http.MethodPut, c.url("http", "instances", id.String(), "state"), http.StatusOK, state); err != nil {
		return errdefs.Backend("request state "+string(state), id.String(), err)
	}
	return nil
}

// OpenConsole implements Client.
func (c *HTTPClient) OpenConsole(ctx context.Context, id uuid.UUID) (Session, error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.url("ws", "instances", id.String(), "serial"), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, errdefs.Backend("open serial console", id.String(), err)
	}
	return conn, nil
}
