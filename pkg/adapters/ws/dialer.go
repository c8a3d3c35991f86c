package ws

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/coder/websocket"

	"github.com/ensemble-dev/ensemble/pkg/domain"
	"github.com/ensemble-dev/ensemble/pkg/ports"
)

// Dialer implements ports.Dialer over a static table of device endpoints,
// name to WebSocket URL. Selector matching runs against the table names in
// lexical order, so prefix dials are deterministic.
type Dialer struct {
	endpoints map[string]string
	header    http.Header
	client    *http.Client
}

// DialerOption configures a Dialer.
type DialerOption func(*Dialer)

// WithHeader adds a handshake header, for device endpoints behind auth.
func WithHeader(key, value string) DialerOption {
	return func(d *Dialer) { d.header.Set(key, value) }
}

// WithHTTPClient overrides the handshake HTTP client.
func WithHTTPClient(client *http.Client) DialerOption {
	return func(d *Dialer) { d.client = client }
}

// NewDialer creates a Dialer over the given endpoint table. URLs may use
// http/https schemes; they are rewritten to ws/wss at dial time.
func NewDialer(endpoints map[string]string, opts ...DialerOption) *Dialer {
	d := &Dialer{
		endpoints: make(map[string]string, len(endpoints)),
		header:    make(http.Header),
		client:    http.DefaultClient,
	}
	for name, u := range endpoints {
		d.endpoints[name] = u
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dial connects to the first table entry matching the selector.
func (d *Dialer) Dial(ctx context.Context, selector ports.DeviceSelector) (ports.Channel, string, error) {
	names := make([]string, 0, len(d.endpoints))
	for name := range d.endpoints {
		if selector.Matches(name) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, "", &domain.ConnectionError{
			Device: selector.Name,
			Err:    fmt.Errorf("no known device matches selector"),
		}
	}
	sort.Strings(names)
	name := names[0]

	conn, _, err := websocket.Dial(ctx, wsURL(d.endpoints[name]), &websocket.DialOptions{
		HTTPClient: d.client,
		HTTPHeader: d.header,
	})
	if err != nil {
		return nil, "", &domain.ConnectionError{Device: name, Err: err}
	}
	return NewChannel(conn), name, nil
}

// wsURL rewrites http schemes to their WebSocket equivalents.
func wsURL(u string) string {
	if strings.HasPrefix(u, "https://") {
		return "wss://" + strings.TrimPrefix(u, "https://")
	}
	if strings.HasPrefix(u, "http://") {
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}
