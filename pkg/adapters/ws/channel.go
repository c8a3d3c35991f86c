// Package ws carries the device channel over WebSocket. Devices expose a
// WebSocket endpoint; frames map one-to-one onto text messages.
package ws

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
)

// Channel adapts a WebSocket connection to ports.Channel.
type Channel struct {
	conn *websocket.Conn
}

// NewChannel wraps an established connection.
func NewChannel(conn *websocket.Conn) *Channel {
	return &Channel{conn: conn}
}

// Write sends the frame as one text message.
func (c *Channel) Write(ctx context.Context, frame []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, frame)
}

// Read blocks until the next inbound message. Once the connection is gone
// every subsequent Read fails, which is the channel-loss signal upstream.
func (c *Channel) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Close tears the connection down with a normal closure.
func (c *Channel) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}

// Accept upgrades an inbound HTTP request into a Channel. Used when devices
// connect to the coordinator rather than the other way around.
func Accept(w http.ResponseWriter, r *http.Request) (*Channel, error) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return nil, err
	}
	return NewChannel(conn), nil
}
