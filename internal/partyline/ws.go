package partyline

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/zulandar/switchboard/internal/wire"
)

// wsDialer is the production Dialer, backed by gorilla/websocket.
type wsDialer struct{}

func (wsDialer) Dial(ctx context.Context, url string) (Conn, error) {
	c, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: c}, nil
}

// wsConn wraps a websocket connection with JSON envelope framing.
// Writes are serialized; gorilla allows only one concurrent writer.
type wsConn struct {
	writeMu sync.Mutex
	conn    *websocket.Conn
}

func (c *wsConn) ReadEvent() (wire.Event, error) {
	var ev wire.Event
	if err := c.conn.ReadJSON(&ev); err != nil {
		return wire.Event{}, err
	}
	return ev, nil
}

func (c *wsConn) WriteEvent(ev wire.Event) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(ev)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
