package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/doggy8088/Minesweeper3D/internal/logger"
	"github.com/doggy8088/Minesweeper3D/internal/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second

	readLimit = 4096
	sendQueue = 256
)

// Client is one websocket connection on either channel. The dispatcher
// addresses it by ID; all writes go through the buffered Send queue so
// broadcasts never block on a slow socket.
type Client struct {
	ID      string
	Channel string

	Conn *websocket.Conn
	Send chan []byte

	closeOnce sync.Once
}

func NewClient(id, channel string, conn *websocket.Conn) *Client {
	return &Client{
		ID:      id,
		Channel: channel,
		Conn:    conn,
		Send:    make(chan []byte, sendQueue),
	}
}

// send enqueues an encoded event without blocking. A full queue means
// the consumer stopped draining; the frame is dropped and the write
// pump's ping timeout will reap the connection soon after.
func (c *Client) send(data []byte) {
	if data == nil {
		return
	}
	select {
	case c.Send <- data:
		metrics.MessagesSent.Inc()
	default:
		logger.Warn("send queue full, dropping frame", "conn", c.ID, "channel", c.Channel)
	}
}

func (c *Client) sendEvent(msgType string, payload any) {
	c.send(encode(msgType, payload))
}

// readPump delivers inbound frames to the handler until the connection
// drops, then runs the disconnect callback exactly once.
func (c *Client) readPump(handle func(*Client, []byte), disconnect func(*Client)) {
	defer func() {
		c.closeOnce.Do(func() { disconnect(c) })
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(readLimit)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("websocket read error", "conn", c.ID, "error", err)
			}
			return
		}
		handle(c, data)
	}
}

// writePump drains the send queue onto the socket and keeps the
// connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
