// Package realtime 维护用户的 websocket 推送通道
package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var errConnectionClosed = errors.New("connection closed")

// Connection 一个 websocket 会话，出站消息经缓冲通道串行写出
type Connection struct {
	ID          string
	Destination string

	ws    *websocket.Conn
	send  chan []byte
	once  sync.Once
	close chan struct{}
}

func NewConnection(destination string, ws *websocket.Conn) *Connection {
	return &Connection{
		ID:          uuid.NewString(),
		Destination: destination,
		ws:          ws,
		send:        make(chan []byte, 64),
		close:       make(chan struct{}),
	}
}

// Start 启动写协程，每个连接只能调用一次
func (c *Connection) Start() {
	go c.writeLoop()
}

// Send 缓冲区满时关闭连接，客户端重连后会拿到最新未读数
func (c *Connection) Send(payload []byte) error {
	select {
	case <-c.close:
		return errConnectionClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	default:
		c.Close(websocket.CloseGoingAway, "send buffer full")
		return errors.New("connection buffer exceeded")
	}
}

func (c *Connection) Close(code int, reason string) {
	c.once.Do(func() {
		close(c.close)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
}

// Done 连接关闭后可读
func (c *Connection) Done() <-chan struct{} { return c.close }

// readLoop 丢弃客户端消息，只用于感知断开和处理 pong
func (c *Connection) readLoop() {
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.close:
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "write failed")
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "ping failed")
				return
			}
		}
	}
}

func (c *Connection) write(messageType int, payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, payload)
}
