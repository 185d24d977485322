package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/d60-Lab/community-messaging/pkg/logger"
)

// ErrNotConnected 目标地址当前没有在线连接
var ErrNotConnected = errors.New("destination not connected")

// Hub 每个推送地址只保留一个活跃连接，新会话会替换旧会话
type Hub struct {
	mu       sync.RWMutex
	conns    map[string]*Connection
	upgrader websocket.Upgrader
}

// NewHub allowedOrigins 为空或包含 "*" 时不校验 Origin
func NewHub(allowedOrigins []string) *Hub {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &Hub{
		conns: make(map[string]*Connection),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(allowed) == 0 || allowed["*"] {
					return true
				}
				return allowed[origin]
			},
		},
	}
}

// Attach 注册连接并启动写协程
func (h *Hub) Attach(conn *Connection) {
	h.mu.Lock()
	previous := h.conns[conn.Destination]
	h.conns[conn.Destination] = conn
	h.mu.Unlock()

	conn.Start()
	if previous != nil {
		previous.Close(4001, "session replaced")
	}
}

// Detach 只移除仍是当前会话的连接
func (h *Hub) Detach(conn *Connection) {
	h.mu.Lock()
	if current, ok := h.conns[conn.Destination]; ok && current.ID == conn.ID {
		delete(h.conns, conn.Destination)
	}
	h.mu.Unlock()
}

func (h *Hub) Connected(destination string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.conns[destination]
	return ok
}

// Deliver 把已编码的消息写给本实例上的连接
func (h *Hub) Deliver(destination string, payload []byte) error {
	h.mu.RLock()
	conn := h.conns[destination]
	h.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.Send(payload)
}

// Publish 以 JSON 编码 payload 后投递
func (h *Hub) Publish(_ context.Context, destination string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return h.Deliver(destination, data)
}

// ServeWS 升级连接并阻塞到客户端断开
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, destination string) error {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	conn := NewConnection(destination, ws)
	h.Attach(conn)
	logger.Debug("websocket attached", zap.String("destination", destination), zap.String("session", conn.ID))

	conn.readLoop()

	h.Detach(conn)
	conn.Close(websocket.CloseNormalClosure, "")
	logger.Debug("websocket detached", zap.String("destination", destination), zap.String("session", conn.ID))
	return nil
}

// Close 关闭全部连接
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*Connection, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.conns = make(map[string]*Connection)
	h.mu.Unlock()

	for _, c := range conns {
		c.Close(websocket.CloseGoingAway, "server shutdown")
	}
}
