package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/mainak1023/Codelith/internal/domain"
)

// Client 代表一个连接到 Hub 的 WebSocket 客户端。
// subscriptions 和 members 仅由 Hub 主循环读写。
// send 从不关闭：广播方可能在任意 goroutine 上持有它的引用，
// 生命周期结束统一通过 done 通知。
type Client struct {
	hub           *Hub
	conn          *websocket.Conn
	socketID      string
	send          chan []byte
	done          chan struct{}
	closeOnce     sync.Once
	subscriptions map[string]bool
	members       map[string]domain.PresenceMember // channel -> 本连接在该通道上的身份
}

// NewClient 创建一个新的 Client 实例
func NewClient(hub *Hub, conn *websocket.Conn, socketID string) *Client {
	return &Client{
		hub:           hub,
		conn:          conn,
		socketID:      socketID,
		send:          make(chan []byte, 256),
		done:          make(chan struct{}),
		subscriptions: make(map[string]bool),
		members:       make(map[string]domain.PresenceMember),
	}
}

// shutdown 关闭 done 并断开底层连接，幂等。
func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// Run 启动客户端的读写 goroutine
func (c *Client) Run() {
	go c.WritePump()
	go c.ReadPump()
}

// sendFrame 序列化并非阻塞地投递一帧给本客户端。
func (c *Client) sendFrame(frame domain.Frame) {
	message, err := json.Marshal(frame)
	if err != nil {
		logrus.WithField("socket_id", c.socketID).WithError(err).Error("Failed to marshal frame")
		return
	}
	select {
	case c.send <- message:
	default:
		logrus.WithField("socket_id", c.socketID).Warn("Client send channel full, dropping frame")
	}
}

// sendError 投递一个 pusher:error 帧。
func (c *Client) sendError(message string) {
	data, _ := json.Marshal(map[string]string{"message": message})
	c.sendFrame(domain.Frame{Event: domain.EventError, Data: data})
}

// ReadPump 将消息从 WebSocket 连接泵送到 Hub 的 messageChan。
// 它在自己的 goroutine 中运行。
func (c *Client) ReadPump() {
	defer func() {
		unregisterMsg := HubMessage{Type: "unregister", Client: c}
		select {
		case c.hub.messageChan <- unregisterMsg:
		case <-time.After(1 * time.Second):
			logrus.WithField("socket_id", c.socketID).Warn("Timeout sending unregister message to Hub channel")
		}
		c.conn.Close()
		logrus.WithField("socket_id", c.socketID).Info("readPump exited, unregistered client")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			logCtx := logrus.WithField("socket_id", c.socketID)
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logCtx.WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				logCtx.Debug("WebSocket connection closed normally or read error")
			}
			break
		}

		if messageType != websocket.TextMessage {
			continue
		}

		var frame domain.Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			logrus.WithField("socket_id", c.socketID).WithError(err).Warn("Dropping malformed frame")
			c.sendError("malformed frame")
			continue
		}

		msg := HubMessage{Type: "frame", Client: c, Frame: frame}
		select {
		case c.hub.messageChan <- msg:
		default:
			logrus.WithField("socket_id", c.socketID).Warn("Hub message channel full, dropping client frame")
		}
	}
}

// WritePump 将消息从 Client 的 send 通道泵送到 WebSocket 连接。
// 它在自己的 goroutine 中运行。
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		logrus.WithField("socket_id", c.socketID).Info("writePump exited")
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logrus.WithField("socket_id", c.socketID).WithError(err).Warn("Failed to write message to websocket")
				return
			}
			_ = c.conn.SetWriteDeadline(time.Time{})

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logrus.WithField("socket_id", c.socketID).WithError(err).Warn("Failed to send ping message")
				return
			}
			_ = c.conn.SetWriteDeadline(time.Time{})
		}
	}
}

// Enqueue 非阻塞地把已序列化的消息放入发送队列。
func (c *Client) Enqueue(message []byte) {
	select {
	case c.send <- message:
	default:
		logrus.WithField("socket_id", c.socketID).Warn("Client send channel full, dropping message")
	}
}

func (c *Client) SocketID() string { return c.socketID }
func (c *Client) CloseConn()       { c.shutdown() }
