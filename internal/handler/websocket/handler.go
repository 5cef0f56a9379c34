package websocket

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/mainak1023/Codelith/internal/domain"
	"github.com/mainak1023/Codelith/internal/hub"
)

// WebSocketHandler 负责处理 WebSocket 升级请求和客户端注册。
// 连接本身是匿名的：身份在订阅 presence 通道时通过签名的
// channel_data 建立，握手阶段只分配 socket_id。
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	hub      *hub.Hub
}

// NewWebSocketHandler 创建 WebSocketHandler 实例
func NewWebSocketHandler(h *hub.Hub) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// 允许所有来源连接 (生产环境应配置具体的允许来源)
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	return &WebSocketHandler{upgrader: upgrader, hub: h}
}

// HandleConnection 处理 WebSocket 连接请求。
// 升级成功后先回发 pusher:connection_established，携带分配的 socket_id，
// 客户端用它向 /pusher/auth 换取通道授权。
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 失败时已自动发送 HTTP 错误响应
		logrus.WithError(err).Error("WS Handler: Failed to upgrade connection")
		return
	}

	socketID := uuid.NewString()
	logCtx := logrus.WithField("socket_id", socketID)
	logCtx.Info("WS Handler: Connection upgraded to WebSocket")

	client := hub.NewClient(h.hub, conn, socketID)

	registerMsg := hub.HubMessage{Type: "register", Client: client}
	if !h.hub.QueueMessage(registerMsg) {
		logCtx.Error("WS Handler: Hub message channel full, failed to register client")
		client.CloseConn()
		return
	}

	client.Run()

	// 握手确认帧，格式与 Pusher 一致
	data, _ := json.Marshal(gin.H{"socket_id": socketID})
	frame, _ := json.Marshal(domain.Frame{Event: domain.EventConnectionEstablished, Data: data})
	client.Enqueue(frame)

	logCtx.Info("WS Handler: Client read/write pumps started")
}
