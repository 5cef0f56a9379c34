package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mainak1023/Codelith/internal/domain"
)

// 包级别的 WebSocket 常量，供 hub 和 client 包内使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

// SignatureVerifier 校验订阅帧携带的通道授权签名。
type SignatureVerifier interface {
	VerifySignature(socketID, channel, channelData, auth string) bool
}

// HubMessage 定义了在 Hub 内部通道传递的消息类型
type HubMessage struct {
	Type   string // "register", "unregister", "frame"
	Client *Client
	Frame  domain.Frame // 仅用于 frame
}

// subscribePayload 是 pusher:subscribe 帧的负载。
type subscribePayload struct {
	Channel     string `json:"channel"`
	Auth        string `json:"auth"`
	ChannelData string `json:"channel_data"`
}

// unsubscribePayload 是 pusher:unsubscribe 帧的负载。
type unsubscribePayload struct {
	Channel string `json:"channel"`
}

// presenceSummary 是 subscription_succeeded 返回的成员视图，
// 格式与 Pusher 的 presence 数据一致。
type presenceSummary struct {
	IDs   []string                     `json:"ids"`
	Hash  map[string]domain.MemberInfo `json:"hash"`
	Count int                          `json:"count"`
}

// channelState 记录一个通道的本地订阅者及成员引用计数。
// 同一用户开多个 socket 时只在第一个/最后一个 socket 上广播成员事件。
type channelState struct {
	clients map[*Client]bool
	sockets map[string]int                  // userID -> 本地 socket 数
	members map[string]domain.PresenceMember // userID -> 身份信息
}

// Hub 维护活跃客户端集合并按通道分发事件。
// 事件来源有两类：客户端的传输层帧（订阅/心跳）和
// Redis 事件总线投递的应用层事件。
type Hub struct {
	messageChan chan HubMessage

	channels   map[string]*channelState
	channelsMu sync.RWMutex

	verifier SignatureVerifier
}

// NewHub 创建并返回一个新的 Hub 实例
func NewHub(verifier SignatureVerifier) *Hub {
	if verifier == nil {
		panic("SignatureVerifier cannot be nil for Hub")
	}
	return &Hub{
		messageChan: make(chan HubMessage, 512),
		channels:    make(map[string]*channelState),
		verifier:    verifier,
	}
}

// Run 启动 Hub 的主事件处理循环。
// 它应该在一个单独的 goroutine 中运行。
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")

	for msg := range h.messageChan {
		switch msg.Type {
		case "register":
			h.registerClient(msg.Client)
		case "unregister":
			h.unregisterClient(msg.Client)
		case "frame":
			h.handleClientFrame(msg.Client, msg.Frame)
		default:
			log.Warnf("Hub: Received unknown message type: %s", msg.Type)
		}
	}
	log.Info("Hub is shutting down...")
}

// registerClient 处理客户端注册逻辑
func (h *Hub) registerClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to register a nil client")
		return
	}
	logrus.WithField("socket_id", client.SocketID()).Info("Client registered to Hub")
}

// unregisterClient 处理客户端注销逻辑：退订全部通道并终止读写泵。
// 不关闭 send：广播方可能正拿着它的引用，关闭会引发 panic；
// WritePump 通过 done 退出。
func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to unregister a nil client")
		return
	}

	for channel := range client.subscriptions {
		h.removeSubscriber(channel, client)
	}
	client.subscriptions = make(map[string]bool)

	client.shutdown()
	logrus.WithField("socket_id", client.SocketID()).Info("Client unregistered from Hub")
}

// handleClientFrame 处理客户端发来的传输层帧。
func (h *Hub) handleClientFrame(client *Client, frame domain.Frame) {
	if client == nil {
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"socket_id": client.SocketID(),
		"event":     frame.Event,
	})

	switch frame.Event {
	case domain.EventSubscribe:
		var payload subscribePayload
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			logCtx.WithError(err).Warn("Malformed subscribe payload")
			client.sendError("invalid subscribe payload")
			return
		}
		h.subscribe(client, payload)
	case domain.EventUnsubscribe:
		var payload unsubscribePayload
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			logCtx.WithError(err).Warn("Malformed unsubscribe payload")
			return
		}
		if client.subscriptions[payload.Channel] {
			delete(client.subscriptions, payload.Channel)
			h.removeSubscriber(payload.Channel, client)
		}
	case domain.EventPing:
		client.sendFrame(domain.Frame{Event: domain.EventPong})
	default:
		logCtx.Debug("Ignoring unsupported client event")
	}
}

// subscribe 校验授权签名后把客户端加入通道，并回发成员视图。
func (h *Hub) subscribe(client *Client, payload subscribePayload) {
	logCtx := logrus.WithFields(logrus.Fields{
		"socket_id": client.SocketID(),
		"channel":   payload.Channel,
	})

	if payload.Channel == "" {
		client.sendError("channel is required")
		return
	}
	if !h.verifier.VerifySignature(client.SocketID(), payload.Channel, payload.ChannelData, payload.Auth) {
		logCtx.Warn("Subscription rejected: invalid auth signature")
		client.sendError("invalid auth signature for channel " + payload.Channel)
		return
	}
	var member domain.PresenceMember
	if err := json.Unmarshal([]byte(payload.ChannelData), &member); err != nil || member.UserID == "" {
		logCtx.Warn("Subscription rejected: malformed channel_data")
		client.sendError("malformed channel_data")
		return
	}
	if client.subscriptions[payload.Channel] {
		logCtx.Debug("Client already subscribed to channel")
		return
	}

	h.channelsMu.Lock()
	state, ok := h.channels[payload.Channel]
	if !ok {
		state = &channelState{
			clients: make(map[*Client]bool),
			sockets: make(map[string]int),
			members: make(map[string]domain.PresenceMember),
		}
		h.channels[payload.Channel] = state
		logCtx.Info("Channel state created")
	}
	state.clients[client] = true
	state.sockets[member.UserID]++
	firstSocket := state.sockets[member.UserID] == 1
	if firstSocket {
		state.members[member.UserID] = member
	}

	summary := presenceSummary{
		IDs:  make([]string, 0, len(state.members)),
		Hash: make(map[string]domain.MemberInfo, len(state.members)),
	}
	for id, m := range state.members {
		summary.IDs = append(summary.IDs, id)
		summary.Hash[id] = m.UserInfo
	}
	summary.Count = len(summary.IDs)
	h.channelsMu.Unlock()

	client.subscriptions[payload.Channel] = true
	client.members[payload.Channel] = member

	data, err := json.Marshal(map[string]presenceSummary{"presence": summary})
	if err != nil {
		logCtx.WithError(err).Error("Failed to marshal presence summary")
		return
	}
	client.sendFrame(domain.Frame{
		Event:   domain.EventSubscriptionSucceeded,
		Channel: payload.Channel,
		Data:    data,
	})

	if firstSocket {
		memberBytes, _ := json.Marshal(member)
		h.broadcast(payload.Channel, domain.Frame{
			Event:   domain.EventMemberAdded,
			Channel: payload.Channel,
			Data:    memberBytes,
		}, client)
	}
	logCtx.WithField("user_id", member.UserID).Info("Client subscribed to channel")
}

// removeSubscriber 把客户端移出通道，最后一个 socket 离开时广播 member_removed。
func (h *Hub) removeSubscriber(channel string, client *Client) {
	member, hasMember := client.members[channel]
	delete(client.members, channel)

	h.channelsMu.Lock()
	state, ok := h.channels[channel]
	if !ok {
		h.channelsMu.Unlock()
		return
	}
	delete(state.clients, client)

	lastSocket := false
	if hasMember {
		state.sockets[member.UserID]--
		if state.sockets[member.UserID] <= 0 {
			delete(state.sockets, member.UserID)
			delete(state.members, member.UserID)
			lastSocket = true
		}
	}
	if len(state.clients) == 0 {
		delete(h.channels, channel)
		logrus.WithField("channel", channel).Info("Channel empty, removed from Hub")
	}
	h.channelsMu.Unlock()

	if lastSocket {
		data, _ := json.Marshal(map[string]string{"user_id": member.UserID})
		h.broadcast(channel, domain.Frame{
			Event:   domain.EventMemberRemoved,
			Channel: channel,
			Data:    data,
		}, client)
	}
}

// Deliver 将应用层事件投递给本地订阅了该通道的全部客户端。
// 由事件总线的订阅回调调用。
func (h *Hub) Deliver(channel, event string, data json.RawMessage) {
	h.broadcast(channel, domain.Frame{Event: event, Channel: channel, Data: data}, nil)
}

// broadcast 将帧发送给指定通道的所有客户端，排除 sender。
func (h *Hub) broadcast(channel string, frame domain.Frame, sender *Client) {
	message, err := json.Marshal(frame)
	if err != nil {
		logrus.WithField("channel", channel).WithError(err).Error("Failed to marshal broadcast frame")
		return
	}

	h.channelsMu.RLock()
	state, ok := h.channels[channel]
	clientsToSend := make([]*Client, 0)
	if ok {
		for client := range state.clients {
			if client != sender {
				clientsToSend = append(clientsToSend, client)
			}
		}
	}
	h.channelsMu.RUnlock()

	if len(clientsToSend) == 0 {
		return
	}

	logCtx := logrus.WithFields(logrus.Fields{
		"channel":         channel,
		"event":           frame.Event,
		"recipient_count": len(clientsToSend),
	})
	logCtx.Debug("Broadcasting frame to clients")

	for _, client := range clientsToSend {
		// 非阻塞发送，避免单个慢客户端阻塞广播
		select {
		case client.send <- message:
		default:
			logCtx.WithField("socket_id", client.SocketID()).Warn("Client send channel full during broadcast, skipping this client")
		}
	}
}

// QueueMessage 将消息放入 Hub 的处理队列 (非阻塞)。
// 这是 Client 向 Hub 发送消息的安全方式。
// 返回 true 如果消息成功入队，false 如果队列已满。
func (h *Hub) QueueMessage(msg HubMessage) bool {
	select {
	case h.messageChan <- msg:
		return true
	default:
		logrus.WithField("message_type", msg.Type).Warn("Hub message channel full, dropping message")
		return false
	}
}

// LocalMemberCount 返回通道当前的本地成员数（监控用）。
func (h *Hub) LocalMemberCount(channel string) int {
	h.channelsMu.RLock()
	defer h.channelsMu.RUnlock()
	state, ok := h.channels[channel]
	if !ok {
		return 0
	}
	return len(state.members)
}
