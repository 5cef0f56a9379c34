package domain

import "encoding/json"

// 应用层事件名，由服务端通过 Trigger 显式发布。
const (
	EventUserJoined = "user-joined"
	EventUserLeft   = "user-left"
	EventCodeUpdate = "code-update"
)

// 传输层事件名，由 hub 根据 socket 连接/订阅状态自动派发。
const (
	EventConnectionEstablished = "pusher:connection_established"
	EventSubscriptionSucceeded = "pusher:subscription_succeeded"
	EventMemberAdded           = "pusher:member_added"
	EventMemberRemoved         = "pusher:member_removed"
	EventSubscribe             = "pusher:subscribe"
	EventUnsubscribe           = "pusher:unsubscribe"
	EventPing                  = "pusher:ping"
	EventPong                  = "pusher:pong"
	EventError                 = "pusher:error"
)

// Frame 是 WebSocket 连接上传输的统一消息格式。
type Frame struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// MemberInfo 是成员在 presence 通道中公开的资料。
type MemberInfo struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// PresenceMember 是订阅者附带的身份信息，来自签名过的 channel_data。
type PresenceMember struct {
	UserID   string     `json:"user_id"`
	UserInfo MemberInfo `json:"user_info"`
}

// ChannelGrant 是通道订阅授权的响应体，格式与 Pusher 的
// channel-auth 响应一致：auth 为 "<appKey>:<hex签名>"。
type ChannelGrant struct {
	Auth        string `json:"auth"`
	ChannelData string `json:"channel_data"`
}

// CodeUpdate 是 code-update 事件的负载。
type CodeUpdate struct {
	FileID    string `json:"fileId"`
	Content   string `json:"content"`
	UserID    string `json:"userId"`
	Timestamp int64  `json:"timestamp"`
}
