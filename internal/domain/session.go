package domain

// Participant 表示用户在协作会话中的成员记录。
// 同一个会话内 UserID 唯一。
type Participant struct {
	UserID     string `json:"userId"`
	UserName   string `json:"userName"`
	UserAvatar string `json:"userAvatar,omitempty"`
	JoinedAt   int64  `json:"joinedAt"` // 毫秒时间戳
}

// Session 表示绑定到单个项目的协作编辑会话。
// Version 用于 Redis 端的乐观并发控制，每次持久化变更递增。
type Session struct {
	ID           string        `json:"id"`
	ProjectID    string        `json:"projectId"`
	CreatedAt    int64         `json:"createdAt"`
	UpdatedAt    int64         `json:"updatedAt"`
	Participants []Participant `json:"participants"`
	Version      uint64        `json:"version"`
}

// FindParticipant 按 userID 查找成员，返回索引，未找到时返回 -1。
func (s *Session) FindParticipant(userID string) int {
	for i, p := range s.Participants {
		if p.UserID == userID {
			return i
		}
	}
	return -1
}

// AddParticipant 追加成员。调用方需保证 userID 尚不存在。
func (s *Session) AddParticipant(p Participant) {
	s.Participants = append(s.Participants, p)
}

// RemoveParticipant 移除指定成员，返回是否发生了移除。
func (s *Session) RemoveParticipant(userID string) bool {
	idx := s.FindParticipant(userID)
	if idx < 0 {
		return false
	}
	s.Participants = append(s.Participants[:idx], s.Participants[idx+1:]...)
	return true
}

// SessionTicket 是创建/加入会话后返回给客户端的凭据集合。
type SessionTicket struct {
	SessionID    string        `json:"sessionId"`
	AuthToken    string        `json:"authToken"`
	ChannelName  string        `json:"channelName"`
	Participants []Participant `json:"participants,omitempty"`
}
