// Package presence 提供客户端侧的在线成员视图归约器。
// 它把两路事实合并成一份协作者名单：会话记录声明的成员
// （user-joined / user-left）和通道实际在线的成员
// （member_added / member_removed）。纯内存、无 IO，
// 服务端和 Go 客户端可共用。
package presence

import (
	"sync"

	"github.com/mainak1023/Codelith/internal/domain"
)

// Collaborator 是归约后的单个协作者视图。
type Collaborator struct {
	UserID     string `json:"userId"`
	UserName   string `json:"userName"`
	UserAvatar string `json:"userAvatar,omitempty"`
	Online     bool   `json:"online"`
}

// Roster 按事件流维护成员名单。并发安全。
// 成员按首次出现的顺序排列，同一 userId 只出现一次。
type Roster struct {
	mu     sync.RWMutex
	selfID string

	order    []string
	declared map[string]domain.Participant
	live     map[string]domain.MemberInfo
}

// NewRoster 创建归约器。selfID 用于过滤自己的 code-update 回声。
func NewRoster(selfID string) *Roster {
	return &Roster{
		selfID:   selfID,
		declared: make(map[string]domain.Participant),
		live:     make(map[string]domain.MemberInfo),
	}
}

func (r *Roster) track(userID string) {
	if _, inDeclared := r.declared[userID]; inDeclared {
		return
	}
	if _, inLive := r.live[userID]; inLive {
		return
	}
	r.order = append(r.order, userID)
}

// SeedParticipants 用会话记录的成员列表初始化声明视图。
// 重复调用会整体替换声明视图，但保留已知的在线状态。
func (r *Roster) SeedParticipants(participants []domain.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.declared = make(map[string]domain.Participant, len(participants))
	r.rebuildOrder()
	for _, p := range participants {
		r.track(p.UserID)
		r.declared[p.UserID] = p
	}
}

// rebuildOrder 在声明视图整体替换后重建顺序表，只保留仍然在线的成员。
func (r *Roster) rebuildOrder() {
	kept := r.order[:0]
	for _, id := range r.order {
		if _, ok := r.live[id]; ok {
			kept = append(kept, id)
		}
	}
	r.order = kept
}

// UserJoined 处理 user-joined 事件。同一用户重复加入是幂等的。
func (r *Roster) UserJoined(p domain.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.track(p.UserID)
	r.declared[p.UserID] = p
}

// UserLeft 处理 user-left 事件。
func (r *Roster) UserLeft(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.declared, userID)
	r.compact(userID)
}

// MemberAdded 处理通道的 member_added 事件（含订阅成功快照里的成员）。
func (r *Roster) MemberAdded(m domain.PresenceMember) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.track(m.UserID)
	r.live[m.UserID] = m.UserInfo
}

// MemberRemoved 处理通道的 member_removed 事件。
func (r *Roster) MemberRemoved(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.live, userID)
	r.compact(userID)
}

// compact 在两路视图都不再包含该用户时把它从顺序表移除。
func (r *Roster) compact(userID string) {
	if _, inDeclared := r.declared[userID]; inDeclared {
		return
	}
	if _, inLive := r.live[userID]; inLive {
		return
	}
	for i, id := range r.order {
		if id == userID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}

// ShouldApplyCodeUpdate 报告是否应把 code-update 应用到本地编辑器。
// 自己发出的更新经广播回来属于回声，必须丢弃。
func (r *Roster) ShouldApplyCodeUpdate(update domain.CodeUpdate) bool {
	return update.UserID != r.selfID
}

// Collaborators 返回归并后的协作者名单，按首次出现顺序排列。
// 声明过但当前不在线的成员 Online 为 false。
func (r *Roster) Collaborators() []Collaborator {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Collaborator, 0, len(r.order))
	for _, id := range r.order {
		c := Collaborator{UserID: id}
		if p, ok := r.declared[id]; ok {
			c.UserName = p.UserName
			c.UserAvatar = p.UserAvatar
		}
		if info, ok := r.live[id]; ok {
			c.Online = true
			// 通道身份优先，user-joined 可能晚于 member_added 到达
			if c.UserName == "" {
				c.UserName = info.Name
			}
			if c.UserAvatar == "" {
				c.UserAvatar = info.Avatar
			}
		}
		out = append(out, c)
	}
	return out
}

// OnlineCount 返回当前在线成员数。
func (r *Roster) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.live)
}
