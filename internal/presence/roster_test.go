package presence_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mainak1023/Codelith/internal/domain"
	"github.com/mainak1023/Codelith/internal/presence"
)

func TestRoster_SeedAndJoin(t *testing.T) {
	r := presence.NewRoster("me")

	r.SeedParticipants([]domain.Participant{
		{UserID: "u1", UserName: "alice"},
		{UserID: "u2", UserName: "bob"},
	})

	list := r.Collaborators()
	require.Len(t, list, 2)
	assert.Equal(t, "u1", list[0].UserID, "成员应按首次出现顺序排列")
	assert.Equal(t, "u2", list[1].UserID)
	assert.False(t, list[0].Online, "尚未收到通道事件时成员不在线")
}

func TestRoster_DuplicateJoinIsDeduped(t *testing.T) {
	r := presence.NewRoster("me")

	r.UserJoined(domain.Participant{UserID: "u1", UserName: "alice"})
	r.UserJoined(domain.Participant{UserID: "u1", UserName: "alice"})

	assert.Len(t, r.Collaborators(), 1, "同一 userId 只出现一次")
}

func TestRoster_MemberLifecycle(t *testing.T) {
	r := presence.NewRoster("me")

	r.UserJoined(domain.Participant{UserID: "u1", UserName: "alice"})
	r.MemberAdded(domain.PresenceMember{UserID: "u1", UserInfo: domain.MemberInfo{Name: "alice"}})

	list := r.Collaborators()
	require.Len(t, list, 1)
	assert.True(t, list[0].Online)
	assert.Equal(t, 1, r.OnlineCount())

	// 通道掉线但会话成员身份还在：离线但保留在名单里
	r.MemberRemoved("u1")
	list = r.Collaborators()
	require.Len(t, list, 1)
	assert.False(t, list[0].Online)
	assert.Equal(t, 0, r.OnlineCount())

	// user-left 后彻底移除
	r.UserLeft("u1")
	assert.Empty(t, r.Collaborators())
}

func TestRoster_LiveOnlyMemberIsVisible(t *testing.T) {
	r := presence.NewRoster("me")

	// member_added 先于 user-joined 到达
	r.MemberAdded(domain.PresenceMember{UserID: "u9", UserInfo: domain.MemberInfo{Name: "carol", Avatar: "https://img/c.png"}})

	list := r.Collaborators()
	require.Len(t, list, 1)
	assert.True(t, list[0].Online)
	assert.Equal(t, "carol", list[0].UserName, "缺少声明记录时退回通道身份")
	assert.Equal(t, "https://img/c.png", list[0].UserAvatar)

	// 随后的 user-joined 补全声明视图，不产生重复项
	r.UserJoined(domain.Participant{UserID: "u9", UserName: "carol"})
	assert.Len(t, r.Collaborators(), 1)
}

func TestRoster_DeclaredIdentityWins(t *testing.T) {
	r := presence.NewRoster("me")

	r.UserJoined(domain.Participant{UserID: "u1", UserName: "alice", UserAvatar: "https://img/a.png"})
	r.MemberAdded(domain.PresenceMember{UserID: "u1", UserInfo: domain.MemberInfo{Name: "old-alias"}})

	list := r.Collaborators()
	require.Len(t, list, 1)
	assert.Equal(t, "alice", list[0].UserName)
	assert.Equal(t, "https://img/a.png", list[0].UserAvatar)
}

func TestRoster_ShouldApplyCodeUpdate(t *testing.T) {
	r := presence.NewRoster("me")

	// 自己的更新经广播回来是回声，必须丢弃
	assert.False(t, r.ShouldApplyCodeUpdate(domain.CodeUpdate{UserID: "me", FileID: "f1"}))
	assert.True(t, r.ShouldApplyCodeUpdate(domain.CodeUpdate{UserID: "u2", FileID: "f1"}))
}

func TestRoster_SeedReplacesDeclaredView(t *testing.T) {
	r := presence.NewRoster("me")

	r.SeedParticipants([]domain.Participant{{UserID: "u1", UserName: "alice"}})
	r.MemberAdded(domain.PresenceMember{UserID: "u1", UserInfo: domain.MemberInfo{Name: "alice"}})

	// 重新播种为另一批成员：在线状态保留，声明视图整体替换
	r.SeedParticipants([]domain.Participant{{UserID: "u2", UserName: "bob"}})

	list := r.Collaborators()
	require.Len(t, list, 2)
	ids := []string{list[0].UserID, list[1].UserID}
	assert.ElementsMatch(t, []string{"u1", "u2"}, ids)
	for _, c := range list {
		if c.UserID == "u1" {
			assert.True(t, c.Online)
		} else {
			assert.False(t, c.Online)
		}
	}
}
