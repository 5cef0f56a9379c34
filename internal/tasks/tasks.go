package tasks

// 定义任务类型常量
const (
	// TypeSessionJanitor 周期性回收闲置会话与孤儿令牌
	TypeSessionJanitor = "session:janitor"
)
