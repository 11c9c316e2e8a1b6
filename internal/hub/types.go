package hub

import (
	"context"
	"encoding/json"
	"time"
)

// EntityRef 实体注册表条目
type EntityRef struct {
	EntityID string `json:"entity_id"`
	DeviceID string `json:"device_id"`
}

// StateValue 实体当前状态
type StateValue struct {
	State string
	Units string
}

// HistoryPoint 历史状态点
type HistoryPoint struct {
	State       string    `json:"state"`
	LastChanged time.Time `json:"last_changed"`
}

// StateSource 实体当前状态来源
// 实体不存在时返回 (nil, nil)
type StateSource interface {
	CurrentState(ctx context.Context, entityID string) (*StateValue, error)
}

// HistorySource 实体历史来源
type HistorySource interface {
	// HistoryInRange 查询 [start, end] 区间的状态序列
	// includeBoundary 为 true 时首条为窗口起点时刻的状态
	HistoryInRange(ctx context.Context, entityID string, start, end time.Time, includeBoundary bool) ([]HistoryPoint, error)
}

// Directory 实体/设备注册表
type Directory interface {
	Entities(ctx context.Context) ([]EntityRef, error)
	// DeviceName 用户命名优先，回退到系统名
	DeviceName(ctx context.Context, deviceID string) (string, error)
}

// DescriptorSource 服务描述与仪表盘布局来源
type DescriptorSource interface {
	// ServiceDescriptions 平台名→服务描述，仅含注册表中有实体的平台
	ServiceDescriptions(ctx context.Context) (map[string]json.RawMessage, error)
	DashboardLayout(ctx context.Context) (json.RawMessage, error)
}
