package models

import (
	"encoding/json"
	"fmt"
)

// TwinKey Snapshot 中保留的 twin 编号键
// 设备 ID 来自 hub 注册表（uuid 形式），不会与该键冲突
const TwinKey = "twin_id"

// HistoryTimeLayout 历史记录时间戳格式
const HistoryTimeLayout = "2006-01-02 15:04:05.999999-07:00"

// NoUnits 实体缺失计量单位时的占位值
// 下游消费方依赖固定 schema，缺失字段必须显式补齐而不是省略
const NoUnits = "None"

// StateRecord 实体的一条历史状态
type StateRecord struct {
	State string `json:"state"`
	Date  string `json:"date"`
}

// EntityTelemetry 单个实体的遥测数据
type EntityTelemetry struct {
	Units   string        `json:"units"`
	State   string        `json:"state"`
	History []StateRecord `json:"history"`
}

// DeviceTelemetry 单个设备的遥测数据（按实体聚合）
type DeviceTelemetry struct {
	Name     string                     `json:"name"`
	Entities map[string]EntityTelemetry `json:"entities"`
}

// Snapshot 一次发布周期的完整快照
// 序列化为 设备ID→设备数据 的映射，外加保留键 twin_id
type Snapshot struct {
	Devices map[string]DeviceTelemetry
	TwinID  int
}

// MarshalJSON 合并设备映射与保留键
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	merged := make(map[string]any, len(s.Devices)+1)
	for id, dev := range s.Devices {
		if id == TwinKey {
			return nil, fmt.Errorf("device id collides with reserved key %q", TwinKey)
		}
		merged[id] = dev
	}
	merged[TwinKey] = s.TwinID
	return json.Marshal(merged)
}

// ConfigDocument hub 的服务描述与仪表盘布局
type ConfigDocument struct {
	Services  map[string]json.RawMessage `json:"services"`
	Dashboard json.RawMessage            `json:"dashboard"`
	TwinID    int                        `json:"twin_id"`
}

// Empty 文档是否没有任何可发布内容
func (d *ConfigDocument) Empty() bool {
	return len(d.Services) == 0 && len(d.Dashboard) == 0
}

// Canonical 规范化序列化，用于内容哈希与磁盘缓存
// RawMessage 字段先解码再编码，消除来源 JSON 的空白和键序差异
func (d *ConfigDocument) Canonical() ([]byte, error) {
	normalized := struct {
		Services  map[string]any `json:"services"`
		Dashboard any            `json:"dashboard"`
		TwinID    int            `json:"twin_id"`
	}{
		Services: make(map[string]any, len(d.Services)),
		TwinID:   d.TwinID,
	}
	for platform, desc := range d.Services {
		var v any
		if err := json.Unmarshal(desc, &v); err != nil {
			return nil, fmt.Errorf("service description %q is not valid JSON: %w", platform, err)
		}
		normalized.Services[platform] = v
	}
	if len(d.Dashboard) > 0 {
		var v any
		if err := json.Unmarshal(d.Dashboard, &v); err != nil {
			return nil, fmt.Errorf("dashboard layout is not valid JSON: %w", err)
		}
		normalized.Dashboard = v
	}
	return json.Marshal(normalized)
}
