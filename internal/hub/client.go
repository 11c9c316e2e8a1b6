package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Client hub REST API 客户端
type Client struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewClient 创建 hub 客户端
func NewClient(baseURL, token string, timeout time.Duration, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(token)

	return &Client{
		httpClient: client,
		logger:     logger,
	}
}

type stateResponse struct {
	EntityID   string         `json:"entity_id"`
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes"`
}

// CurrentState 查询实体当前状态，实体不存在时返回 (nil, nil)
func (c *Client) CurrentState(ctx context.Context, entityID string) (*StateValue, error) {
	var state stateResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&state).
		Get("/api/states/" + entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to get state of %s: %w", entityID, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if resp.IsError() {
		return nil, fmt.Errorf("hub returned %d for state of %s", resp.StatusCode(), entityID)
	}

	value := &StateValue{State: state.State}
	if units, ok := state.Attributes["unit_of_measurement"]; ok {
		value.Units = fmt.Sprintf("%v", units)
	}
	return value, nil
}

// HistoryInRange 查询实体历史
func (c *Client) HistoryInRange(ctx context.Context, entityID string, start, end time.Time, includeBoundary bool) ([]HistoryPoint, error) {
	req := c.httpClient.R().
		SetContext(ctx).
		SetQueryParam("filter_entity_id", entityID).
		SetQueryParam("end_time", end.UTC().Format(time.RFC3339)).
		SetQueryParam("no_attributes", "true")
	if !includeBoundary {
		req.SetQueryParam("skip_initial_state", "true")
	}

	// 响应按实体分组：[[point, point, ...]]
	var grouped [][]HistoryPoint
	resp, err := req.
		SetResult(&grouped).
		Get("/api/history/period/" + start.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to get history of %s: %w", entityID, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("hub returned %d for history of %s", resp.StatusCode(), entityID)
	}
	if len(grouped) == 0 {
		return nil, nil
	}
	return grouped[0], nil
}

// Entities 列出实体注册表
func (c *Client) Entities(ctx context.Context) ([]EntityRef, error) {
	var entities []EntityRef
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&entities).
		Get("/api/registry/entities")
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("hub returned %d for entity registry", resp.StatusCode())
	}
	return entities, nil
}

type deviceResponse struct {
	DeviceID   string `json:"device_id"`
	Name       string `json:"name"`
	NameByUser string `json:"name_by_user"`
}

// DeviceName 查询设备显示名，用户命名优先
func (c *Client) DeviceName(ctx context.Context, deviceID string) (string, error) {
	var device deviceResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&device).
		Get("/api/registry/devices/" + deviceID)
	if err != nil {
		return "", fmt.Errorf("failed to get device %s: %w", deviceID, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("hub returned %d for device %s", resp.StatusCode(), deviceID)
	}
	if device.NameByUser != "" {
		return device.NameByUser, nil
	}
	return device.Name, nil
}

type serviceDomain struct {
	Domain   string          `json:"domain"`
	Services json.RawMessage `json:"services"`
}

// ServiceDescriptions 平台名→服务描述
// 只保留注册表中至少有一个实体的平台（实体 ID 的点号前缀即平台名）
func (c *Client) ServiceDescriptions(ctx context.Context) (map[string]json.RawMessage, error) {
	var domains []serviceDomain
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&domains).
		Get("/api/services")
	if err != nil {
		return nil, fmt.Errorf("failed to get service descriptions: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("hub returned %d for services", resp.StatusCode())
	}

	entities, err := c.Entities(ctx)
	if err != nil {
		return nil, err
	}
	platforms := make(map[string]bool, len(entities))
	for _, entity := range entities {
		if i := strings.Index(entity.EntityID, "."); i > 0 {
			platforms[entity.EntityID[:i]] = true
		}
	}

	services := make(map[string]json.RawMessage)
	for _, domain := range domains {
		if platforms[domain.Domain] {
			services[domain.Domain] = domain.Services
		}
	}
	return services, nil
}

// DashboardLayout 获取当前仪表盘布局
func (c *Client) DashboardLayout(ctx context.Context) (json.RawMessage, error) {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		Get("/api/lovelace/config")
	if err != nil {
		return nil, fmt.Errorf("failed to get dashboard layout: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		// hub 可能没有配置仪表盘
		return nil, nil
	}
	if resp.IsError() {
		return nil, fmt.Errorf("hub returned %d for dashboard layout", resp.StatusCode())
	}
	return json.RawMessage(resp.Body()), nil
}
