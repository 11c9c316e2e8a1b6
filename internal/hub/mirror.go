package hub

import (
	"context"
	"fmt"
	"strings"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Mirror hub statestream 的内存镜像
// 订阅 hub 通过 MQTT statestream 发布的保留消息，维护实体当前状态，
// 让周期任务不必逐实体轮询 REST 接口；历史和注册表仍走 REST
type Mirror struct {
	client mqtt.Client
	prefix string
	qos    byte
	logger *zap.Logger

	mu     sync.RWMutex
	states map[string]*mirrorEntry
}

type mirrorEntry struct {
	state    string
	hasState bool
	units    string
}

// MirrorOptions Mirror 连接参数
type MirrorOptions struct {
	Broker      string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
}

// NewMirror 创建 statestream 镜像
func NewMirror(opts MirrorOptions, logger *zap.Logger) *Mirror {
	clientOpts := mqtt.NewClientOptions()
	clientOpts.AddBroker(opts.Broker)
	clientOpts.SetClientID("homelink-publisher-" + uuid.NewString()[:8])
	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}
	clientOpts.SetAutoReconnect(true)
	clientOpts.SetCleanSession(true)

	return &Mirror{
		client: mqtt.NewClient(clientOpts),
		prefix: strings.TrimSuffix(opts.TopicPrefix, "/"),
		qos:    opts.QoS,
		logger: logger,
		states: make(map[string]*mirrorEntry),
	}
}

// Start 连接并订阅 statestream 主题
// statestream 消息带 retained 标记，订阅后立即回放全部实体的当前状态
func (m *Mirror) Start() error {
	if token := m.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	topic := m.prefix + "/#"
	if token := m.client.Subscribe(topic, m.qos, func(_ mqtt.Client, msg mqtt.Message) {
		m.Apply(msg.Topic(), msg.Payload())
	}); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, token.Error())
	}
	m.logger.Info("Statestream mirror started", zap.String("topic", topic))
	return nil
}

// Stop 断开 MQTT 连接
func (m *Mirror) Stop() {
	m.client.Disconnect(250)
}

// Apply 处理一条 statestream 消息
// 主题格式: <prefix>/<domain>/<object_id>/<attribute>
func (m *Mirror) Apply(topic string, payload []byte) {
	rest := strings.TrimPrefix(topic, m.prefix+"/")
	if rest == topic {
		return
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 {
		return
	}
	entityID := parts[0] + "." + parts[1]

	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.states[entityID]
	if !ok {
		entry = &mirrorEntry{}
		m.states[entityID] = entry
	}
	switch parts[2] {
	case "state":
		entry.state = string(payload)
		entry.hasState = true
	case "unit_of_measurement":
		entry.units = strings.Trim(string(payload), `"`)
	}
}

// CurrentState 实现 StateSource，未出现在镜像中的实体视为不存在
func (m *Mirror) CurrentState(_ context.Context, entityID string) (*StateValue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.states[entityID]
	if !ok || !entry.hasState {
		return nil, nil
	}
	return &StateValue{State: entry.state, Units: entry.units}, nil
}

// Size 镜像中的实体数，用于启动日志
func (m *Mirror) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.states)
}
