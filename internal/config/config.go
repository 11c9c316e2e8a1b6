package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
)

// Config 发布服务配置
type Config struct {
	// Hub 自动化中枢 REST API 配置
	Hub struct {
		BaseURL        string // 如 "http://127.0.0.1:8123"
		Token          string // 长效访问令牌
		TimeoutSeconds int    // 单次请求超时
	}

	// MQTT statestream 镜像配置（可选，替代 REST 轮询实体状态）
	MQTT struct {
		Enabled     bool
		Broker      string // 如 "tcp://127.0.0.1:1883"
		Username    string
		Password    string
		TopicPrefix string // statestream 前缀，如 "homeassistant/statestream"
		QoS         byte
	}

	// IPFS 节点 HTTP API 配置
	IPFS struct {
		APIAddr           string // 如 "http://127.0.0.1:5001"
		TelemetryDir      string // MFS 中遥测文件目录
		ConfigDir         string // MFS 中配置文件目录
		MaxTelemetryFiles int    // 遥测目录文件数上限，超出删除最旧
		TimeoutSeconds    int
	}

	// Ledger 签名 sidecar 配置
	Ledger struct {
		SidecarURL     string // 如 "http://127.0.0.1:9944"
		TimeoutSeconds int
	}

	// Publisher 发布流水线配置
	Publisher struct {
		Seed                string // 32字节 hex 种子（加密密钥派生）
		TwinID              int    // digital twin 编号
		IntervalMinutes     int    // 发布周期
		StagingDir          string // 遥测暂存目录
		ConfigCacheDir      string // 配置明文+密文缓存目录
		HistoryHours        int    // 历史窗口，默认 24 小时
		HistoryConcurrency  int    // 历史查询并发上限
		CycleTimeoutSeconds int    // 单周期截止时间，0 表示不限
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Hub.BaseURL = getEnv("HUB_BASE_URL", "http://127.0.0.1:8123")
	cfg.Hub.Token = getEnv("HUB_TOKEN", "")
	cfg.Hub.TimeoutSeconds = getEnvInt("HUB_TIMEOUT_SECONDS", 30)

	cfg.MQTT.Enabled = getEnv("MQTT_ENABLED", "false") == "true"
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://127.0.0.1:1883")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.TopicPrefix = getEnv("MQTT_TOPIC_PREFIX", "homeassistant/statestream")
	cfg.MQTT.QoS = 1

	cfg.IPFS.APIAddr = getEnv("IPFS_API_ADDR", "http://127.0.0.1:5001")
	cfg.IPFS.TelemetryDir = getEnv("IPFS_TELEMETRY_DIR", "/ha_telemetry")
	cfg.IPFS.ConfigDir = getEnv("IPFS_CONFIG_DIR", "/ha_config")
	cfg.IPFS.MaxTelemetryFiles = getEnvInt("IPFS_MAX_TELEMETRY_FILES", 50)
	cfg.IPFS.TimeoutSeconds = getEnvInt("IPFS_TIMEOUT_SECONDS", 60)

	cfg.Ledger.SidecarURL = getEnv("LEDGER_SIDECAR_URL", "http://127.0.0.1:9944")
	cfg.Ledger.TimeoutSeconds = getEnvInt("LEDGER_TIMEOUT_SECONDS", 60)

	cfg.Publisher.Seed = getEnv("PUBLISHER_SEED", "")
	cfg.Publisher.TwinID = getEnvInt("PUBLISHER_TWIN_ID", 0)
	cfg.Publisher.IntervalMinutes = getEnvInt("PUBLISHER_INTERVAL_MINUTES", 10)
	cfg.Publisher.StagingDir = getEnv("PUBLISHER_STAGING_DIR", "/var/lib/homelink/staging")
	cfg.Publisher.ConfigCacheDir = getEnv("PUBLISHER_CONFIG_CACHE_DIR", "/var/lib/homelink/config")
	cfg.Publisher.HistoryHours = getEnvInt("PUBLISHER_HISTORY_HOURS", 24)
	cfg.Publisher.HistoryConcurrency = getEnvInt("PUBLISHER_HISTORY_CONCURRENCY", 8)
	cfg.Publisher.CycleTimeoutSeconds = getEnvInt("PUBLISHER_CYCLE_TIMEOUT_SECONDS", 0)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

// Validate 校验必填项
// 密钥校验属于安装阶段，必须在这里快速失败，而不是在周期任务里静默报错
func (c *Config) Validate() error {
	if c.Hub.Token == "" {
		return fmt.Errorf("HUB_TOKEN is required")
	}
	if c.Publisher.Seed == "" {
		return fmt.Errorf("PUBLISHER_SEED is required")
	}
	raw, err := hex.DecodeString(c.Publisher.Seed)
	if err != nil {
		return fmt.Errorf("PUBLISHER_SEED must be hex encoded: %w", err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("PUBLISHER_SEED must decode to 32 bytes, got %d", len(raw))
	}
	if c.Publisher.IntervalMinutes <= 0 {
		return fmt.Errorf("PUBLISHER_INTERVAL_MINUTES must be positive")
	}
	if c.Publisher.HistoryConcurrency <= 0 {
		return fmt.Errorf("PUBLISHER_HISTORY_CONCURRENCY must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return defaultValue
}
