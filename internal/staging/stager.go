package staging

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// TelemetryMarker 遥测暂存文件名前缀
	TelemetryMarker = "data"
	// ConfigMarker 配置密文文件名前缀
	ConfigMarker = "config_encrypted"
)

// Stager 暂存目录管理
// 文件名携带类型标记，清理时只删除遥测文件，不碰配置和无关文件
type Stager struct {
	dir    string
	logger *zap.Logger
}

// NewStager 创建 Stager，目录不存在时创建
func NewStager(dir string, logger *zap.Logger) (*Stager, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create staging dir %s: %w", dir, err)
	}
	return &Stager{dir: dir, logger: logger}, nil
}

// Stage 写入暂存文件，返回文件路径
// 文件名: <marker>-<unix秒>-<短uuid>，时间戳供远端 pin 策略解析，
// uuid 保证同一秒内重复暂存不冲突
func (s *Stager) Stage(blob []byte, isConfig bool) (string, error) {
	marker := TelemetryMarker
	if isConfig {
		marker = ConfigMarker
	}
	name := fmt.Sprintf("%s-%d-%s", marker, time.Now().Unix(), uuid.NewString()[:8])
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		return "", fmt.Errorf("failed to write staged file %s: %w", path, err)
	}
	s.logger.Debug("Staged payload",
		zap.String("path", path),
		zap.Int("size", len(blob)),
	)
	return path, nil
}

// Discard 删除单个暂存文件（上传完成后的配置文件等）
func (s *Stager) Discard(path string) error {
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to discard staged file %s: %w", path, err)
	}
	return nil
}

// ClearTelemetry 删除暂存目录中所有遥测标记文件
// 每个发布周期开始时调用，防止常驻进程无限占用磁盘
func (s *Stager) ClearTelemetry() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to list staging dir %s: %w", s.dir, err)
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), TelemetryMarker) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			return fmt.Errorf("failed to remove staged file %s: %w", entry.Name(), err)
		}
		removed++
	}
	if removed > 0 {
		s.logger.Debug("Cleared stale telemetry files", zap.Int("count", removed))
	}
	return nil
}

// Timestamp 从暂存文件名解析 unix 秒时间戳
// 远端目录里的文件沿用暂存文件名，pin 策略据此比较文件间隔
func Timestamp(name string) (time.Time, bool) {
	parts := strings.Split(filepath.Base(name), "-")
	if len(parts) < 3 {
		return time.Time{}, false
	}
	sec, err := strconv.ParseInt(parts[len(parts)-2], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(sec, 0), true
}
