package configwatch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"homelink-publisher/internal/staging"
)

const (
	documentFile = "config"
	sumFile      = "config.sum"
)

// DiskStore 磁盘缓存实现
// 目录中固定三个文件：明文文档、内容哈希、密文（密文沿用配置标记前缀，
// 与暂存目录的清理规则保持一致）
type DiskStore struct {
	dir string
}

// NewDiskStore 创建磁盘缓存，目录不存在时创建
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create config cache dir %s: %w", dir, err)
	}
	return &DiskStore{dir: dir}, nil
}

func (s *DiskStore) blobPath() string {
	return filepath.Join(s.dir, staging.ConfigMarker)
}

// Sum 读取上次发布文档的内容哈希
func (s *DiskStore) Sum() (string, error) {
	raw, err := os.ReadFile(filepath.Join(s.dir, sumFile))
	if os.IsNotExist(err) {
		return "", ErrCacheMiss
	}
	if err != nil {
		return "", fmt.Errorf("failed to read config sum: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// Load 读取上次发布的密文
func (s *DiskStore) Load() ([]byte, error) {
	raw, err := os.ReadFile(s.blobPath())
	if os.IsNotExist(err) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached config ciphertext: %w", err)
	}
	return raw, nil
}

// Store 记录新文档的哈希、明文和密文
// 哈希最后写入：中途失败时下个周期按缓存未命中重新加密
func (s *DiskStore) Store(sum string, plaintext, blob []byte) error {
	if err := os.WriteFile(filepath.Join(s.dir, documentFile), plaintext, 0o600); err != nil {
		return fmt.Errorf("failed to write config document: %w", err)
	}
	if err := os.WriteFile(s.blobPath(), blob, 0o600); err != nil {
		return fmt.Errorf("failed to write config ciphertext: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, sumFile), []byte(sum), 0o600); err != nil {
		return fmt.Errorf("failed to write config sum: %w", err)
	}
	return nil
}
