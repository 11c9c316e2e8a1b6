package configwatch

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"homelink-publisher/internal/models"

	"github.com/zeebo/blake3"
	"go.uber.org/zap"
)

// ErrCacheMiss 缓存中没有对应条目
var ErrCacheMiss = errors.New("configwatch: cache miss")

// CacheStore 上次发布配置的缓存
// 以规范化文档的内容哈希为键，而不是靠文件名标记扫描目录
type CacheStore interface {
	// Sum 返回上次发布文档的内容哈希（hex）
	Sum() (string, error)
	// Load 返回上次发布的密文
	Load() ([]byte, error)
	// Store 原子记录新文档的哈希、明文和密文
	Store(sum string, plaintext, blob []byte) error
}

// PayloadEncryptor 载荷加密
type PayloadEncryptor interface {
	Encrypt(plaintext []byte) ([]byte, error)
}

// Decision 配置发布决策
type Decision struct {
	// Skip 本周期无配置可发布（hub 尚无服务和仪表盘，且从未发布过）
	Skip bool
	// Blob 待发布密文（新加密或缓存命中）
	Blob []byte
	// Reencrypted 本次是否执行了加密
	Reencrypted bool
}

// Detector 配置变更检测
// 加密和序列化仪表盘布局是开销大头，内容少变，所以密文按内容哈希缓存；
// 指针每周期都重新确认，加密只在内容变化时执行
type Detector struct {
	store     CacheStore
	encryptor PayloadEncryptor
	logger    *zap.Logger
}

// NewDetector 创建检测器
func NewDetector(store CacheStore, encryptor PayloadEncryptor, logger *zap.Logger) *Detector {
	return &Detector{store: store, encryptor: encryptor, logger: logger}
}

// MaybeRepublish 对比候选文档与上次发布文档，返回发布决策
// 缓存读取失败一律按"已变更"处理：宁可多发一次，不能漏掉真实变更
func (d *Detector) MaybeRepublish(ctx context.Context, doc *models.ConfigDocument) (*Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	canonical, err := doc.Canonical()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize config document: %w", err)
	}
	digest := blake3.Sum256(canonical)
	sum := hex.EncodeToString(digest[:])

	lastSum, err := d.store.Sum()
	if err != nil && !errors.Is(err, ErrCacheMiss) {
		d.logger.Warn("Failed to read cached config sum, treating as changed", zap.Error(err))
	}

	if err == nil && lastSum == sum {
		blob, loadErr := d.store.Load()
		if loadErr == nil {
			d.logger.Debug("Config unchanged, reusing cached ciphertext",
				zap.String("sum", sum),
			)
			return &Decision{Blob: blob, Reencrypted: false}, nil
		}
		d.logger.Warn("Cached config ciphertext unreadable, re-encrypting", zap.Error(loadErr))
	} else if errors.Is(err, ErrCacheMiss) && doc.Empty() {
		// 从未发布过且无内容，本周期没有配置可发
		d.logger.Debug("No config content and no prior publication, skipping")
		return &Decision{Skip: true}, nil
	}

	blob, err := d.encryptor.Encrypt(canonical)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt config document: %w", err)
	}
	if err := d.store.Store(sum, canonical, blob); err != nil {
		return nil, fmt.Errorf("failed to cache config document: %w", err)
	}

	d.logger.Info("Config changed, re-encrypted",
		zap.String("sum", sum),
		zap.Int("size", len(blob)),
	)
	return &Decision{Blob: blob, Reencrypted: true}, nil
}
