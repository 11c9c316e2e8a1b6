package service

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"homelink-publisher/internal/configwatch"
	"homelink-publisher/internal/hub"
	"homelink-publisher/internal/ipfs"
	"homelink-publisher/internal/ledger"
	"homelink-publisher/internal/models"

	"go.uber.org/zap"
)

// SnapshotCollector 快照收集
type SnapshotCollector interface {
	Collect(ctx context.Context, twinID int) (*models.Snapshot, error)
}

// ConfigDetector 配置变更检测
type ConfigDetector interface {
	MaybeRepublish(ctx context.Context, doc *models.ConfigDocument) (*configwatch.Decision, error)
}

// PayloadEncryptor 载荷加密
type PayloadEncryptor interface {
	Encrypt(plaintext []byte) ([]byte, error)
}

// Stager 暂存目录管理
type Stager interface {
	Stage(blob []byte, isConfig bool) (string, error)
	Discard(path string) error
	ClearTelemetry() error
}

// Uploader 内容寻址上传
type Uploader interface {
	AddTelemetry(ctx context.Context, path string) (ipfs.AddResult, error)
	AddConfig(ctx context.Context, path string) (ipfs.AddResult, error)
}

// Deps Publisher 的协作方
type Deps struct {
	Collector   SnapshotCollector
	Detector    ConfigDetector
	Descriptors hub.DescriptorSource
	Encryptor   PayloadEncryptor
	Stager      Stager
	Uploader    Uploader
	Ledger      ledger.Client
}

// Publisher 发布编排器
// 每个周期：清理过期暂存文件 → 配置检测与发布 → 快照收集 → 加密 → 暂存
// → 上传 → 写账本指针。任一阶段失败即终止本周期，下个周期就是重试。
// 暂存目录和账户 nonce 序列都没有并发写纪律，周期间互斥，后到的 tick 跳过。
type Publisher struct {
	deps         Deps
	twinID       int
	cycleTimeout time.Duration
	logger       *zap.Logger

	inFlight atomic.Bool
	wg       sync.WaitGroup
}

// NewPublisher 创建编排器
// cycleTimeout 为 0 时不对周期设截止时间
func NewPublisher(deps Deps, twinID int, cycleTimeout time.Duration, logger *zap.Logger) *Publisher {
	return &Publisher{
		deps:         deps,
		twinID:       twinID,
		cycleTimeout: cycleTimeout,
		logger:       logger,
	}
}

// RunCycle 执行一个发布周期
// 上一周期未结束时直接返回 nil（跳过，不排队）
func (p *Publisher) RunCycle(ctx context.Context) error {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.logger.Warn("Previous publish cycle still running, skipping tick")
		return nil
	}
	p.wg.Add(1)
	defer func() {
		p.inFlight.Store(false)
		p.wg.Done()
	}()

	if p.cycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cycleTimeout)
		defer cancel()
	}

	if err := p.deps.Stager.ClearTelemetry(); err != nil {
		return phaseErr(PhaseClearingStaleFiles, err)
	}

	if err := p.publishConfig(ctx); err != nil {
		return err
	}

	snapshot, err := p.deps.Collector.Collect(ctx, p.twinID)
	if err != nil {
		return phaseErr(PhaseCollectingSnapshot, err)
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return phaseErr(PhaseEncrypting, err)
	}
	blob, err := p.deps.Encryptor.Encrypt(payload)
	if err != nil {
		return phaseErr(PhaseEncrypting, err)
	}

	path, err := p.deps.Stager.Stage(blob, false)
	if err != nil {
		return phaseErr(PhaseStaging, err)
	}

	result, err := p.deps.Uploader.AddTelemetry(ctx, path)
	if err != nil {
		return phaseErr(PhaseUploading, err)
	}

	txHash, err := p.deps.Ledger.RecordDatalog(ctx, result.CID)
	if err != nil {
		// 上传已成功：CID 有效但无指针，本周期不重试，下个周期重新采集上传
		p.logger.Warn("Telemetry uploaded but datalog write failed, CID left unreferenced",
			zap.String("cid", result.CID),
			zap.Error(err),
		)
		return phaseErr(PhaseRecordingPointer, err)
	}
	p.orderStorage(ctx, result)

	p.logger.Info("Telemetry published",
		zap.String("cid", result.CID),
		zap.String("tx_hash", txHash),
		zap.Int("device_count", len(snapshot.Devices)),
	)
	return nil
}

// publishConfig 配置检测与发布
// 指针每周期重申；密文在内容未变时来自缓存，加密被跳过
func (p *Publisher) publishConfig(ctx context.Context) error {
	services, err := p.deps.Descriptors.ServiceDescriptions(ctx)
	if err != nil {
		return phaseErr(PhaseCollectingConfig, err)
	}
	dashboard, err := p.deps.Descriptors.DashboardLayout(ctx)
	if err != nil {
		return phaseErr(PhaseCollectingConfig, err)
	}

	doc := &models.ConfigDocument{
		Services:  services,
		Dashboard: dashboard,
		TwinID:    p.twinID,
	}
	decision, err := p.deps.Detector.MaybeRepublish(ctx, doc)
	if err != nil {
		return phaseErr(PhaseCollectingConfig, err)
	}
	if decision.Skip {
		p.logger.Debug("No config to publish this cycle")
		return nil
	}

	path, err := p.deps.Stager.Stage(decision.Blob, true)
	if err != nil {
		return phaseErr(PhasePublishingConfig, err)
	}
	result, err := p.deps.Uploader.AddConfig(ctx, path)
	if err != nil {
		return phaseErr(PhasePublishingConfig, err)
	}
	// 配置暂存文件不归遥测清理管，上传完即删
	if err := p.deps.Stager.Discard(path); err != nil {
		p.logger.Warn("Failed to remove staged config file", zap.Error(err))
	}

	if err := p.deps.Ledger.SetTwinTopic(ctx, result.CID, p.twinID); err != nil {
		// 磁盘上已是新密文而 twin 主题还指向旧 CID，两者失配直到下次成功
		p.logger.Warn("Config uploaded but twin topic not updated, topic diverges from cached ciphertext",
			zap.String("cid", result.CID),
			zap.Int("twin_id", p.twinID),
			zap.Error(err),
		)
		return phaseErr(PhasePublishingConfig, err)
	}
	p.orderStorage(ctx, result)

	p.logger.Info("Config published",
		zap.String("cid", result.CID),
		zap.Bool("reencrypted", decision.Reencrypted),
	)
	return nil
}

// orderStorage 存储下单尽力而为，失败不影响本周期结果
func (p *Publisher) orderStorage(ctx context.Context, result ipfs.AddResult) {
	if err := p.deps.Ledger.OrderStorage(ctx, result.CID, result.Size); err != nil {
		p.logger.Warn("Failed to order storage for CID",
			zap.String("cid", result.CID),
			zap.Error(err),
		)
	}
}

// Wait 等待在途周期结束
func (p *Publisher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
