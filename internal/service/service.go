package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"homelink-publisher/internal/collector"
	"homelink-publisher/internal/config"
	"homelink-publisher/internal/configwatch"
	"homelink-publisher/internal/crypt"
	"homelink-publisher/internal/hub"
	"homelink-publisher/internal/ipfs"
	"homelink-publisher/internal/ledger"
	"homelink-publisher/internal/staging"

	"go.uber.org/zap"
)

// PublisherService 发布服务：组装协作方并按固定周期驱动编排器
type PublisherService struct {
	config    *config.Config
	logger    *zap.Logger
	publisher *Publisher
	mirror    *hub.Mirror
}

// NewPublisherService 创建发布服务
func NewPublisherService(cfg *config.Config, logger *zap.Logger) (*PublisherService, error) {
	keypair, err := crypt.KeypairFromSeed(cfg.Publisher.Seed)
	if err != nil {
		return nil, fmt.Errorf("failed to derive keypair: %w", err)
	}
	// 自寻址加密：持有种子即可解密，仅作静态数据混淆
	encryptor := crypt.NewSelfEncryptor(keypair)

	hubClient := hub.NewClient(
		cfg.Hub.BaseURL,
		cfg.Hub.Token,
		time.Duration(cfg.Hub.TimeoutSeconds)*time.Second,
		logger,
	)

	// 当前状态来源：镜像启用时走 statestream，否则逐实体走 REST
	var states hub.StateSource = hubClient
	var mirror *hub.Mirror
	if cfg.MQTT.Enabled {
		mirror = hub.NewMirror(hub.MirrorOptions{
			Broker:      cfg.MQTT.Broker,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         cfg.MQTT.QoS,
		}, logger)
		if err := mirror.Start(); err != nil {
			return nil, fmt.Errorf("failed to start statestream mirror: %w", err)
		}
		states = mirror
	}

	snapshotCollector := collector.NewCollector(
		hubClient,
		states,
		hubClient,
		time.Duration(cfg.Publisher.HistoryHours)*time.Hour,
		cfg.Publisher.HistoryConcurrency,
		logger,
	)

	stager, err := staging.NewStager(cfg.Publisher.StagingDir, logger)
	if err != nil {
		return nil, err
	}

	cacheStore, err := configwatch.NewDiskStore(cfg.Publisher.ConfigCacheDir)
	if err != nil {
		return nil, err
	}
	detector := configwatch.NewDetector(cacheStore, encryptor, logger)

	ipfsClient := ipfs.NewClient(
		cfg.IPFS.APIAddr,
		time.Duration(cfg.IPFS.TimeoutSeconds)*time.Second,
		logger,
	)
	contentStore := ipfs.NewStore(
		ipfsClient,
		cfg.IPFS.TelemetryDir,
		cfg.IPFS.ConfigDir,
		cfg.IPFS.MaxTelemetryFiles,
		logger,
	)

	ledgerClient := ledger.NewHTTPClient(
		cfg.Ledger.SidecarURL,
		time.Duration(cfg.Ledger.TimeoutSeconds)*time.Second,
		logger,
	)

	publisher := NewPublisher(Deps{
		Collector:   snapshotCollector,
		Detector:    detector,
		Descriptors: hubClient,
		Encryptor:   encryptor,
		Stager:      stager,
		Uploader:    contentStore,
		Ledger:      ledgerClient,
	},
		cfg.Publisher.TwinID,
		time.Duration(cfg.Publisher.CycleTimeoutSeconds)*time.Second,
		logger,
	)

	return &PublisherService{
		config:    cfg,
		logger:    logger,
		publisher: publisher,
		mirror:    mirror,
	}, nil
}

// Start 启动周期发布，阻塞直到 ctx 取消
func (s *PublisherService) Start(ctx context.Context) error {
	interval := time.Duration(s.config.Publisher.IntervalMinutes) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("Starting publish loop",
		zap.Duration("interval", interval),
		zap.Int("twin_id", s.config.Publisher.TwinID),
	)

	// 启动后先跑一个周期
	s.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

func (s *PublisherService) runCycle(ctx context.Context) {
	if err := s.publisher.RunCycle(ctx); err != nil {
		var cycleErr *CycleError
		if errors.As(err, &cycleErr) {
			s.logger.Error("Publish cycle failed",
				zap.String("phase", string(cycleErr.Phase)),
				zap.Error(cycleErr.Err),
			)
			return
		}
		s.logger.Error("Publish cycle failed", zap.Error(err))
	}
}

// Stop 等待在途周期结束并断开镜像
func (s *PublisherService) Stop(ctx context.Context) error {
	err := s.publisher.Wait(ctx)
	if s.mirror != nil {
		s.mirror.Stop()
	}
	return err
}
