package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"homelink-publisher/internal/hub"
	"homelink-publisher/internal/models"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Collector 快照收集器
// 遍历注册表实体，按设备聚合当前状态与历史窗口内的变更
type Collector struct {
	directory   hub.Directory
	states      hub.StateSource
	history     hub.HistorySource
	window      time.Duration
	concurrency int
	logger      *zap.Logger
}

// NewCollector 创建收集器
// window: 历史窗口长度; concurrency: 历史查询并发上限
func NewCollector(
	directory hub.Directory,
	states hub.StateSource,
	history hub.HistorySource,
	window time.Duration,
	concurrency int,
	logger *zap.Logger,
) *Collector {
	return &Collector{
		directory:   directory,
		states:      states,
		history:     history,
		window:      window,
		concurrency: concurrency,
		logger:      logger,
	}
}

type entityResult struct {
	ref       hub.EntityRef
	telemetry models.EntityTelemetry
}

// Collect 构建当前周期的快照
// 无所属设备的实体跳过；无当前状态的实体整条跳过（不以空状态占位）
func (c *Collector) Collect(ctx context.Context, twinID int) (*models.Snapshot, error) {
	entities, err := c.directory.Entities(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}

	end := time.Now()
	start := end.Add(-c.window)

	// 历史查询相互独立，按实体并发，结果合并与完成顺序无关
	var mu sync.Mutex
	var results []entityResult

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for _, entity := range entities {
		if entity.DeviceID == "" {
			continue
		}
		ref := entity
		g.Go(func() error {
			telemetry, ok, err := c.collectEntity(gctx, ref.EntityID, start, end)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			mu.Lock()
			results = append(results, entityResult{ref: ref, telemetry: telemetry})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snapshot := &models.Snapshot{
		Devices: make(map[string]models.DeviceTelemetry),
		TwinID:  twinID,
	}
	for _, result := range results {
		device, ok := snapshot.Devices[result.ref.DeviceID]
		if !ok {
			// 首次遇到该设备时解析显示名并建桶
			name, err := c.directory.DeviceName(ctx, result.ref.DeviceID)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve device %s: %w", result.ref.DeviceID, err)
			}
			device = models.DeviceTelemetry{
				Name:     name,
				Entities: make(map[string]models.EntityTelemetry),
			}
		}
		device.Entities[result.ref.EntityID] = result.telemetry
		snapshot.Devices[result.ref.DeviceID] = device
	}

	c.logger.Debug("Collected snapshot",
		zap.Int("device_count", len(snapshot.Devices)),
		zap.Int("entity_count", len(results)),
	)
	return snapshot, nil
}

// collectEntity 收集单个实体，ok=false 表示该实体本周期跳过
func (c *Collector) collectEntity(ctx context.Context, entityID string, start, end time.Time) (models.EntityTelemetry, bool, error) {
	state, err := c.states.CurrentState(ctx, entityID)
	if err != nil {
		return models.EntityTelemetry{}, false, fmt.Errorf("failed to get state of %s: %w", entityID, err)
	}
	if state == nil {
		return models.EntityTelemetry{}, false, nil
	}

	units := state.Units
	if units == "" {
		units = models.NoUnits
	}

	points, err := c.history.HistoryInRange(ctx, entityID, start, end, true)
	if err != nil {
		return models.EntityTelemetry{}, false, fmt.Errorf("failed to get history of %s: %w", entityID, err)
	}

	// 首条是窗口起点状态的复述，审计只关心窗口内的变更，丢弃
	history := make([]models.StateRecord, 0)
	if len(points) > 1 {
		for _, point := range points[1:] {
			history = append(history, models.StateRecord{
				State: point.State,
				Date:  point.LastChanged.Format(models.HistoryTimeLayout),
			})
		}
	}

	return models.EntityTelemetry{
		Units:   units,
		State:   state.State,
		History: history,
	}, true, nil
}
