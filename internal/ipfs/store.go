package ipfs

import (
	"context"
	"path/filepath"
	"sort"
	"time"

	"homelink-publisher/internal/staging"

	"go.uber.org/zap"
)

// AddResult 一次上传的结果
type AddResult struct {
	CID  string
	Size int64
}

// Store 带远端目录维护策略的内容存储
// 上传的文件按暂存文件名挂入节点 MFS 目录，作为保留和巡检的依据：
// 遥测目录限量，最旧先删；遥测每天保留一份，其余随下次上传替换；
// 配置目录只保留最新一份
type Store struct {
	client       *Client
	telemetryDir string
	configDir    string
	maxFiles     int
	keepInterval time.Duration
	logger       *zap.Logger
}

// NewStore 创建内容存储
func NewStore(client *Client, telemetryDir, configDir string, maxFiles int, logger *zap.Logger) *Store {
	return &Store{
		client:       client,
		telemetryDir: telemetryDir,
		configDir:    configDir,
		maxFiles:     maxFiles,
		keepInterval: 24 * time.Hour,
		logger:       logger,
	}
}

// AddTelemetry 上传遥测文件并维护远端遥测目录
// 上传本身失败返回错误；目录维护失败只记警告，CID 已经有效，
// 指针写入不应被远端目录整理问题阻塞
func (s *Store) AddTelemetry(ctx context.Context, path string) (AddResult, error) {
	cid, size, err := s.client.Add(ctx, path, false)
	if err != nil {
		return AddResult{}, err
	}
	s.maintainTelemetryDir(ctx, cid, path)
	return AddResult{CID: cid, Size: size}, nil
}

func (s *Store) maintainTelemetryDir(ctx context.Context, cid, path string) {
	if err := s.client.FilesMkdir(ctx, s.telemetryDir); err != nil {
		s.logger.Warn("Failed to ensure telemetry dir", zap.Error(err))
		return
	}
	entries, err := s.client.FilesLs(ctx, s.telemetryDir)
	if err != nil {
		s.logger.Warn("Failed to list telemetry dir", zap.Error(err))
		return
	}
	sortByTimestamp(entries)

	// 超限删最旧
	if excess := len(entries) - s.maxFiles; excess > 0 {
		for _, entry := range entries[:excess] {
			if err := s.client.FilesRm(ctx, s.telemetryDir+"/"+entry.Name); err != nil {
				s.logger.Warn("Failed to remove old telemetry entry",
					zap.String("name", entry.Name),
					zap.Error(err),
				)
			} else {
				s.logger.Debug("Deleted old telemetry entry", zap.String("name", entry.Name))
			}
		}
		entries = entries[excess:]
	}

	keep := s.shouldKeep(entries, path)
	if err := s.client.FilesCp(ctx, cid, s.telemetryDir+"/"+filepath.Base(path)); err != nil {
		s.logger.Warn("Failed to link telemetry into MFS", zap.Error(err))
		return
	}
	if !keep && len(entries) > 0 {
		newest := entries[len(entries)-1]
		if err := s.client.FilesRm(ctx, s.telemetryDir+"/"+newest.Name); err != nil {
			s.logger.Warn("Failed to replace previous telemetry entry",
				zap.String("name", newest.Name),
				zap.Error(err),
			)
		}
	}
}

// shouldKeep 本次上传是否长期保留
// 与目录中最新条目的时间间隔超过保留周期才保留，否则替换上一条
func (s *Store) shouldKeep(entries []FileEntry, path string) bool {
	if len(entries) == 0 {
		return true
	}
	current, ok := staging.Timestamp(path)
	if !ok {
		return true
	}
	last, ok := staging.Timestamp(entries[len(entries)-1].Name)
	if !ok {
		return true
	}
	return current.Sub(last) > s.keepInterval
}

// AddConfig 上传配置文件，远端配置目录只保留最新一份
func (s *Store) AddConfig(ctx context.Context, path string) (AddResult, error) {
	cid, size, err := s.client.Add(ctx, path, false)
	if err != nil {
		return AddResult{}, err
	}

	if err := s.client.FilesMkdir(ctx, s.configDir); err != nil {
		s.logger.Warn("Failed to ensure config dir", zap.Error(err))
		return AddResult{CID: cid, Size: size}, nil
	}
	entries, lsErr := s.client.FilesLs(ctx, s.configDir)
	if lsErr != nil {
		s.logger.Warn("Failed to list config dir", zap.Error(lsErr))
		entries = nil
	}
	if err := s.client.FilesCp(ctx, cid, s.configDir+"/"+filepath.Base(path)); err != nil {
		s.logger.Warn("Failed to link config into MFS", zap.Error(err))
		return AddResult{CID: cid, Size: size}, nil
	}
	for _, entry := range entries {
		if err := s.client.FilesRm(ctx, s.configDir+"/"+entry.Name); err != nil {
			s.logger.Warn("Failed to remove previous config entry",
				zap.String("name", entry.Name),
				zap.Error(err),
			)
		}
	}
	return AddResult{CID: cid, Size: size}, nil
}

func sortByTimestamp(entries []FileEntry) {
	sort.Slice(entries, func(i, j int) bool {
		ti, iok := staging.Timestamp(entries[i].Name)
		tj, jok := staging.Timestamp(entries[j].Name)
		if iok && jok && !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return entries[i].Name < entries[j].Name
	})
}
