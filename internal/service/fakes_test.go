package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"homelink-publisher/internal/configwatch"
	"homelink-publisher/internal/ipfs"
	"homelink-publisher/internal/models"
)

var errBoom = errors.New("boom")

// fakeCollector 仅用于单元测试
type fakeCollector struct {
	snapshot *models.Snapshot
	err      error
	calls    int

	// 并发测试用：started 通知进入，release 放行
	started chan struct{}
	release chan struct{}
}

func (f *fakeCollector) Collect(ctx context.Context, twinID int) (*models.Snapshot, error) {
	f.calls++
	if f.started != nil {
		f.started <- struct{}{}
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.snapshot != nil {
		return f.snapshot, nil
	}
	return &models.Snapshot{
		Devices: map[string]models.DeviceTelemetry{
			"dev-1": {Name: "Device One", Entities: map[string]models.EntityTelemetry{}},
		},
		TwinID: twinID,
	}, nil
}

type fakeDescriptors struct {
	services  map[string]json.RawMessage
	dashboard json.RawMessage
	err       error
}

func (f *fakeDescriptors) ServiceDescriptions(ctx context.Context) (map[string]json.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.services, nil
}

func (f *fakeDescriptors) DashboardLayout(ctx context.Context) (json.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.dashboard, nil
}

type fakeDetector struct {
	decision *configwatch.Decision
	err      error
	calls    int
}

func (f *fakeDetector) MaybeRepublish(ctx context.Context, doc *models.ConfigDocument) (*configwatch.Decision, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.decision != nil {
		return f.decision, nil
	}
	return &configwatch.Decision{Blob: []byte("config-blob"), Reencrypted: true}, nil
}

type fakeEncryptor struct {
	calls int
	err   error
}

func (f *fakeEncryptor) Encrypt(plaintext []byte) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.calls++
	return append([]byte("enc:"), plaintext...), nil
}

type fakeStager struct {
	mu         sync.Mutex
	clearCalls int
	staged     []string
	discarded  []string
	counter    int

	clearErr          error
	stageConfigErr    error
	stageTelemetryErr error
}

func (f *fakeStager) Stage(blob []byte, isConfig bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if isConfig && f.stageConfigErr != nil {
		return "", f.stageConfigErr
	}
	if !isConfig && f.stageTelemetryErr != nil {
		return "", f.stageTelemetryErr
	}
	f.counter++
	marker := "data"
	if isConfig {
		marker = "config_encrypted"
	}
	path := fmt.Sprintf("/staging/%s-%d", marker, f.counter)
	f.staged = append(f.staged, path)
	return path, nil
}

func (f *fakeStager) Discard(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discarded = append(f.discarded, path)
	return nil
}

func (f *fakeStager) ClearTelemetry() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.clearErr != nil {
		return f.clearErr
	}
	f.clearCalls++
	return nil
}

type fakeUploader struct {
	mu             sync.Mutex
	telemetryPaths []string
	configPaths    []string
	counter        int

	telemetryErr error
	configErr    error
}

func (f *fakeUploader) AddTelemetry(ctx context.Context, path string) (ipfs.AddResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.telemetryErr != nil {
		return ipfs.AddResult{}, f.telemetryErr
	}
	f.counter++
	f.telemetryPaths = append(f.telemetryPaths, path)
	return ipfs.AddResult{CID: fmt.Sprintf("QmTele%d", f.counter), Size: 100}, nil
}

func (f *fakeUploader) AddConfig(ctx context.Context, path string) (ipfs.AddResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.configErr != nil {
		return ipfs.AddResult{}, f.configErr
	}
	f.counter++
	f.configPaths = append(f.configPaths, path)
	return ipfs.AddResult{CID: fmt.Sprintf("QmCfg%d", f.counter), Size: 50}, nil
}

type twinTopic struct {
	cid    string
	twinID int
}

type fakeLedger struct {
	mu       sync.Mutex
	datalogs []string
	topics   []twinTopic
	orders   int

	datalogErr error
	topicErr   error
	orderErr   error
}

func (f *fakeLedger) RecordDatalog(ctx context.Context, cid string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.datalogErr != nil {
		return "", f.datalogErr
	}
	f.datalogs = append(f.datalogs, cid)
	return "0xtx", nil
}

func (f *fakeLedger) SetTwinTopic(ctx context.Context, cid string, twinID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.topicErr != nil {
		return f.topicErr
	}
	f.topics = append(f.topics, twinTopic{cid: cid, twinID: twinID})
	return nil
}

func (f *fakeLedger) OrderStorage(ctx context.Context, cid string, size int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.orderErr != nil {
		return f.orderErr
	}
	f.orders++
	return nil
}

// fakeCacheStore 内存版配置缓存，配合真实 Detector 做两周期属性测试
type fakeCacheStore struct {
	sum  string
	blob []byte
}

func (f *fakeCacheStore) Sum() (string, error) {
	if f.sum == "" {
		return "", configwatch.ErrCacheMiss
	}
	return f.sum, nil
}

func (f *fakeCacheStore) Load() ([]byte, error) {
	if f.blob == nil {
		return nil, configwatch.ErrCacheMiss
	}
	return f.blob, nil
}

func (f *fakeCacheStore) Store(sum string, plaintext, blob []byte) error {
	f.sum = sum
	f.blob = blob
	return nil
}
