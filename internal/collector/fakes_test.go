package collector_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"homelink-publisher/internal/hub"
)

var errUnavailable = errors.New("source unavailable")

// fakeHub 仅用于单元测试（内存版注册表+状态+历史）
type fakeHub struct {
	mu sync.Mutex

	entities    []hub.EntityRef
	entitiesErr error

	deviceNames map[string]string

	states   map[string]*hub.StateValue
	stateErr error

	histories  map[string][]hub.HistoryPoint
	historyErr error

	historyCalls   int
	inFlight       int
	maxInFlight    int
	historyLatency time.Duration
}

func newFakeHub() *fakeHub {
	return &fakeHub{
		deviceNames: make(map[string]string),
		states:      make(map[string]*hub.StateValue),
		histories:   make(map[string][]hub.HistoryPoint),
	}
}

func (f *fakeHub) Entities(ctx context.Context) ([]hub.EntityRef, error) {
	if f.entitiesErr != nil {
		return nil, f.entitiesErr
	}
	return f.entities, nil
}

func (f *fakeHub) DeviceName(ctx context.Context, deviceID string) (string, error) {
	name, ok := f.deviceNames[deviceID]
	if !ok {
		return "", errUnavailable
	}
	return name, nil
}

func (f *fakeHub) CurrentState(ctx context.Context, entityID string) (*hub.StateValue, error) {
	if f.stateErr != nil {
		return nil, f.stateErr
	}
	return f.states[entityID], nil
}

func (f *fakeHub) HistoryInRange(ctx context.Context, entityID string, start, end time.Time, includeBoundary bool) ([]hub.HistoryPoint, error) {
	f.mu.Lock()
	f.historyCalls++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	if f.historyLatency > 0 {
		time.Sleep(f.historyLatency)
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.histories[entityID], nil
}
