package service

import "fmt"

// Phase 发布周期阶段
type Phase string

const (
	PhaseClearingStaleFiles  Phase = "clearing_stale_files"
	PhaseCollectingConfig    Phase = "collecting_config"
	PhasePublishingConfig    Phase = "publishing_config"
	PhaseCollectingSnapshot  Phase = "collecting_snapshot"
	PhaseEncrypting          Phase = "encrypting"
	PhaseStaging             Phase = "staging"
	PhaseUploading           Phase = "uploading"
	PhaseRecordingPointer    Phase = "recording_pointer"
)

// CycleError 周期内某阶段的失败
// 周期是后台任务，错误不上抛给调度方；带阶段信息便于测试和诊断定位
type CycleError struct {
	Phase Phase
	Err   error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("publish cycle failed at %s: %v", e.Phase, e.Err)
}

func (e *CycleError) Unwrap() error {
	return e.Err
}

func phaseErr(phase Phase, err error) error {
	return &CycleError{Phase: phase, Err: err}
}
