package engine

import (
	"time"

	"go.uber.org/zap"
)

// Observer receives stage lifecycle events from the engine. Implementations
// must be safe for use from a single session goroutine; the engine never
// calls an observer concurrently within one run.
type Observer interface {
	StageStarted(sessionID, stage string)
	StageCompleted(sessionID, stage string, elapsed time.Duration, metadata map[string]any)
	StageFailed(sessionID, stage string, elapsed time.Duration, err error)
	StageSkipped(sessionID, stage, reason string)
}

// ZapObserver emits stage events through the global zap logger. It is the
// default when no observer is injected.
type ZapObserver struct{}

func (ZapObserver) StageStarted(sessionID, stage string) {
	zap.L().Debug("stage started",
		zap.String("session_id", sessionID),
		zap.String("stage", stage),
	)
}

func (ZapObserver) StageCompleted(sessionID, stage string, elapsed time.Duration, metadata map[string]any) {
	zap.L().Info("stage complete",
		zap.String("session_id", sessionID),
		zap.String("stage", stage),
		zap.Duration("elapsed", elapsed),
		zap.Any("metadata", metadata),
	)
}

func (ZapObserver) StageFailed(sessionID, stage string, elapsed time.Duration, err error) {
	zap.L().Warn("stage failed",
		zap.String("session_id", sessionID),
		zap.String("stage", stage),
		zap.Duration("elapsed", elapsed),
		zap.Error(err),
	)
}

func (ZapObserver) StageSkipped(sessionID, stage, reason string) {
	zap.L().Debug("stage skipped",
		zap.String("session_id", sessionID),
		zap.String("stage", stage),
		zap.String("reason", reason),
	)
}

// NopObserver discards all stage events.
type NopObserver struct{}

func (NopObserver) StageStarted(string, string) {}

func (NopObserver) StageCompleted(string, string, time.Duration, map[string]any) {}

func (NopObserver) StageFailed(string, string, time.Duration, error) {}

func (NopObserver) StageSkipped(string, string, string) {}
