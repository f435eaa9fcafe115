// Package alerts carries transient user-facing notices ("toast" messages):
// the one-line feedback shown after an action succeeds or fails. Not to be
// confused with the domain notifications the synchronizer aggregates.
package alerts

import (
	"context"

	"github.com/firesafely/marketplace/pkg/logger"
	"go.uber.org/zap"
)

// Level classifies a transient notice.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notifier delivers a transient notice to the user.
type Notifier interface {
	Notify(ctx context.Context, level Level, message string)
}

// LogNotifier is the default Notifier; headless deployments only log.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, level Level, message string) {
	log := logger.WithContext(ctx)
	switch level {
	case LevelError:
		log.Warn("user notice", zap.String("level", string(level)), zap.String("message", message))
	default:
		log.Info("user notice", zap.String("level", string(level)), zap.String("message", message))
	}
}

// Func adapts a function to the Notifier interface.
type Func func(ctx context.Context, level Level, message string)

func (f Func) Notify(ctx context.Context, level Level, message string) {
	f(ctx, level, message)
}
