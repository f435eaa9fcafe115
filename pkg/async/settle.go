package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/firesafely/marketplace/pkg/logger"
	"go.uber.org/zap"
)

// Task is one unit of concurrent work producing a value of type T.
type Task[T any] func(ctx context.Context) (T, error)

// Outcome holds the result of one settled task.
type Outcome[T any] struct {
	Value T
	Err   error
}

// OK reports whether the task completed without error.
func (o Outcome[T]) OK() bool {
	return o.Err == nil
}

// Settle runs every task concurrently and waits for all of them, returning
// one outcome per task in task order. A failing or panicking task never
// discards its siblings' results; panics are recovered and reported as the
// task's error.
func Settle[T any](ctx context.Context, tasks ...Task[T]) []Outcome[T] {
	outcomes := make([]Outcome[T], len(tasks))

	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func(idx int, t Task[T]) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					outcomes[idx].Err = fmt.Errorf("task panicked: %v", r)
					logger.ErrorContext(ctx, "settled task panicked",
						zap.Int("index", idx),
						zap.Any("panic", r),
						zap.String("stack", string(debug.Stack())),
					)
				}
			}()

			outcomes[idx].Value, outcomes[idx].Err = t(ctx)
		}(i, task)
	}
	wg.Wait()

	return outcomes
}

// Go runs fn in a goroutine with correlation-ID propagation and panic
// recovery. Fire-and-forget work should go through here rather than a bare
// go statement.
func Go(ctx context.Context, taskName string, fn func(ctx context.Context)) {
	correlationID := logger.CorrelationIDFromContext(ctx)
	start := time.Now()

	go func() {
		taskCtx := context.Background()
		if correlationID != "" {
			taskCtx = logger.ContextWithCorrelationID(taskCtx, correlationID)
		}

		defer func() {
			if r := recover(); r != nil {
				logger.ErrorContext(taskCtx, "async task panicked",
					zap.String("task", taskName),
					zap.Any("panic", r),
					zap.String("stack", string(debug.Stack())),
				)
			}
		}()

		fn(taskCtx)

		logger.DebugContext(taskCtx, "async task completed",
			zap.String("task", taskName),
			zap.Duration("duration", time.Since(start)),
		)
	}()
}
