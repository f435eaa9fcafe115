package async

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettleAllSucceed(t *testing.T) {
	outcomes := Settle(context.Background(),
		func(ctx context.Context) (int, error) { return 1, nil },
		func(ctx context.Context) (int, error) { return 2, nil },
		func(ctx context.Context) (int, error) { return 3, nil },
	)

	require.Len(t, outcomes, 3)
	for i, o := range outcomes {
		assert.True(t, o.OK())
		assert.Equal(t, i+1, o.Value)
	}
}

func TestSettlePreservesTaskOrder(t *testing.T) {
	// The slowest task comes first; its outcome must still land at index 0.
	outcomes := Settle(context.Background(),
		func(ctx context.Context) (string, error) {
			time.Sleep(30 * time.Millisecond)
			return "slow", nil
		},
		func(ctx context.Context) (string, error) { return "fast", nil },
	)

	require.Len(t, outcomes, 2)
	assert.Equal(t, "slow", outcomes[0].Value)
	assert.Equal(t, "fast", outcomes[1].Value)
}

func TestSettleFailureDoesNotDiscardSiblings(t *testing.T) {
	boom := errors.New("boom")

	outcomes := Settle(context.Background(),
		func(ctx context.Context) (int, error) { return 0, boom },
		func(ctx context.Context) (int, error) { return 42, nil },
	)

	require.Len(t, outcomes, 2)
	assert.ErrorIs(t, outcomes[0].Err, boom)
	assert.True(t, outcomes[1].OK())
	assert.Equal(t, 42, outcomes[1].Value)
}

func TestSettleRecoversPanics(t *testing.T) {
	outcomes := Settle(context.Background(),
		func(ctx context.Context) (int, error) { panic("kaboom") },
		func(ctx context.Context) (int, error) { return 7, nil },
	)

	require.Len(t, outcomes, 2)
	assert.Error(t, outcomes[0].Err)
	assert.Contains(t, outcomes[0].Err.Error(), "kaboom")
	assert.Equal(t, 7, outcomes[1].Value)
}

func TestSettleEmpty(t *testing.T) {
	outcomes := Settle[int](context.Background())
	assert.Empty(t, outcomes)
}

func TestGoRunsAndRecovers(t *testing.T) {
	var ran atomic.Bool
	done := make(chan struct{})

	Go(context.Background(), "test-task", func(ctx context.Context) {
		ran.Store(true)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("async task did not run")
	}
	assert.True(t, ran.Load())

	// A panicking task must not crash the process.
	Go(context.Background(), "panicking-task", func(ctx context.Context) {
		panic("kaboom")
	})
	time.Sleep(20 * time.Millisecond)
}
