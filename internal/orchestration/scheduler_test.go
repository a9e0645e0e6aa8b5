package orchestration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerAddAndReplace(t *testing.T) {
	s := NewScheduler(nil)
	noop := func(context.Context) error { return nil }

	require.NoError(t, s.Add("stg_api_datto_rmm_devices", "0 * * * *", noop))
	require.NoError(t, s.Add("stg_api_datto_rmm_devices", "@daily", noop))
	require.NoError(t, s.Add("stg_api_datto_rmm_account", "*/15 * * * *", noop))

	s.Start()
	defer s.Stop(context.Background())

	flows := s.Flows()
	assert.Len(t, flows, 2)
	assert.Contains(t, flows, "stg_api_datto_rmm_devices")
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := NewScheduler(nil)
	err := s.Add("stg_api_datto_rmm_devices", "every hour", func(context.Context) error { return nil })
	assert.ErrorContains(t, err, "stg_api_datto_rmm_devices")
	assert.Empty(t, s.Flows())
}

func TestSchedulerStopCancelsRunningFlow(t *testing.T) {
	s := NewScheduler(nil)
	started := make(chan struct{})
	cancelled := make(chan error, 1)
	var once sync.Once
	require.NoError(t, s.Add("stg_api_datto_rmm_devices", "@every 1s", func(ctx context.Context) error {
		once.Do(func() { close(started) })
		<-ctx.Done()
		cancelled <- ctx.Err()
		return ctx.Err()
	}))

	s.Start()
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("flow never ran")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Stop(stopCtx)
	require.NoError(t, stopCtx.Err())

	select {
	case err := <-cancelled:
		assert.ErrorIs(t, err, context.Canceled)
	default:
		t.Fatal("running flow was not cancelled")
	}
}
