package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printit/orderdesk/pkg/logger"
)

type refresherFunc func(ctx context.Context) error

func (f refresherFunc) Refresh(ctx context.Context) error { return f(ctx) }

func TestResyncJobRunsOnSchedule(t *testing.T) {
	var calls int32
	job := NewResyncJob(refresherFunc(func(ctx context.Context) error {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		atomic.AddInt32(&calls, 1)
		return nil
	}), "@every 1s", time.Second, logger.NewNop())

	require.NoError(t, job.Start())
	defer job.Stop()

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) >= 1
	}, 3*time.Second, 50*time.Millisecond)
}

func TestResyncJobAcceptsSecondsField(t *testing.T) {
	job := NewResyncJob(refresherFunc(func(context.Context) error { return nil }), "*/30 * * * * *", 0, logger.NewNop())
	require.NoError(t, job.Start())
	job.Stop()
}

func TestResyncJobRejectsBadSchedule(t *testing.T) {
	job := NewResyncJob(refresherFunc(func(context.Context) error { return nil }), "whenever", 0, logger.NewNop())
	assert.Error(t, job.Start())
}
