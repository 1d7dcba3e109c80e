package workerpool

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestSubmitTaskRunsAllTasks(t *testing.T) {
	pool := NewWorkerPool(WorkerPoolConfig{MaxWorkers: 2, QueueSize: 10}, testLogger())
	require.NoError(t, pool.Start())
	defer pool.Stop()

	var completed int64
	done := make(chan struct{}, 5)

	for i := 0; i < 5; i++ {
		err := pool.SubmitTask(Task{
			ID: "task",
			Execute: func(ctx context.Context) error {
				atomic.AddInt64(&completed, 1)
				done <- struct{}{}
				return nil
			},
		})
		require.NoError(t, err)
	}

	for i := 0; i < 5; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for task completion")
		}
	}

	assert.Equal(t, int64(5), atomic.LoadInt64(&completed))
}

func TestSubmitTaskFailsWhenPoolNotStarted(t *testing.T) {
	pool := NewWorkerPool(WorkerPoolConfig{MaxWorkers: 1}, testLogger())
	err := pool.SubmitTask(Task{ID: "x", Execute: func(ctx context.Context) error { return nil }})
	assert.ErrorIs(t, err, ErrPoolNotRunning)
}

func TestFailedTaskIncrementsFailedCounter(t *testing.T) {
	pool := NewWorkerPool(WorkerPoolConfig{MaxWorkers: 1, QueueSize: 2}, testLogger())
	require.NoError(t, pool.Start())
	defer pool.Stop()

	done := make(chan struct{})
	require.NoError(t, pool.SubmitTask(Task{
		ID: "fails",
		Execute: func(ctx context.Context) error {
			defer close(done)
			return assert.AnError
		},
	}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for task")
	}

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(1), pool.GetStats().FailedTasks)
}
