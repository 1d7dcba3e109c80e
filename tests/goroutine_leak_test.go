package tests

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"

	"dsxia/pkg/workerpool"

	"github.com/sirupsen/logrus"
)

// TestNoGoroutineLeaks runs a worker pool through a full start/submit/stop
// cycle and checks that no goroutine it spawned is still alive afterward.
func TestNoGoroutineLeaks(t *testing.T) {
	defer goleak.VerifyNone(t,
		goleak.IgnoreTopFunction("github.com/fsnotify/fsnotify.*"),
		goleak.IgnoreTopFunction("github.com/sirupsen/logrus.*"),
	)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	pool := workerpool.NewWorkerPool(workerpool.WorkerPoolConfig{MaxWorkers: 4, QueueSize: 20}, logger)
	require(t, pool.Start() == nil, "pool should start cleanly")

	done := make(chan struct{}, 20)
	for i := 0; i < 20; i++ {
		_ = pool.SubmitTask(workerpool.Task{
			ID: "leak-check",
			Execute: func(ctx context.Context) error {
				done <- struct{}{}
				return nil
			},
		})
	}

	for i := 0; i < 20; i++ {
		<-done
	}

	require(t, pool.Stop() == nil, "pool should stop cleanly")

	time.Sleep(100 * time.Millisecond)
}

func require(t *testing.T, ok bool, msg string) {
	t.Helper()
	if !ok {
		t.Fatal(msg)
	}
}
