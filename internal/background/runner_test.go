package background

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunnerExecutesTasks(t *testing.T) {
	r := NewRunner(2, 10, time.Second)
	var n atomic.Int32
	for i := 0; i < 5; i++ {
		assert.True(t, r.Go("count", func(ctx context.Context) error {
			n.Add(1)
			return nil
		}))
	}
	r.Close()
	assert.Equal(t, int32(5), n.Load())
}

func TestRunnerSwallowsErrorsAndPanics(t *testing.T) {
	r := NewRunner(1, 10, time.Second)
	var after atomic.Bool
	r.Go("fails", func(ctx context.Context) error { return errors.New("boom") })
	r.Go("panics", func(ctx context.Context) error { panic("boom") })
	r.Go("after", func(ctx context.Context) error {
		after.Store(true)
		return nil
	})
	r.Close()
	assert.True(t, after.Load())
}

func TestRunnerDropsWhenFull(t *testing.T) {
	r := NewRunner(1, 1, time.Second)
	release := make(chan struct{})
	started := make(chan struct{})
	r.Go("blocker", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started

	assert.True(t, r.Go("queued", func(ctx context.Context) error { return nil }))
	assert.False(t, r.Go("dropped", func(ctx context.Context) error { return nil }))

	close(release)
	r.Close()
}

func TestRunnerTaskTimeout(t *testing.T) {
	r := NewRunner(1, 1, 10*time.Millisecond)
	done := make(chan error, 1)
	r.Go("slow", func(ctx context.Context) error {
		<-ctx.Done()
		done <- ctx.Err()
		return ctx.Err()
	})
	r.Close()
	assert.ErrorIs(t, <-done, context.DeadlineExceeded)
}

func TestRunnerDropsAfterClose(t *testing.T) {
	r := NewRunner(1, 4, time.Second)
	r.Close()

	var ran atomic.Bool
	assert.NotPanics(t, func() {
		assert.False(t, r.Go("late", func(ctx context.Context) error {
			ran.Store(true)
			return nil
		}))
	})
	assert.False(t, ran.Load())
	assert.NotPanics(t, r.Close, "close is idempotent")
}

func TestRunnerConcurrentGoAndClose(t *testing.T) {
	r := NewRunner(2, 8, time.Second)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			r.Go("spin", func(ctx context.Context) error { return nil })
		}
	}()
	r.Close()
	<-done
}
