package callback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLooper_FIFO(t *testing.T) {
	t.Parallel()

	looper := NewLooper(testLogger()).Start()
	defer looper.Close()

	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, looper.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}
	looper.Sync()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestLooper_RunsOnOneGoroutine(t *testing.T) {
	t.Parallel()

	looper := NewLooper(testLogger()).Start()
	defer looper.Close()

	var active, maxActive int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			looper.Post(func() {
				mu.Lock()
				active++
				if active > maxActive {
					maxActive = active
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				active--
				mu.Unlock()
			})
		}()
	}
	wg.Wait()
	looper.Sync()

	assert.Equal(t, 1, maxActive)
}

func TestLooper_PanicDoesNotStopLoop(t *testing.T) {
	t.Parallel()

	looper := NewLooper(testLogger()).Start()
	defer looper.Close()

	ran := false
	looper.Post(func() { panic("bad message") })
	looper.Post(func() { ran = true })
	looper.Sync()

	assert.True(t, ran)
}

func TestLooper_Close(t *testing.T) {
	t.Parallel()

	looper := NewLooper(testLogger())
	count := 0
	for i := 0; i < 5; i++ {
		looper.Post(func() { count++ })
	}
	looper.Close()
	assert.False(t, looper.Post(func() { count++ }))

	// Run drains what was posted before Close and then returns
	done := make(chan struct{})
	go func() {
		looper.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("looper did not exit after close")
	}
	assert.Equal(t, 5, count)

	select {
	case <-looper.Done():
	default:
		t.Fatal("done channel not closed")
	}

	// Sync on a drained looper returns immediately
	looper.Sync()
}

func TestLooper_RunStopsOnContext(t *testing.T) {
	t.Parallel()

	looper := NewLooper(testLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		looper.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("looper did not stop on context cancellation")
	}
}

func TestReceiver_Send(t *testing.T) {
	t.Parallel()

	t.Run("delivers on the looper in order", func(t *testing.T) {
		looper := NewLooper(testLogger()).Start()
		defer looper.Close()

		router := newTestRouter("download")
		handler := &downloadHandler{}
		require.NoError(t, router.Append(handler))
		receiver := NewReceiver(looper, router)

		receiver.Send(Start, nil)
		for pct := 10; pct <= 30; pct += 10 {
			receiver.Send(Progress, Payload{KeyProgress: pct})
		}
		receiver.Send(Success, Payload{"path": "f", "bytes": int64(1)})
		receiver.Send(Failure, Payload{KeyCrashMessage: "late"})
		looper.Sync()

		assert.Equal(t, []string{
			"started", "progress 10", "progress 20", "progress 30", "done f 1",
		}, handler.Calls())
		assert.Same(t, router, receiver.Router())
	})

	t.Run("closed looper routes synchronously", func(t *testing.T) {
		looper := NewLooper(testLogger())
		looper.Close()

		router := newTestRouter("download")
		handler := &downloadHandler{}
		require.NoError(t, router.Append(handler))

		NewReceiver(looper, router).Send(Start, nil)
		assert.Equal(t, []string{"started"}, handler.Calls())
	})
}

func TestReceiver_Release(t *testing.T) {
	t.Parallel()

	looper := NewLooper(testLogger()).Start()
	defer looper.Close()

	router := newTestRouter("download")
	handler := &downloadHandler{}
	require.NoError(t, router.Append(handler))
	receiver := NewReceiver(looper, router)

	receiver.Send(Start, nil)
	receiver.Release()
	receiver.Send(Progress, Payload{KeyProgress: 50})
	looper.Sync()

	assert.Equal(t, []string{"started"}, handler.Calls())
	assert.Zero(t, router.Len())
	assert.False(t, router.Done())
}
