package playback

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoop_SubmitRunsInOrder(t *testing.T) {
	l := NewLoop(nil)
	defer l.Close()

	got := make(chan int, 3)
	for i := 0; i < 3; i++ {
		l.Submit(func() { got <- i })
	}
	for i := 0; i < 3; i++ {
		select {
		case v := <-got:
			assert.Equal(t, i, v)
		case <-time.After(time.Second):
			t.Fatal("task did not run")
		}
	}
}

func TestLoop_EveryUntilCancelled(t *testing.T) {
	l := NewLoop(nil)
	defer l.Close()

	var n atomic.Int32
	cancel := l.Every(5*time.Millisecond, func() { n.Add(1) })
	require.Eventually(t, func() bool { return n.Load() >= 3 }, time.Second, time.Millisecond)

	cancel()
	cancel()
	stopped := n.Load()
	time.Sleep(30 * time.Millisecond)
	assert.LessOrEqual(t, n.Load(), stopped+1, "at most one queued run after cancel")
}

func TestLoop_RecoversFromPanics(t *testing.T) {
	l := NewLoop(nil)
	defer l.Close()

	l.Submit(func() { panic("boom") })
	ran := make(chan struct{})
	l.Submit(func() { close(ran) })

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("loop died after panic")
	}
}

func TestLoop_CloseWaitsForBackgroundWork(t *testing.T) {
	l := NewLoop(nil)

	var finished atomic.Bool
	l.Go(func() {
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
	})
	require.NoError(t, l.Close())
	assert.True(t, finished.Load())

	l.Submit(func() { t.Error("submit after close must not run") })
	require.NoError(t, l.Close())
}

func TestLoop_GoAndEveryAfterClose(t *testing.T) {
	l := NewLoop(nil)
	require.NoError(t, l.Close())

	var ran atomic.Bool
	l.Go(func() { ran.Store(true) })
	cancel := l.Every(time.Millisecond, func() { ran.Store(true) })
	require.NotNil(t, cancel)
	cancel()
	cancel()

	time.Sleep(10 * time.Millisecond)
	assert.False(t, ran.Load())
}

func TestLoop_GoRacingClose(t *testing.T) {
	for i := 0; i < 50; i++ {
		l := NewLoop(nil)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				l.Go(func() {})
			}
		}()
		go func() {
			defer wg.Done()
			_ = l.Close()
		}()
		wg.Wait()
		require.NoError(t, l.Close())
	}
}
