package playback

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/raceplayback/server/internal/queue"
)

// Scheduler runs the periodic and background work of playback sessions.
type Scheduler interface {
	// Every runs fn on the scheduler at a fixed interval until cancelled.
	Every(interval time.Duration, fn func()) (cancel func())
	// Submit runs fn once on the scheduler.
	Submit(fn func())
	// Go runs fn off the scheduler so it cannot delay ticks.
	Go(fn func())
}

// Loop is a cooperative Scheduler: every tick and submitted task runs on a
// single goroutine, one at a time. Background work runs on its own goroutines.
type Loop struct {
	tasks  *queue.Queue[func()]
	wake   chan struct{}
	done   chan struct{}
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewLoop starts a scheduler loop.
func NewLoop(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loop{
		tasks:  queue.New[func()](),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger,
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	for {
		select {
		case <-l.done:
			return
		case <-l.wake:
			for _, fn := range l.tasks.GetAndEmpty() {
				l.safeRun("task", fn)
			}
		}
	}
}

func (l *Loop) safeRun(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Recovered from panic in scheduled "+kind,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}

// Submit queues fn for the loop goroutine.
func (l *Loop) Submit(fn func()) {
	select {
	case <-l.done:
		return
	default:
	}
	l.tasks.Push(fn)
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Every submits fn every interval. A run is skipped while the previous one
// is still queued, so a slow task never builds a backlog.
func (l *Loop) Every(interval time.Duration, fn func()) func() {
	stop := make(chan struct{})
	var cancelled, pending atomic.Bool
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			cancelled.Store(true)
			close(stop)
		})
	}

	if !l.track() {
		return cancel
	}
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-l.done:
				return
			case <-stop:
				return
			case <-ticker.C:
				if !pending.CompareAndSwap(false, true) {
					continue
				}
				l.Submit(func() {
					pending.Store(false)
					if !cancelled.Load() {
						fn()
					}
				})
			}
		}
	}()
	return cancel
}

// track registers one goroutine with Close. It reports false once the loop
// is closed.
func (l *Loop) track() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.wg.Add(1)
	return true
}

// Go runs fn on a new goroutine tracked by Close. It is a no-op once the
// loop is closed.
func (l *Loop) Go(fn func()) {
	if !l.track() {
		return
	}
	go func() {
		defer l.wg.Done()
		l.safeRun("background work", fn)
	}()
}

// Close stops the loop and waits for tickers and background work to exit.
func (l *Loop) Close() error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.done)
	}
	l.mu.Unlock()
	l.wg.Wait()
	return nil
}
