package dispatcher

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// recordingLogger implements Logger for tests.
type recordingLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *recordingLogger) record(level, msg string, kv []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("%s: %s %v", level, msg, kv))
}

func (l *recordingLogger) Debug(msg string, kv ...any) { l.record("DEBUG", msg, kv) }
func (l *recordingLogger) Info(msg string, kv ...any)  { l.record("INFO", msg, kv) }
func (l *recordingLogger) Error(msg string, kv ...any) { l.record("ERROR", msg, kv) }

func (l *recordingLogger) count(prefix string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, m := range l.messages {
		if strings.HasPrefix(m, prefix) {
			n++
		}
	}
	return n
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *recordingLogger) {
	t.Helper()
	logger := &recordingLogger{}
	d, err := New(logger)
	if err != nil {
		t.Fatalf("failed to create dispatcher: %v", err)
	}
	t.Cleanup(d.Close)
	return d, logger
}

func TestParseEvent(t *testing.T) {
	e, ok := ParseEvent("  :session:start:  player1 2024 monza R LEC ")
	if !ok {
		t.Fatal("expected an event")
	}
	if e.Command != ":SESSION:START:" {
		t.Errorf("command = %q", e.Command)
	}
	if len(e.Args) != 5 || e.Arg(0) != "player1" || e.Arg(4) != "LEC" {
		t.Errorf("args = %v", e.Args)
	}
	if e.Arg(5) != "" || e.Arg(-1) != "" {
		t.Error("out of range args should be empty")
	}
	if e.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}

	if _, ok := ParseEvent("   "); ok {
		t.Error("blank line should not parse")
	}
}

func TestDispatcher_SyncHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var got Event
	d.Register(":TRACK:LIST:", func(e Event) (any, error) {
		got = e
		return "monza", nil
	})

	result, err := d.Dispatch(Event{Command: ":track:list:", Args: []string{"all"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "monza" {
		t.Errorf("expected 'monza', got %v", result)
	}
	if got.Arg(0) != "all" {
		t.Errorf("handler saw args %v", got.Args)
	}
}

func TestDispatcher_UnknownCommand(t *testing.T) {
	d, _ := newTestDispatcher(t)

	_, err := d.Dispatch(Event{Command: ":NOPE:"})
	if !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("expected ErrUnknownCommand, got %v", err)
	}
}

func TestDispatcher_BufferedHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var processed atomic.Int32
	var wg sync.WaitGroup
	wg.Add(3)
	d.Register(":SCAN:", func(e Event) (any, error) {
		processed.Add(1)
		wg.Done()
		return nil, nil
	}, Buffered(10))

	for i := 0; i < 3; i++ {
		result, err := d.Dispatch(Event{Command: ":SCAN:"})
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if result != "queued" {
			t.Errorf("expected 'queued', got %v", result)
		}
	}
	wg.Wait()

	if processed.Load() != 3 {
		t.Errorf("expected 3 processed, got %d", processed.Load())
	}
}

func TestDispatcher_BufferedDropsWhenFull(t *testing.T) {
	d, _ := newTestDispatcher(t)

	block := make(chan struct{})
	started := make(chan struct{}, 1)
	d.Register(":FULL:", func(e Event) (any, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil, nil
	}, Buffered(2))
	defer close(block)

	d.Dispatch(Event{Command: ":FULL:"})
	<-started
	d.Dispatch(Event{Command: ":FULL:"})
	d.Dispatch(Event{Command: ":FULL:"})

	_, err := d.Dispatch(Event{Command: ":FULL:"})
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
}

func TestDispatcher_BufferedBlocking(t *testing.T) {
	d, _ := newTestDispatcher(t)

	block := make(chan struct{})
	started := make(chan struct{}, 1)
	d.Register(":BLOCKING:", func(e Event) (any, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil, nil
	}, Buffered(1), Blocking())

	d.Dispatch(Event{Command: ":BLOCKING:"})
	<-started
	d.Dispatch(Event{Command: ":BLOCKING:"})

	done := make(chan struct{})
	go func() {
		d.Dispatch(Event{Command: ":BLOCKING:"})
		close(done)
	}()

	select {
	case <-done:
		t.Error("dispatch should have blocked")
	case <-time.After(50 * time.Millisecond):
	}

	close(block)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("dispatch did not resume once the queue drained")
	}
}

func TestDispatcher_LoggedHandler(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register(":OK:", func(e Event) (any, error) { return "ok", nil }, Logged())
	d.Register(":FAIL:", func(e Event) (any, error) { return nil, fmt.Errorf("boom") }, Logged())

	d.Dispatch(Event{Command: ":OK:", Args: []string{"a", "b"}})
	if n := logger.count("DEBUG"); n != 2 {
		t.Errorf("expected 2 debug messages, got %d", n)
	}

	if _, err := d.Dispatch(Event{Command: ":FAIL:"}); err == nil {
		t.Error("expected handler error")
	}
	if logger.count("ERROR") != 1 {
		t.Error("expected an error log message")
	}
}

func TestDispatcher_QueuedFailureIsLogged(t *testing.T) {
	d, logger := newTestDispatcher(t)

	var wg sync.WaitGroup
	wg.Add(1)
	d.Register(":ASYNC:", func(e Event) (any, error) {
		defer wg.Done()
		return nil, fmt.Errorf("scan failed")
	}, Buffered(1))

	if _, err := d.Dispatch(Event{Command: ":ASYNC:"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wg.Wait()
	d.Close()

	if logger.count("ERROR") != 1 {
		t.Error("expected the queued failure to be logged")
	}
}

func TestDispatcher_HasHandlerAndCommands(t *testing.T) {
	d, _ := newTestDispatcher(t)

	d.Register(":B:", func(e Event) (any, error) { return nil, nil })
	d.Register(":a:", func(e Event) (any, error) { return nil, nil })

	if !d.HasHandler(":A:") || !d.HasHandler(":b:") {
		t.Error("expected handlers to exist")
	}
	if d.HasHandler(":C:") {
		t.Error("expected handler to not exist")
	}
	if got := strings.Join(d.Commands(), ","); got != ":A:,:B:" {
		t.Errorf("commands = %s", got)
	}
}

func TestDispatcher_CloseDrainsQueue(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var processed atomic.Int32
	d.Register(":SLOW:", func(e Event) (any, error) {
		time.Sleep(5 * time.Millisecond)
		processed.Add(1)
		return nil, nil
	}, Buffered(10))

	for i := 0; i < 4; i++ {
		d.Dispatch(Event{Command: ":SLOW:"})
	}
	d.Close()

	if processed.Load() != 4 {
		t.Errorf("expected 4 processed after close, got %d", processed.Load())
	}
	if _, err := d.Dispatch(Event{Command: ":SLOW:"}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	d.Close()
}
