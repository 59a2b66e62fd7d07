package systemd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu     sync.Mutex
	states []string
}

func (r *recorder) notify(_ bool, state string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
	return true, nil
}

func (r *recorder) count(state string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.states {
		if s == state {
			n++
		}
	}
	return n
}

func newTestNotifier(r *recorder, interval time.Duration, err error) *Notifier {
	return &Notifier{
		notify:   r.notify,
		interval: func() (time.Duration, error) { return interval, err },
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestLifecycleMessages(t *testing.T) {
	r := &recorder{}
	n := newTestNotifier(r, 0, nil)

	n.Ready()
	n.Status("sending")
	n.Stopping()

	want := []string{"READY=1", "STATUS=sending", "STOPPING=1"}
	if len(r.states) != len(want) {
		t.Fatalf("states = %v, want %v", r.states, want)
	}
	for i := range want {
		if r.states[i] != want[i] {
			t.Errorf("states[%d] = %q, want %q", i, r.states[i], want[i])
		}
	}
}

func TestWatchdogDisabled(t *testing.T) {
	for _, err := range []error{nil, errors.New("bad WATCHDOG_USEC")} {
		r := &recorder{}
		n := newTestNotifier(r, 0, err)
		done := make(chan struct{})
		go func() {
			n.Watchdog(context.Background(), nil)
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("Watchdog() did not return without a watchdog (err=%v)", err)
		}
	}
}

func TestWatchdogPingsWhileHealthy(t *testing.T) {
	r := &recorder{}
	n := newTestNotifier(r, 20*time.Millisecond, nil)

	var healthy sync.Mutex
	ok := true
	isHealthy := func() bool {
		healthy.Lock()
		defer healthy.Unlock()
		return ok
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		n.Watchdog(ctx, isHealthy)
		close(done)
	}()

	time.Sleep(80 * time.Millisecond)
	if got := r.count("WATCHDOG=1"); got == 0 {
		t.Error("no watchdog pings while healthy")
	}

	healthy.Lock()
	ok = false
	healthy.Unlock()
	time.Sleep(15 * time.Millisecond)
	before := r.count("WATCHDOG=1")
	time.Sleep(60 * time.Millisecond)
	if got := r.count("WATCHDOG=1"); got != before {
		t.Errorf("watchdog pings while unhealthy = %d, want %d", got, before)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watchdog() did not return after cancel")
	}
}
