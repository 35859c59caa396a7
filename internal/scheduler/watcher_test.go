package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestWatcherRunsUntilCancelled(t *testing.T) {
	var cycles int32

	w, err := New(5*time.Millisecond, func(context.Context) error {
		atomic.AddInt32(&cycles, 1)
		return nil
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&cycles) < 3 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for scan cycles")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop after cancellation")
	}

	// No further cycles once stopped.
	stopped := atomic.LoadInt32(&cycles)
	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&cycles); got != stopped {
		t.Fatalf("watcher kept scanning after stop: %d -> %d", stopped, got)
	}
}

func TestWatcherKeepsGoingAfterScanError(t *testing.T) {
	var cycles int32

	w, err := New(5*time.Millisecond, func(context.Context) error {
		atomic.AddInt32(&cycles, 1)
		return errors.New("backend hiccup")
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_ = w.Run(ctx)

	if atomic.LoadInt32(&cycles) < 2 {
		t.Fatalf("expected the watcher to retry after an error, got %d cycles", cycles)
	}
}

func TestWatcherRejectsBadConfig(t *testing.T) {
	if _, err := New(0, func(context.Context) error { return nil }, zap.NewNop()); err == nil {
		t.Fatalf("expected an error for a zero interval")
	}

	if _, err := New(time.Second, nil, zap.NewNop()); err == nil {
		t.Fatalf("expected an error for a nil scan function")
	}
}
