package loop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestDo_RunsOnLoop(t *testing.T) {
	l := New(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	var got int
	if err := l.Do(ctx, func() { got = 42 }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
}

func TestPost_Serializes(t *testing.T) {
	l := New(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			l.Post(func() {
				counter++
				wg.Done()
			})
		}()
	}
	wg.Wait()

	var final int
	if err := l.Do(ctx, func() { final = counter }); err != nil {
		t.Fatal(err)
	}
	if final != 100 {
		t.Errorf("expected 100, got %d", final)
	}
}

func TestDo_AfterStop(t *testing.T) {
	l := New(0)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	err := l.Do(context.Background(), func() {})
	if !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}

	done := make(chan struct{})
	go func() {
		l.Post(func() {})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Post blocked after stop")
	}
}

func TestDo_CallerContext(t *testing.T) {
	l := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Loop not running and caller already canceled.
	if err := l.Do(ctx, func() {}); err == nil {
		t.Error("expected error for canceled context")
	}
}
