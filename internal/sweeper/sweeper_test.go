package sweeper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type countingTarget struct {
	calls atomic.Int32
	n     int
	err   error
}

func (c *countingTarget) SweepExpired(ctx context.Context) (int, error) {
	c.calls.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return 0, errors.New("sweep pass has no deadline")
	}
	return c.n, c.err
}

func TestOnceReturnsCount(t *testing.T) {
	target := &countingTarget{n: 3}
	s := New(target, time.Minute, zerolog.Nop())

	if got := s.Once(context.Background()); got != 3 {
		t.Fatalf("Once() = %d, want 3", got)
	}
}

func TestOnceSwallowsErrors(t *testing.T) {
	target := &countingTarget{err: errors.New("store down")}
	s := New(target, time.Minute, zerolog.Nop())

	if got := s.Once(context.Background()); got != 0 {
		t.Fatalf("Once() = %d, want 0 on error", got)
	}
}

func TestRunDisabled(t *testing.T) {
	target := &countingTarget{}
	done := make(chan struct{})
	go func() {
		New(target, 0, zerolog.Nop()).Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled sweeper did not return")
	}
	if target.calls.Load() != 0 {
		t.Fatalf("disabled sweeper swept %d times", target.calls.Load())
	}
}

func TestRunSweepsUntilCancelled(t *testing.T) {
	target := &countingTarget{n: 1}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		New(target, 10*time.Millisecond, zerolog.Nop()).Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for target.calls.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expected repeated sweeps, got %d", target.calls.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
