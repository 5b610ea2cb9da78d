package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func TestPoolRunsSubmittedJobs(t *testing.T) {
	p := NewPool(2, testLogger())
	p.Start(context.Background())
	defer p.Stop()

	var ran atomic.Int32
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		err := p.Submit(func(context.Context) error {
			if ran.Add(1) == 5 {
				close(done)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("only %d of 5 jobs ran", ran.Load())
	}
}

func TestPoolDropsWhenSaturated(t *testing.T) {
	// One worker, queue of four. Never started, so nothing drains: the fifth
	// submit must be rejected rather than block.
	p := NewPool(1, testLogger())

	for i := 0; i < 4; i++ {
		if err := p.Submit(func(context.Context) error { return nil }); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	if err := p.Submit(func(context.Context) error { return nil }); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("saturated submit: got %v, want ErrQueueFull", err)
	}
}

func TestPoolRejectsNilJob(t *testing.T) {
	p := NewPool(1, testLogger())
	if err := p.Submit(nil); err == nil {
		t.Fatal("nil job accepted")
	}
}

func TestPoolStopWaitsForInFlight(t *testing.T) {
	p := NewPool(1, testLogger())
	p.Start(context.Background())

	started := make(chan struct{})
	var finished atomic.Bool
	if err := p.Submit(func(context.Context) error {
		close(started)
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
		return nil
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	<-started
	p.Stop()
	if !finished.Load() {
		t.Fatal("stop returned before the in-flight job finished")
	}
}
