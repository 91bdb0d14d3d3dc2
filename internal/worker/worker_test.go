package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingExpirer struct {
	calls atomic.Int32
	err   error
}

func (c *countingExpirer) ExpireInvoices(context.Context) (int64, error) {
	c.calls.Add(1)
	return 1, c.err
}

func waitCalls(t *testing.T, c *countingExpirer, n int32) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for c.calls.Load() < n {
		if time.Now().After(deadline) {
			t.Fatalf("expirer called %d times, want >= %d", c.calls.Load(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSchedulerRunsExpiry(t *testing.T) {
	c := &countingExpirer{}
	s, err := Start(c, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitCalls(t, c, 2)

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	after := c.calls.Load()
	time.Sleep(60 * time.Millisecond)
	if got := c.calls.Load(); got != after {
		t.Fatalf("job ran after Stop: %d -> %d", after, got)
	}
}

func TestSchedulerSurvivesErrors(t *testing.T) {
	c := &countingExpirer{err: errors.New("db down")}
	s, err := Start(c, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()
	waitCalls(t, c, 2)
}
