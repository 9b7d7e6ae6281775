package scheduler

import (
	"testing"
	"time"
)

type manualClock struct{ t time.Time }

func (c *manualClock) now() time.Time          { return c.t }
func (c *manualClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestQueue(cfg RetryConfig) (*RetryQueue, *manualClock) {
	clk := &manualClock{t: time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)}
	rq := NewRetryQueue(cfg)
	rq.SetClock(clk.now)
	return rq, clk
}

func TestRetryQueue_ScheduleAndDrain(t *testing.T) {
	rq, clk := newTestQueue(RetryConfig{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: time.Minute})

	if !rq.ScheduleRetry(RetryEntry{Key: "u1", Value: int64(15), Error: "timeout"}) {
		t.Fatal("expected first schedule to succeed")
	}
	if rq.Len() != 1 {
		t.Fatalf("Len = %d, want 1", rq.Len())
	}

	if got := rq.DrainReady(); len(got) != 0 {
		t.Fatalf("drained %d before backoff elapsed", len(got))
	}

	clk.advance(time.Second)
	ready := rq.DrainReady()
	if len(ready) != 1 {
		t.Fatalf("drained %d, want 1", len(ready))
	}
	if ready[0].Key != "u1" || ready[0].Attempt != 1 {
		t.Errorf("entry = %+v", ready[0])
	}
	if rq.Len() != 0 {
		t.Errorf("Len after drain = %d", rq.Len())
	}
}

func TestRetryQueue_MaxRetriesExhausted(t *testing.T) {
	rq, clk := newTestQueue(RetryConfig{MaxRetries: 2, BaseDelay: time.Second, MaxDelay: time.Minute})

	e := RetryEntry{Key: "u1"}
	for i := 1; i <= 2; i++ {
		if !rq.ScheduleRetry(e) {
			t.Fatalf("attempt %d rejected", i)
		}
		clk.advance(time.Hour)
		e = rq.DrainReady()[0]
		if e.Attempt != i {
			t.Fatalf("attempt = %d, want %d", e.Attempt, i)
		}
	}
	if rq.ScheduleRetry(e) {
		t.Fatal("expected third attempt to be rejected")
	}
	if s := rq.RetryStats(); s.TotalExhausted != 1 || s.TotalRetries != 2 {
		t.Errorf("stats = %+v", s)
	}
}

func TestRetryQueue_BackoffDoublesAndCaps(t *testing.T) {
	rq := NewRetryQueue(RetryConfig{MaxRetries: 10, BaseDelay: time.Second, MaxDelay: 5 * time.Second})
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := rq.backoff(i + 1); got != w {
			t.Errorf("backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestRetryQueue_SameKeyKeepsLatestValue(t *testing.T) {
	rq, clk := newTestQueue(RetryConfig{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: time.Minute})

	rq.ScheduleRetry(RetryEntry{Key: "u1", Value: int64(15)})
	rq.ScheduleRetry(RetryEntry{Key: "u1", Value: int64(40)})
	if rq.Len() != 1 {
		t.Fatalf("Len = %d, want 1", rq.Len())
	}

	clk.advance(time.Second)
	ready := rq.DrainReady()
	if len(ready) != 1 || ready[0].Value.(int64) != 40 {
		t.Fatalf("ready = %+v", ready)
	}
}

func TestRetryQueue_Remove(t *testing.T) {
	rq, clk := newTestQueue(RetryConfig{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: time.Minute})
	rq.ScheduleRetry(RetryEntry{Key: "a"})
	rq.ScheduleRetry(RetryEntry{Key: "b"})
	rq.ScheduleRetry(RetryEntry{Key: "c"})

	if !rq.Remove("b") {
		t.Fatal("Remove(b) = false")
	}
	if rq.Remove("b") {
		t.Fatal("second Remove(b) = true")
	}

	clk.advance(time.Second)
	ready := rq.DrainReady()
	if len(ready) != 2 || ready[0].Key != "a" || ready[1].Key != "c" {
		t.Fatalf("ready = %+v", ready)
	}
}

func TestRetryQueue_DrainOrder(t *testing.T) {
	rq, clk := newTestQueue(RetryConfig{MaxRetries: 5, BaseDelay: time.Second, MaxDelay: time.Minute})

	rq.ScheduleRetry(RetryEntry{Key: "late", Attempt: 2}) // backoff 4s
	rq.ScheduleRetry(RetryEntry{Key: "early"})            // backoff 1s

	clk.advance(2 * time.Second)
	ready := rq.DrainReady()
	if len(ready) != 1 || ready[0].Key != "early" {
		t.Fatalf("ready = %+v", ready)
	}

	clk.advance(10 * time.Second)
	ready = rq.DrainReady()
	if len(ready) != 1 || ready[0].Key != "late" {
		t.Fatalf("ready = %+v", ready)
	}
}

func TestNewRetryQueue_Defaults(t *testing.T) {
	rq := NewRetryQueue(RetryConfig{})
	def := DefaultRetryConfig()
	if rq.config.MaxRetries != def.MaxRetries || rq.config.BaseDelay != def.BaseDelay {
		t.Errorf("config = %+v", rq.config)
	}
}
