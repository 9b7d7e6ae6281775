// Package scheduler holds the backoff queue that replays side-channel
// writes (leaderboard score updates) that failed outside the store
// transaction.
package scheduler

import (
	"container/heap"
	"sync"
	"time"
)

// RetryConfig configures the retry queue behavior.
type RetryConfig struct {
	MaxRetries int           // attempts before the entry is dropped
	BaseDelay  time.Duration // first backoff, doubled per attempt
	MaxDelay   time.Duration // cap on backoff
}

// DefaultRetryConfig returns production retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 5,
		BaseDelay:  1 * time.Second,
		MaxDelay:   60 * time.Second,
	}
}

// RetryEntry tracks one failed write.
type RetryEntry struct {
	Key       string
	Value     interface{}
	Attempt   int       // 1 after the first failure
	NextRetry time.Time // earliest replay time
	FailedAt  time.Time
	Error     string
}

// RetryQueue orders pending entries by NextRetry. Entries are keyed: a
// newer failure for a pending key replaces its value but keeps its slot
// and attempt count, so only the latest write is replayed.
type RetryQueue struct {
	mu     sync.Mutex
	config RetryConfig
	items  entryHeap
	index  map[string]*heapItem
	now    func() time.Time

	totalRetries   int64
	totalExhausted int64
}

// NewRetryQueue creates an empty queue.
func NewRetryQueue(cfg RetryConfig) *RetryQueue {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultRetryConfig().MaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultRetryConfig().BaseDelay
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	return &RetryQueue{
		config: cfg,
		index:  make(map[string]*heapItem),
		now:    time.Now,
	}
}

// SetClock replaces the time source. Tests only.
func (rq *RetryQueue) SetClock(now func() time.Time) {
	rq.mu.Lock()
	rq.now = now
	rq.mu.Unlock()
}

// ScheduleRetry queues entry with exponential backoff. Returns false once
// the entry has used up MaxRetries; it is then dropped.
func (rq *RetryQueue) ScheduleRetry(entry RetryEntry) bool {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	if it, ok := rq.index[entry.Key]; ok {
		it.entry.Value = entry.Value
		it.entry.Error = entry.Error
		return true
	}

	entry.Attempt++
	if entry.Attempt > rq.config.MaxRetries {
		rq.totalExhausted++
		return false
	}

	now := rq.now()
	entry.FailedAt = now
	entry.NextRetry = now.Add(rq.backoff(entry.Attempt))

	it := &heapItem{entry: entry}
	heap.Push(&rq.items, it)
	rq.index[entry.Key] = it
	rq.totalRetries++
	return true
}

// backoff is BaseDelay * 2^(attempt-1), capped at MaxDelay.
func (rq *RetryQueue) backoff(attempt int) time.Duration {
	delay := rq.config.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= rq.config.MaxDelay {
			return rq.config.MaxDelay
		}
	}
	return delay
}

// DrainReady removes and returns every entry whose NextRetry has passed,
// earliest first.
func (rq *RetryQueue) DrainReady() []RetryEntry {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	now := rq.now()
	var ready []RetryEntry
	for rq.items.Len() > 0 {
		next := rq.items[0]
		if now.Before(next.entry.NextRetry) {
			break
		}
		heap.Pop(&rq.items)
		delete(rq.index, next.entry.Key)
		ready = append(ready, next.entry)
	}
	return ready
}

// Remove drops the pending entry for key, if any.
func (rq *RetryQueue) Remove(key string) bool {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	it, ok := rq.index[key]
	if !ok {
		return false
	}
	heap.Remove(&rq.items, it.pos)
	delete(rq.index, key)
	return true
}

// Len returns the number of pending entries.
func (rq *RetryQueue) Len() int {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	return rq.items.Len()
}

// RetryStats holds retry queue statistics.
type RetryStats struct {
	PendingRetries int   `json:"pending_retries"`
	TotalRetries   int64 `json:"total_retries"`
	TotalExhausted int64 `json:"total_exhausted"`
}

// RetryStats returns current retry queue statistics.
func (rq *RetryQueue) RetryStats() RetryStats {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	return RetryStats{
		PendingRetries: rq.items.Len(),
		TotalRetries:   rq.totalRetries,
		TotalExhausted: rq.totalExhausted,
	}
}

// ─── Heap ───────────────────────────────────────────────────────────────────

type heapItem struct {
	entry RetryEntry
	pos   int
}

type entryHeap []*heapItem

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].entry.NextRetry.Equal(h[j].entry.NextRetry) {
		return h[i].entry.Key < h[j].entry.Key
	}
	return h[i].entry.NextRetry.Before(h[j].entry.NextRetry)
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].pos = i
	h[j].pos = j
}

func (h *entryHeap) Push(x interface{}) {
	it := x.(*heapItem)
	it.pos = len(*h)
	*h = append(*h, it)
}

func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}
