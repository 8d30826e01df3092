package retry

import (
	"container/heap"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-webhook-intake/core"
)

// MemoryQueue is an in-process retry queue ordered by due time. Scheduling
// the same attempt again replaces its existing entry. ClaimDue removes the
// returned items, so each due entry is handed to exactly one caller.
type MemoryQueue struct {
	Now func() time.Time

	mu      sync.Mutex
	entries entryHeap
	pending map[string]*queueEntry
}

type queueEntry struct {
	attemptID string
	dueAt     time.Time
	index     int
	removed   bool
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		Now:     func() time.Time { return time.Now().UTC() },
		pending: map[string]*queueEntry{},
	}
}

func (q *MemoryQueue) Schedule(_ context.Context, attemptID string, dueAt time.Time) error {
	if q == nil {
		return fmt.Errorf("retry: memory queue is nil")
	}
	attemptID = strings.TrimSpace(attemptID)
	if attemptID == "" {
		return fmt.Errorf("retry: attempt id is required")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if existing, ok := q.pending[attemptID]; ok {
		existing.removed = true
	}
	entry := &queueEntry{attemptID: attemptID, dueAt: dueAt.UTC()}
	q.pending[attemptID] = entry
	heap.Push(&q.entries, entry)
	return nil
}

func (q *MemoryQueue) ClaimDue(_ context.Context, limit int) ([]core.RetryQueueItem, error) {
	if q == nil {
		return nil, fmt.Errorf("retry: memory queue is nil")
	}
	if limit <= 0 {
		limit = 10
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	claimed := []core.RetryQueueItem{}
	for len(claimed) < limit && q.entries.Len() > 0 {
		head := q.entries[0]
		if head.removed {
			heap.Pop(&q.entries)
			continue
		}
		if head.dueAt.After(now) {
			break
		}
		heap.Pop(&q.entries)
		delete(q.pending, head.attemptID)
		claimed = append(claimed, core.RetryQueueItem{AttemptID: head.attemptID, DueAt: head.dueAt})
	}
	return claimed, nil
}

// Len reports the number of scheduled entries still pending.
func (q *MemoryQueue) Len() int {
	if q == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *MemoryQueue) now() time.Time {
	if q != nil && q.Now != nil {
		return q.Now().UTC()
	}
	return time.Now().UTC()
}

type entryHeap []*queueEntry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].dueAt.Equal(h[j].dueAt) {
		return h[i].attemptID < h[j].attemptID
	}
	return h[i].dueAt.Before(h[j].dueAt)
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	entry := x.(*queueEntry)
	entry.index = len(*h)
	*h = append(*h, entry)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return entry
}

var _ core.RetryQueue = (*MemoryQueue)(nil)
