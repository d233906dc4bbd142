package syncsvc

import (
	"context"
	"log"
	"sync"
)

// SyncFunc runs one sync and returns its counters.
type SyncFunc func(ctx context.Context, chatID int64, sourceURL string) (Result, error)

// Queue admits sync runs under a fixed concurrency bound, with per-chat
// mutual exclusion: at most one run per chat is ever in flight, and a second
// request for the same chat coalesces onto the pending run's result instead
// of racing its upserts.
type Queue struct {
	run SyncFunc
	sem chan struct{}

	mu      sync.Mutex
	pending map[int64]*task
}

type task struct {
	result Result
	err    error
	done   chan struct{}
}

func NewQueue(run SyncFunc, maxConcurrency int) *Queue {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Queue{
		run:     run,
		sem:     make(chan struct{}, maxConcurrency),
		pending: map[int64]*task{},
	}
}

// Enqueue schedules a sync for the chat and waits for its result. When a run
// for the same chat is already pending, the call joins it. Abandoning the
// wait (ctx cancellation) does not stop the run; its effects still land.
func (q *Queue) Enqueue(ctx context.Context, chatID int64, sourceURL string) (Result, error) {
	q.mu.Lock()
	t, joined := q.pending[chatID]
	if !joined {
		t = &task{done: make(chan struct{})}
		q.pending[chatID] = t
		go q.execute(chatID, sourceURL, t)
	}
	q.mu.Unlock()
	if joined {
		log.Printf("[syncqueue] chat %d joins pending run", chatID)
	}

	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (q *Queue) execute(chatID int64, sourceURL string, t *task) {
	q.sem <- struct{}{}
	running, queued := q.Status()
	log.Printf("[syncqueue] starting sync for chat %d (%d running, %d queued)", chatID, running, queued)

	// The run is detached from any single caller; it completes or fails as a
	// unit even when every waiter has gone away.
	t.result, t.err = q.run(context.Background(), chatID, sourceURL)

	q.mu.Lock()
	delete(q.pending, chatID)
	q.mu.Unlock()
	<-q.sem
	close(t.done)

	if t.err != nil {
		log.Printf("[syncqueue] sync failed for chat %d: %v", chatID, t.err)
	}
}

// Status reports how many runs hold an admission slot and how many are still
// waiting for one.
func (q *Queue) Status() (running, queued int) {
	running = len(q.sem)
	q.mu.Lock()
	total := len(q.pending)
	q.mu.Unlock()
	queued = total - running
	if queued < 0 {
		queued = 0
	}
	return running, queued
}
