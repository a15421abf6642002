// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package queue

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/sessionvault/storage"
)

const (
	// DefaultMaxItems caps total queued items across all tiers.
	DefaultMaxItems = 1000

	// DefaultBatchInterval is the normal-tier flush cadence.
	DefaultBatchInterval = 100 * time.Millisecond

	// DefaultIdleInterval is the low-tier polling cadence.
	DefaultIdleInterval = time.Second

	// DefaultLowBatchSize bounds how many low items run per idle slice.
	DefaultLowBatchSize = 10

	// DefaultBaseRetryDelay seeds the exponential backoff.
	DefaultBaseRetryDelay = 50 * time.Millisecond
)

// Options configures a Queue.
type Options struct {
	// MaxItems caps pending items across all tiers. When exceeded, the
	// oldest low-priority items are shed first. Defaults to DefaultMaxItems.
	MaxItems int

	// BatchInterval is the normal-tier flush cadence.
	BatchInterval time.Duration

	// IdleInterval is how often the low tier checks for an idle queue.
	IdleInterval time.Duration

	// LowBatchSize bounds low items per idle slice.
	LowBatchSize int

	// BaseRetryDelay seeds the base*2^n retry backoff.
	BaseRetryDelay time.Duration

	// PoolSize sets the worker pool size for batch execution.
	// Default is runtime.NumCPU() / 2, with a minimum of 1.
	PoolSize int

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Queue is an asynchronous, priority-tiered, retrying write queue. Enqueue
// never blocks and never performs I/O on the calling path; items drain into
// the sink from three independent scheduling loops.
//
// Within one tier, items are processed in enqueue order. Critical items are
// always dispatched before pending normal or low items, but an item already
// mid-write is never preempted.
type Queue struct {
	sink   storage.KVWriter
	pool   *ants.Pool
	opts   Options
	logger *slog.Logger

	mu          sync.Mutex
	drained     *sync.Cond
	pending     [3][]*Item // indexed by Priority
	retryTimers map[string]*retryEntry
	processing  int
	retrying    int
	completed   uint64
	failed      uint64
	dropped     uint64
	closed      bool

	handlersMu sync.RWMutex
	handlers   []func(Event)

	criticalCh chan struct{}
	stopCh     chan struct{}
	wg         sync.WaitGroup
}

// retryEntry holds an item parked on a backoff timer so Clear and Shutdown
// can recover it. A timer that cannot be stopped (it is firing concurrently)
// stays in the map; requeueRetry settles it, honoring cancelled.
type retryEntry struct {
	timer     *time.Timer
	item      *Item
	cancelled bool
}

// New creates a write queue draining into sink and starts its scheduling
// loops. Callers must Shutdown the queue to release its resources.
func New(sink storage.KVWriter, opts Options) (*Queue, error) {
	if sink == nil {
		return nil, ErrSinkRequired
	}
	if opts.MaxItems <= 0 {
		opts.MaxItems = DefaultMaxItems
	}
	if opts.BatchInterval <= 0 {
		opts.BatchInterval = DefaultBatchInterval
	}
	if opts.IdleInterval <= 0 {
		opts.IdleInterval = DefaultIdleInterval
	}
	if opts.LowBatchSize <= 0 {
		opts.LowBatchSize = DefaultLowBatchSize
	}
	if opts.BaseRetryDelay <= 0 {
		opts.BaseRetryDelay = DefaultBaseRetryDelay
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = runtime.NumCPU() / 2
		if opts.PoolSize < 1 {
			opts.PoolSize = 1
		}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	pool, err := ants.NewPool(opts.PoolSize)
	if err != nil {
		return nil, err
	}

	q := &Queue{
		sink:        sink,
		pool:        pool,
		opts:        opts,
		logger:      opts.Logger,
		retryTimers: make(map[string]*retryEntry),
		criticalCh:  make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
	}
	q.drained = sync.NewCond(&q.mu)

	q.wg.Add(3)
	go q.criticalLoop()
	go q.normalLoop()
	go q.lowLoop()

	return q, nil
}

// Notify registers a callback for queue lifecycle events. Callbacks run on
// queue goroutines and must not block.
func (q *Queue) Notify(fn func(Event)) {
	q.handlersMu.Lock()
	defer q.handlersMu.Unlock()
	q.handlers = append(q.handlers, fn)
}

// Enqueue schedules a durable put of value under key. It returns the item
// ID immediately; the write happens in the background and its outcome is
// observable only through events.
func (q *Queue) Enqueue(key string, value []byte, priority Priority) string {
	return q.enqueue(&Item{
		ID:         uuid.NewString(),
		Priority:   priority,
		Op:         OpPut,
		Key:        key,
		Value:      value,
		EnqueuedAt: time.Now().UTC(),
	})
}

// EnqueueDelete schedules a durable delete of key.
func (q *Queue) EnqueueDelete(key string, priority Priority) string {
	return q.enqueue(&Item{
		ID:         uuid.NewString(),
		Priority:   priority,
		Op:         OpDelete,
		Key:        key,
		EnqueuedAt: time.Now().UTC(),
	})
}

func (q *Queue) enqueue(item *Item) string {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.logger.Warn("enqueue after shutdown, item discarded", "key", item.Key)
		return ""
	}
	q.pending[item.Priority] = append(q.pending[item.Priority], item)
	shed := q.shedOverCapacityLocked()
	q.mu.Unlock()

	q.emit(Event{Type: EventEnqueued, Item: item})
	for _, droppedItem := range shed {
		q.logger.Warn("queue over capacity, dropped low-priority item",
			"key", droppedItem.Key, "enqueued_at", droppedItem.EnqueuedAt)
		q.emit(Event{Type: EventDropped, Item: droppedItem})
	}

	if item.Priority == PriorityCritical {
		q.kickCritical()
	}
	return item.ID
}

// shedOverCapacityLocked drops the oldest low-priority items while the
// queue exceeds its capacity. Critical and normal items are never shed;
// if only they remain, the cap is allowed to overflow.
func (q *Queue) shedOverCapacityLocked() []*Item {
	var shed []*Item
	for q.pendingLenLocked() > q.opts.MaxItems && len(q.pending[PriorityLow]) > 0 {
		droppedItem := q.pending[PriorityLow][0]
		q.pending[PriorityLow] = q.pending[PriorityLow][1:]
		q.dropped++
		shed = append(shed, droppedItem)
	}
	if len(shed) > 0 {
		q.drained.Broadcast()
	}
	return shed
}

// Stats is a point-in-time snapshot of queue counters.
type Stats struct {
	Pending    int
	Processing int
	Completed  uint64
	Failed     uint64
	Dropped    uint64
	ByPriority struct {
		Critical int
		Normal   int
		Low      int
	}
}

// GetStats returns a snapshot of the queue counters.
func (q *Queue) GetStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := Stats{
		Pending:    q.pendingLenLocked() + q.retrying,
		Processing: q.processing,
		Completed:  q.completed,
		Failed:     q.failed,
		Dropped:    q.dropped,
	}
	stats.ByPriority.Critical = len(q.pending[PriorityCritical])
	stats.ByPriority.Normal = len(q.pending[PriorityNormal])
	stats.ByPriority.Low = len(q.pending[PriorityLow])
	return stats
}

// Flush blocks until every queued item has reached a terminal state
// (completed, failed, or dropped), or until ctx is done.
func (q *Queue) Flush(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		q.drained.Broadcast()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for q.outstandingLocked() > 0 && ctx.Err() == nil {
		q.drained.Wait()
	}
	return ctx.Err()
}

// Clear discards all items that have not started processing, including
// items waiting on a retry timer. In-flight items run to completion.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	count := q.pendingLenLocked()
	for i := range q.pending {
		q.pending[i] = nil
	}
	for id, entry := range q.retryTimers {
		if entry.timer.Stop() {
			q.retrying--
			count++
			delete(q.retryTimers, id)
		} else {
			// Firing concurrently; requeueRetry discards it.
			entry.cancelled = true
		}
	}
	q.drained.Broadcast()
	return count
}

// CancelPending discards every item whose key satisfies match and has not
// started processing, including items parked on retry timers. In-flight
// items are unaffected. Cancelled items are reported through dropped
// events. Returns the number of items discarded.
func (q *Queue) CancelPending(match func(key string) bool) int {
	q.mu.Lock()
	var cancelled []*Item
	for i := range q.pending {
		kept := q.pending[i][:0]
		for _, item := range q.pending[i] {
			if match(item.Key) {
				cancelled = append(cancelled, item)
			} else {
				kept = append(kept, item)
			}
		}
		q.pending[i] = kept
	}
	for id, entry := range q.retryTimers {
		if entry.cancelled || !match(entry.item.Key) {
			continue
		}
		if entry.timer.Stop() {
			q.retrying--
			cancelled = append(cancelled, entry.item)
			delete(q.retryTimers, id)
		} else {
			// Firing concurrently; requeueRetry discards it.
			entry.cancelled = true
		}
	}
	if len(cancelled) > 0 {
		q.dropped += uint64(len(cancelled))
		q.drained.Broadcast()
	}
	q.mu.Unlock()

	for _, item := range cancelled {
		q.emit(Event{Type: EventDropped, Item: item})
	}
	return len(cancelled)
}

// Shutdown stops the scheduling loops, folds retry-waiting items back into
// their tiers, and drains everything that remains before returning. The
// queue cannot be used afterwards.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.stopCh)
	for id, entry := range q.retryTimers {
		if entry.timer.Stop() {
			q.retrying--
			q.pushFrontLocked(entry.item)
			delete(q.retryTimers, id)
		}
		// A timer firing concurrently requeues its item through
		// requeueRetry; the drain below waits for it.
	}
	q.mu.Unlock()

	q.wg.Wait()
	defer q.pool.Release()

	stop := context.AfterFunc(ctx, func() {
		q.drained.Broadcast()
	})
	defer stop()

	// Drain the remainder inline, critical tier first. Retries during the
	// drain are immediate so the drain terminates.
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		item := q.popNext()
		if item == nil {
			q.mu.Lock()
			if q.retrying == 0 && q.pendingLenLocked() == 0 {
				q.mu.Unlock()
				break
			}
			// An in-flight retry timer still owns an item.
			q.drained.Wait()
			q.mu.Unlock()
			continue
		}
		q.process(item)
	}

	return nil
}

// Scheduling loops

func (q *Queue) criticalLoop() {
	defer q.wg.Done()
	for {
		select {
		case <-q.stopCh:
			return
		case <-q.criticalCh:
			for {
				item := q.popTier(PriorityCritical)
				if item == nil {
					break
				}
				// One at a time, no batching.
				q.process(item)
			}
		}
	}
}

func (q *Queue) normalLoop() {
	defer q.wg.Done()
	ticker := time.NewTicker(q.opts.BatchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-q.stopCh:
			return
		case <-ticker.C:
			batch := q.popBatch(PriorityNormal, 0)
			if len(batch) > 0 {
				q.runBatch(batch)
			}
		}
	}
}

// lowLoop approximates an idle callback: low items only run when no
// higher-priority work is pending or in flight.
func (q *Queue) lowLoop() {
	defer q.wg.Done()
	ticker := time.NewTicker(q.opts.IdleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-q.stopCh:
			return
		case <-ticker.C:
			q.mu.Lock()
			idle := len(q.pending[PriorityCritical]) == 0 &&
				len(q.pending[PriorityNormal]) == 0 &&
				q.processing == 0
			q.mu.Unlock()
			if !idle {
				continue
			}
			batch := q.popBatch(PriorityLow, q.opts.LowBatchSize)
			if len(batch) > 0 {
				q.runBatch(batch)
			}
		}
	}
}

// runBatch executes a batch on the worker pool and waits for it, keeping
// per-tier FIFO order across consecutive batches.
func (q *Queue) runBatch(items []*Item) {
	done := make(chan struct{})
	err := q.pool.Submit(func() {
		defer close(done)
		for _, item := range items {
			q.process(item)
		}
	})
	if err != nil {
		for _, item := range items {
			q.process(item)
		}
		return
	}
	<-done
}

// process runs one attempt of one item and handles its outcome.
func (q *Queue) process(item *Item) {
	q.mu.Lock()
	q.processing++
	q.mu.Unlock()
	q.emit(Event{Type: EventProcessing, Item: item})

	err := q.execute(item)

	q.mu.Lock()
	q.processing--

	if err == nil {
		q.completed++
		q.drained.Broadcast()
		q.mu.Unlock()
		q.emit(Event{Type: EventCompleted, Item: item})
		return
	}

	item.LastErr = err
	if item.Retries >= item.Priority.MaxRetries() {
		q.failed++
		q.drained.Broadcast()
		q.mu.Unlock()
		q.logger.Error("durable write failed permanently",
			"key", item.Key, "op", item.Op, "priority", item.Priority,
			"retries", item.Retries, "err", err)
		q.emit(Event{Type: EventFailed, Item: item})
		return
	}

	delay := q.backoffDelay(item.Retries)
	item.Retries++

	if q.closed {
		// Shutdown drain: retry immediately via the pending tier.
		q.pushFrontLocked(item)
		q.mu.Unlock()
		q.emit(Event{Type: EventRetry, Item: item})
		return
	}

	q.retrying++
	entry := &retryEntry{item: item}
	entry.timer = time.AfterFunc(delay, func() { q.requeueRetry(item) })
	q.retryTimers[item.ID] = entry
	q.mu.Unlock()

	q.logger.Debug("write attempt failed, retry scheduled",
		"key", item.Key, "retries", item.Retries, "delay", delay, "err", err)
	q.emit(Event{Type: EventRetry, Item: item})
}

// backoffDelay returns the delay before the attempt following n prior
// retries: base * 2^n.
func (q *Queue) backoffDelay(retries int) time.Duration {
	return q.opts.BaseRetryDelay * (1 << retries)
}

func (q *Queue) requeueRetry(item *Item) {
	q.mu.Lock()
	entry, ok := q.retryTimers[item.ID]
	if !ok {
		q.mu.Unlock()
		return
	}
	delete(q.retryTimers, item.ID)
	q.retrying--
	if entry.cancelled {
		q.drained.Broadcast()
		q.mu.Unlock()
		return
	}
	q.pushFrontLocked(item)
	q.drained.Broadcast()
	q.mu.Unlock()

	if item.Priority == PriorityCritical {
		q.kickCritical()
	}
}

func (q *Queue) execute(item *Item) error {
	ctx := context.Background()
	if item.Op == OpDelete {
		return q.sink.Delete(ctx, item.Key)
	}
	return q.sink.Put(ctx, item.Key, item.Value)
}

func (q *Queue) emit(evt Event) {
	q.handlersMu.RLock()
	handlers := q.handlers
	q.handlersMu.RUnlock()
	for _, fn := range handlers {
		fn(evt)
	}
}

func (q *Queue) kickCritical() {
	select {
	case q.criticalCh <- struct{}{}:
	default:
	}
}

// Pending-list helpers

func (q *Queue) pendingLenLocked() int {
	return len(q.pending[PriorityCritical]) + len(q.pending[PriorityNormal]) + len(q.pending[PriorityLow])
}

func (q *Queue) outstandingLocked() int {
	return q.pendingLenLocked() + q.processing + q.retrying
}

func (q *Queue) pushFrontLocked(item *Item) {
	tier := q.pending[item.Priority]
	q.pending[item.Priority] = append([]*Item{item}, tier...)
}

func (q *Queue) popTier(p Priority) *Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	tier := q.pending[p]
	if len(tier) == 0 {
		return nil
	}
	item := tier[0]
	q.pending[p] = tier[1:]
	return item
}

// popBatch takes up to limit items from a tier (all of them when limit is
// zero).
func (q *Queue) popBatch(p Priority, limit int) []*Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	tier := q.pending[p]
	if len(tier) == 0 {
		return nil
	}
	n := len(tier)
	if limit > 0 && n > limit {
		n = limit
	}
	batch := tier[:n]
	q.pending[p] = tier[n:]
	return batch
}

// popNext takes the highest-priority pending item.
func (q *Queue) popNext() *Item {
	for _, p := range []Priority{PriorityCritical, PriorityNormal, PriorityLow} {
		if item := q.popTier(p); item != nil {
			return item
		}
	}
	return nil
}
