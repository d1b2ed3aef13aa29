// Package queue implements the in-process priority queues feeding the
// render workers. Each job kind gets a named queue; tasks carry the raw
// validated request as an opaque payload so sensitive inputs (html,
// headers, cookies) stay in memory and never touch the database.
package queue

import (
	"container/heap"
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"
)

// State is a task's position in its queue lifecycle. It is distinct
// from the persisted job status: the queue tracks scheduling, the jobs
// table tracks the outcome.
type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateDelayed   State = "delayed"
)

// Task is one unit of render work. JobID links the task back to its
// persisted job record; the task's own ID is the queue-side identifier.
type Task struct {
	ID         string
	JobID      string
	Priority   int // 1 (highest) to 10 (lowest); 1 runs first
	State      State
	Attempts   int
	EnqueuedAt time.Time
	FinishedAt time.Time
	Err        string
	Payload    any

	seq    uint64
	index  int
	timer  *time.Timer
	cancel context.CancelFunc
}

// Stats summarizes a queue's occupancy per state.
type Stats struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Delayed   int `json:"delayed"`
}

const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// NewTaskID builds a queue task id: {kind}_{unix_ms}_{random9}.
func NewTaskID(kind string) string {
	suffix := make([]byte, 9)
	for i := range suffix {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(idAlphabet))))
		if err != nil {
			// crypto/rand failing is unrecoverable for id generation
			panic(fmt.Sprintf("queue: rand failed: %v", err))
		}
		suffix[i] = idAlphabet[n.Int64()]
	}
	return fmt.Sprintf("%s_%d_%s", kind, time.Now().UnixMilli(), suffix)
}

// Queue is a single named priority queue. Lower priority values
// dequeue first; equal priorities dequeue in arrival order.
type Queue struct {
	name string

	mu      sync.Mutex
	waiting taskHeap
	tasks   map[string]*Task
	nextSeq uint64
	notify  chan struct{}
	closed  bool
}

// New creates a named queue.
func New(name string) *Queue {
	return &Queue{
		name:   name,
		tasks:  make(map[string]*Task),
		notify: make(chan struct{}, 1),
	}
}

// Name returns the queue name.
func (q *Queue) Name() string {
	return q.name
}

// Enqueue adds a waiting task and wakes one dequeuer.
func (q *Queue) Enqueue(task *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return fmt.Errorf("queue %s is closed", q.name)
	}
	if _, exists := q.tasks[task.ID]; exists {
		return fmt.Errorf("task %s already enqueued", task.ID)
	}

	if task.Priority < 1 {
		task.Priority = 1
	}
	if task.Priority > 10 {
		task.Priority = 10
	}
	task.EnqueuedAt = time.Now()
	q.tasks[task.ID] = task
	q.pushWaitingLocked(task)
	return nil
}

// pushWaitingLocked moves a task into the waiting heap. Caller holds q.mu.
func (q *Queue) pushWaitingLocked(task *Task) {
	task.State = StateWaiting
	task.seq = q.nextSeq
	q.nextSeq++
	heap.Push(&q.waiting, task)
	q.wake()
}

// Dequeue blocks until a task is available or the context ends. The
// returned context is canceled if the task is canceled mid-flight.
func (q *Queue) Dequeue(ctx context.Context) (*Task, context.Context, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, nil, fmt.Errorf("queue %s is closed", q.name)
		}
		if q.waiting.Len() > 0 {
			task := heap.Pop(&q.waiting).(*Task)
			task.State = StateActive
			task.Attempts++
			taskCtx, cancel := context.WithCancel(ctx)
			task.cancel = cancel
			q.mu.Unlock()
			return task, taskCtx, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-q.notify:
		}
	}
}

// Complete marks an active task finished.
func (q *Queue) Complete(id string) {
	q.finish(id, StateCompleted, "")
}

// Fail marks an active task failed with a reason.
func (q *Queue) Fail(id, reason string) {
	q.finish(id, StateFailed, reason)
}

func (q *Queue) finish(id string, state State, reason string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.tasks[id]
	if !ok || task.State != StateActive {
		return
	}
	task.State = state
	task.Err = reason
	task.FinishedAt = time.Now()
	task.cancel = nil
}

// Cancel removes a waiting or delayed task or aborts an active one.
// Terminal tasks cannot be canceled.
func (q *Queue) Cancel(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.tasks[id]
	if !ok {
		return false
	}

	switch task.State {
	case StateWaiting:
		if task.index >= 0 {
			heap.Remove(&q.waiting, task.index)
		}
		task.State = StateFailed
		task.Err = "canceled"
		task.FinishedAt = time.Now()
		return true
	case StateDelayed:
		if task.timer != nil {
			task.timer.Stop()
			task.timer = nil
		}
		task.State = StateFailed
		task.Err = "canceled"
		task.FinishedAt = time.Now()
		return true
	case StateActive:
		if task.cancel != nil {
			task.cancel()
		}
		task.State = StateFailed
		task.Err = "canceled"
		task.FinishedAt = time.Now()
		task.cancel = nil
		return true
	default:
		return false
	}
}

// Retry re-enqueues a failed task, optionally after a backoff delay.
// A delayed task sits in the delayed state until its timer promotes it
// to waiting; it can still be canceled in the meantime. Only failed
// tasks are retryable.
func (q *Queue) Retry(id string, delay time.Duration) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.tasks[id]
	if !ok || task.State != StateFailed {
		return false
	}

	task.Err = ""
	task.FinishedAt = time.Time{}
	if delay <= 0 {
		q.pushWaitingLocked(task)
		return true
	}

	task.State = StateDelayed
	task.index = -1
	task.timer = time.AfterFunc(delay, func() { q.promote(id) })
	return true
}

// promote moves a delayed task into the waiting heap once its timer
// fires. Canceled or already-promoted tasks are left alone.
func (q *Queue) promote(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.tasks[id]
	if !ok || task.State != StateDelayed || q.closed {
		return
	}
	task.timer = nil
	q.pushWaitingLocked(task)
}

// CancelJob cancels the task carrying the given job id, in whatever
// state it is in.
func (q *Queue) CancelJob(jobID string) bool {
	q.mu.Lock()
	var id string
	for taskID, task := range q.tasks {
		if task.JobID == jobID {
			id = taskID
			break
		}
	}
	q.mu.Unlock()

	if id == "" {
		return false
	}
	return q.Cancel(id)
}

// GetState returns a task's state.
func (q *Queue) GetState(id string) (State, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.tasks[id]
	if !ok {
		return "", false
	}
	return task.State, true
}

// Stats counts tasks per state.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	var stats Stats
	for _, task := range q.tasks {
		switch task.State {
		case StateWaiting:
			stats.Waiting++
		case StateActive:
			stats.Active++
		case StateCompleted:
			stats.Completed++
		case StateFailed:
			stats.Failed++
		case StateDelayed:
			stats.Delayed++
		}
	}
	return stats
}

// Clean drops terminal tasks older than the retention window and
// returns the number removed.
func (q *Queue) Clean(olderThan time.Duration) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for id, task := range q.tasks {
		if task.State != StateCompleted && task.State != StateFailed {
			continue
		}
		if task.FinishedAt.Before(cutoff) {
			delete(q.tasks, id)
			removed++
		}
	}
	return removed
}

// Close rejects further enqueues and wakes all dequeuers.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	close(q.notify)
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// taskHeap orders by priority ascending, then arrival order.
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	task := x.(*Task)
	task.index = len(*h)
	*h = append(*h, task)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	task := old[n-1]
	old[n-1] = nil
	task.index = -1
	*h = old[:n-1]
	return task
}
