package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MimeLyc/vn-script-translator/pkg/log"
)

const (
	DefaultTickInterval = 100 * time.Millisecond
	defaultMaxRecent    = 100
)

// Queue runs script files one at a time on a single worker goroutine. A tick
// pops the head of the pending list and processes it to completion before the
// next tick can fire. Stop takes effect between files only.
type Queue struct {
	tick      time.Duration
	store     Store
	maxRecent int

	persistMu sync.Mutex

	mu        sync.Mutex
	state     State
	pending   []string
	runID     string
	current   string
	percent   int
	recent    []*FileResult
	observers map[int]Observer
	nextObsID int
	stopCh    chan struct{}
	done      chan struct{}
}

type QueueOption func(*Queue)

func WithTickInterval(d time.Duration) QueueOption {
	return func(q *Queue) {
		if d > 0 {
			q.tick = d
		}
	}
}

func WithStore(store Store) QueueOption {
	return func(q *Queue) { q.store = store }
}

// WithMaxRecent bounds the results kept in memory for snapshots.
func WithMaxRecent(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.maxRecent = n
		}
	}
}

func NewQueue(opts ...QueueOption) *Queue {
	q := &Queue{
		tick:      DefaultTickInterval,
		maxRecent: defaultMaxRecent,
		state:     StateIdle,
		observers: make(map[int]Observer),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.hydrateFromStore(context.Background())
	return q
}

// Enqueue appends paths to the tail of the pending list. It is allowed in any
// state and never starts processing. It returns the new pending length.
func (q *Queue) Enqueue(paths ...string) int {
	q.mu.Lock()
	q.pending = append(q.pending, paths...)
	n := len(q.pending)
	q.mu.Unlock()

	q.persistQueue()
	return n
}

// ReplaceQueue discards the pending list and uses paths instead.
func (q *Queue) ReplaceQueue(paths ...string) {
	q.mu.Lock()
	q.pending = append([]string(nil), paths...)
	q.mu.Unlock()

	q.persistQueue()
}

// Start begins a run from Idle with a non-empty queue; otherwise it does
// nothing and returns false.
func (q *Queue) Start(exec Executor) bool {
	if exec == nil {
		return false
	}

	q.mu.Lock()
	if q.state != StateIdle || len(q.pending) == 0 {
		q.mu.Unlock()
		return false
	}
	q.state = StateRunning
	q.runID = uuid.NewString()
	q.stopCh = make(chan struct{})
	q.done = make(chan struct{})
	stopCh, done, runID := q.stopCh, q.done, q.runID
	q.mu.Unlock()

	log.Info("Queue run %s started", runID)
	q.emit(Event{Type: EventStateChanged, State: StateRunning})

	go q.worker(exec, runID, stopCh, done)
	return true
}

// Stop moves a running queue to Stopped. The file being processed finishes,
// nothing else is started.
func (q *Queue) Stop() bool {
	q.mu.Lock()
	if q.state != StateRunning {
		q.mu.Unlock()
		return false
	}
	q.state = StateStopped
	close(q.stopCh)
	current := q.current
	q.mu.Unlock()

	if current != "" {
		log.Info("Queue stopping, waiting for %s to finish", current)
	} else {
		log.Info("Queue stopped")
	}
	q.emit(Event{Type: EventStateChanged, State: StateStopped})
	return true
}

// Acknowledge waits for the in-flight file of a stopped queue and returns it to
// Idle with the remaining files still pending.
func (q *Queue) Acknowledge() bool {
	q.mu.Lock()
	if q.state != StateStopped {
		q.mu.Unlock()
		return false
	}
	done := q.done
	q.mu.Unlock()

	if done != nil {
		<-done
	}

	q.mu.Lock()
	if q.state != StateStopped {
		q.mu.Unlock()
		return false
	}
	q.state = StateIdle
	q.runID = ""
	q.mu.Unlock()

	q.emit(Event{Type: EventStateChanged, State: StateIdle})
	return true
}

// Wait blocks until the current worker, if any, has exited.
func (q *Queue) Wait() {
	q.mu.Lock()
	done := q.done
	q.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

func (q *Queue) Snapshot() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	recent := make([]*FileResult, 0, len(q.recent))
	for _, r := range q.recent {
		recent = append(recent, cloneResult(r))
	}
	return Snapshot{
		State:   q.state,
		RunID:   q.runID,
		Pending: append([]string{}, q.pending...),
		Current: q.current,
		Percent: q.percent,
		Recent:  recent,
	}
}

// Subscribe registers an observer and returns a function removing it.
func (q *Queue) Subscribe(o Observer) func() {
	q.mu.Lock()
	id := q.nextObsID
	q.nextObsID++
	q.observers[id] = o
	q.mu.Unlock()

	return func() {
		q.mu.Lock()
		delete(q.observers, id)
		q.mu.Unlock()
	}
}

func (q *Queue) worker(exec Executor, runID string, stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(q.tick)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
		}
		// a tick and a stop can be ready together
		select {
		case <-stopCh:
			return
		default:
		}

		path, ok := q.pop(runID)
		if !ok {
			return
		}
		q.runFile(exec, runID, path)
	}
}

// pop takes the head of the queue. An empty queue ends the run.
func (q *Queue) pop(runID string) (string, bool) {
	q.mu.Lock()
	if q.state != StateRunning || q.runID != runID {
		q.mu.Unlock()
		return "", false
	}
	if len(q.pending) == 0 {
		q.state = StateIdle
		q.runID = ""
		q.mu.Unlock()

		log.Info("Queue run %s finished", runID)
		q.emit(Event{Type: EventStateChanged, State: StateIdle})
		return "", false
	}
	path := q.pending[0]
	q.pending = q.pending[1:]
	q.current = path
	q.percent = 0
	q.mu.Unlock()

	q.persistQueue()
	return path, true
}

func (q *Queue) runFile(exec Executor, runID, path string) {
	startedAt := time.Now()
	log.Info("Processing %s", path)
	q.emit(Event{Type: EventFileStarted, Path: path})

	progress := func(percent int) {
		q.mu.Lock()
		if percent < q.percent {
			percent = q.percent
		}
		q.percent = percent
		q.mu.Unlock()
		q.emit(Event{Type: EventProgress, Path: path, Percent: percent})
	}

	result, err := runExecutor(exec, path, progress)
	if result == nil {
		result = &FileResult{StartedAt: startedAt}
	}
	if result.ID == "" {
		result.ID = uuid.NewString()
	}
	result.RunID = runID
	result.Path = path
	if result.StartedAt.IsZero() {
		result.StartedAt = startedAt
	}
	if result.FinishedAt.IsZero() {
		result.FinishedAt = time.Now()
	}
	if err != nil {
		result.Status = StatusFailed
		result.Error = err.Error()
		log.Error("Failed to process %s: %v", path, err)
	} else if result.Status == "" {
		result.Status = StatusSuccess
	}

	q.mu.Lock()
	q.current = ""
	q.recent = append(q.recent, cloneResult(result))
	if len(q.recent) > q.maxRecent {
		q.recent = q.recent[len(q.recent)-q.maxRecent:]
	}
	q.mu.Unlock()

	if q.store != nil {
		if err := q.store.RecordResult(context.Background(), result); err != nil {
			log.Error("Failed to record result for %s: %v", path, err)
		}
	}
	q.emit(Event{Type: EventFileFinished, Path: path, Result: cloneResult(result), Error: result.Error})
}

func runExecutor(exec Executor, path string, progress ProgressFunc) (result *FileResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("panic while processing %s: %v", path, r)
		}
	}()
	return exec(context.Background(), path, progress)
}

func (q *Queue) emit(e Event) {
	q.mu.Lock()
	observers := make([]Observer, 0, len(q.observers))
	for _, o := range q.observers {
		observers = append(observers, o)
	}
	q.mu.Unlock()

	for _, o := range observers {
		o(e)
	}
}

func (q *Queue) persistQueue() {
	if q.store == nil {
		return
	}
	q.persistMu.Lock()
	defer q.persistMu.Unlock()

	q.mu.Lock()
	paths := append([]string{}, q.pending...)
	q.mu.Unlock()

	if err := q.store.SaveQueue(context.Background(), paths); err != nil {
		log.Error("Failed to persist queue: %v", err)
	}
}

func (q *Queue) hydrateFromStore(ctx context.Context) {
	if q.store == nil {
		return
	}
	paths, err := q.store.LoadQueue(ctx)
	if err != nil {
		log.Error("Failed to load queue from store: %v", err)
		return
	}
	q.mu.Lock()
	q.pending = append(q.pending, paths...)
	q.mu.Unlock()
	if len(paths) > 0 {
		log.Info("Restored %d pending scripts", len(paths))
	}
}

func cloneResult(r *FileResult) *FileResult {
	if r == nil {
		return nil
	}
	tmp := *r
	return &tmp
}
