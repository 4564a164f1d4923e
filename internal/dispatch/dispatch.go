// Package dispatch provides the bounded in-process queue that decouples
// webhook ingestion from flow processing and delivery.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Queue sizing and retry policy.
const (
	// DefaultCapacity bounds the pending queue; enqueues past it are refused.
	DefaultCapacity = 1000
	// DefaultAttemptTimeout bounds one processing attempt end to end.
	DefaultAttemptTimeout = 15 * time.Second
	// MaxRetries is the number of re-attempts after the first failure.
	MaxRetries = 2
	// maxBackoff caps the exponential retry delay.
	maxBackoff = 30 * time.Second
	// latencyWindow is the size of the rolling latency sample.
	latencyWindow = 100
)

// ErrQueueFull is returned by Enqueue when the queue is at capacity.
var ErrQueueFull = errors.New("dispatch queue full")

// ErrNotRunning is returned by Enqueue before Start or after Stop.
var ErrNotRunning = errors.New("dispatch queue not running")

// Processor turns one inbound message into the outbound reply text.
// Implemented by flow.Engine.
type Processor interface {
	Process(ctx context.Context, subjectID, message string) (string, error)
}

// Sender delivers the reply. Implemented by the messaging services.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// AckFunc produces the immediate placeholder returned on enqueue, typically
// varying with the subject's conversation stage.
type AckFunc func(subjectID string) string

// item is one queued inbound message. replyCh and claimed support the
// synchronous-wait path: whoever wins the claim owns delivery. attempt counts
// processing failures so timer-driven requeues carry their retry history.
type item struct {
	subjectID  string
	message    string
	enqueuedAt time.Time
	attempt    int
	replyCh    chan string
	claimed    *atomic.Bool
}

// Stats is a point-in-time snapshot of queue health.
type Stats struct {
	Depth          int           `json:"depth"`
	Queued         int64         `json:"queued"`
	Processed      int64         `json:"processed"`
	Failed         int64         `json:"failed"`
	AverageLatency time.Duration `json:"average_latency_ns"`
	Running        bool          `json:"running"`
}

// Opts holds optional queue configuration.
type Opts struct {
	Capacity       int
	AttemptTimeout time.Duration
	Ack            AckFunc
	FinalApology   string
}

// Option configures the queue.
type Option func(*Opts)

// WithCapacity overrides the queue capacity.
func WithCapacity(n int) Option {
	return func(o *Opts) { o.Capacity = n }
}

// WithAttemptTimeout overrides the per-attempt processing timeout.
func WithAttemptTimeout(d time.Duration) Option {
	return func(o *Opts) { o.AttemptTimeout = d }
}

// WithAckFunc sets the placeholder generator used by Enqueue.
func WithAckFunc(f AckFunc) Option {
	return func(o *Opts) { o.Ack = f }
}

// WithFinalApology sets the message delivered when all attempts fail.
func WithFinalApology(msg string) Option {
	return func(o *Opts) { o.FinalApology = msg }
}

// Queue is a bounded single-worker dispatch queue. One worker keeps
// per-subject processing strictly ordered without locking in the flow engine.
type Queue struct {
	processor      Processor
	sender         Sender
	ack            AckFunc
	finalApology   string
	attemptTimeout time.Duration

	items chan item
	done  chan struct{}
	wg    sync.WaitGroup

	mu        sync.Mutex
	running   bool
	queued    int64
	processed int64
	failed    int64
	latencies []time.Duration
}

// NewQueue builds the queue. Start must be called before Enqueue.
func NewQueue(processor Processor, sender Sender, options ...Option) *Queue {
	opts := Opts{
		Capacity:       DefaultCapacity,
		AttemptTimeout: DefaultAttemptTimeout,
		Ack:            func(string) string { return "Recebi! Já te respondo... 💬" },
		FinalApology:   "Estamos com uma dificuldade técnica no momento. 😥 Pode tentar de novo em alguns minutos?",
	}
	for _, opt := range options {
		opt(&opts)
	}
	return &Queue{
		processor:      processor,
		sender:         sender,
		ack:            opts.Ack,
		finalApology:   opts.FinalApology,
		attemptTimeout: opts.AttemptTimeout,
		items:          make(chan item, opts.Capacity),
		done:           make(chan struct{}),
	}
}

// Start launches the worker.
func (q *Queue) Start() {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.mu.Unlock()

	q.wg.Add(1)
	go q.worker()
	slog.Info("Dispatch queue started", "capacity", cap(q.items))
}

// Stop drains nothing: pending items are processed, new enqueues refused.
// The close happens under the mutex so it cannot race an in-flight push.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	close(q.items)
	q.mu.Unlock()

	q.wg.Wait()
	slog.Info("Dispatch queue stopped")
}

// Enqueue adds one inbound message and returns the immediate placeholder
// text. A full queue returns ErrQueueFull so the caller can answer with
// backpressure copy instead of dropping silently.
func (q *Queue) Enqueue(subjectID, message string) (string, error) {
	it := item{subjectID: subjectID, message: message, enqueuedAt: time.Now()}
	if err := q.push(it, true); err != nil {
		if errors.Is(err, ErrQueueFull) {
			slog.Warn("Dispatch queue full, refusing message", "subjectID", subjectID)
		}
		return "", err
	}
	slog.Debug("Dispatch enqueued message", "subjectID", subjectID, "depth", len(q.items))
	return q.ack(subjectID), nil
}

// EnqueueWait enqueues and waits up to wait for the processed reply. When the
// reply lands in time it is returned with delivered=true and the worker skips
// sender delivery; past the deadline the placeholder text is returned instead
// and the worker delivers the real reply through the sender.
func (q *Queue) EnqueueWait(subjectID, message string, wait time.Duration) (string, bool, error) {
	it := item{
		subjectID:  subjectID,
		message:    message,
		enqueuedAt: time.Now(),
		replyCh:    make(chan string, 1),
		claimed:    new(atomic.Bool),
	}
	if err := q.push(it, true); err != nil {
		if errors.Is(err, ErrQueueFull) {
			slog.Warn("Dispatch queue full, refusing message", "subjectID", subjectID)
		}
		return "", false, err
	}

	select {
	case reply := <-it.replyCh:
		return reply, true, nil
	case <-time.After(wait):
		// Losing the claim race means the worker is writing the reply.
		if !it.claimed.CompareAndSwap(false, true) {
			return <-it.replyCh, true, nil
		}
		slog.Debug("Dispatch wait ceiling hit, falling back to async delivery", "subjectID", subjectID, "wait", wait)
		return q.ack(subjectID), false, nil
	}
}

// push sends the item under the mutex so Stop's channel close cannot race an
// in-flight send. fresh items bump the queued counter; requeues do not.
func (q *Queue) push(it item, fresh bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.running {
		return ErrNotRunning
	}
	select {
	case q.items <- it:
		if fresh {
			q.queued++
		}
		return nil
	default:
		return ErrQueueFull
	}
}

// Snapshot returns current queue statistics.
func (q *Queue) Snapshot() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	var avg time.Duration
	if len(q.latencies) > 0 {
		var total time.Duration
		for _, l := range q.latencies {
			total += l
		}
		avg = total / time.Duration(len(q.latencies))
	}
	return Stats{
		Depth:          len(q.items),
		Queued:         q.queued,
		Processed:      q.processed,
		Failed:         q.failed,
		AverageLatency: avg,
		Running:        q.running,
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for it := range q.items {
		q.handle(it)
	}
}

// handle runs one item through the processor, then delivers. A failed attempt
// with retries left is handed to scheduleRetry so the backoff never blocks the
// conversations queued behind it.
func (q *Queue) handle(it item) {
	reply, err := q.process(it)
	if err != nil {
		slog.Warn("Dispatch processing attempt failed", "error", err, "subjectID", it.subjectID, "attempt", it.attempt+1)
		if it.attempt < MaxRetries {
			q.scheduleRetry(it)
			return
		}
		q.mu.Lock()
		q.failed++
		q.mu.Unlock()
		slog.Error("Dispatch exhausted attempts", "error", err, "subjectID", it.subjectID)
		reply = q.finalApology
	}

	// A synchronous waiter that is still listening takes the reply directly.
	if it.replyCh != nil && it.claimed.CompareAndSwap(false, true) {
		it.replyCh <- reply
		q.recordDone(it, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), q.attemptTimeout)
	defer cancel()
	if sendErr := q.sender.SendMessage(ctx, it.subjectID, reply); sendErr != nil {
		slog.Error("Dispatch delivery failed", "error", sendErr, "subjectID", it.subjectID)
		q.mu.Lock()
		q.failed++
		q.mu.Unlock()
		return
	}

	q.recordDone(it, err)
}

// scheduleRetry requeues the item after its backoff on a timer instead of
// sleeping in the worker. A requeue refused because the queue stopped or
// filled up counts the item as failed.
func (q *Queue) scheduleRetry(it item) {
	it.attempt++
	backoff := min((1<<it.attempt)*time.Second, maxBackoff)
	slog.Debug("Dispatch retrying", "subjectID", it.subjectID, "attempt", it.attempt, "backoff", backoff)
	time.AfterFunc(backoff, func() {
		if err := q.push(it, false); err != nil {
			slog.Error("Dispatch retry dropped", "error", err, "subjectID", it.subjectID, "attempt", it.attempt)
			q.mu.Lock()
			q.failed++
			q.mu.Unlock()
		}
	})
}

// process runs one attempt with a bounded context, converting processor
// panics into errors so one poisoned message cannot kill the worker.
func (q *Queue) process(it item) (reply string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Dispatch processor panic recovered", "panic", rec, "subjectID", it.subjectID)
			err = fmt.Errorf("processor panic: %v", rec)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), q.attemptTimeout)
	defer cancel()
	return q.processor.Process(ctx, it.subjectID, it.message)
}

func (q *Queue) recordDone(it item, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err == nil {
		q.processed++
	}
	q.latencies = append(q.latencies, time.Since(it.enqueuedAt))
	if len(q.latencies) > latencyWindow {
		q.latencies = q.latencies[len(q.latencies)-latencyWindow:]
	}
}
