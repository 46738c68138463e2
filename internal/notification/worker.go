package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"coffee-booking-backend/internal/model"
	"coffee-booking-backend/internal/store"
)

// RetryPolicy bounds delivery attempts per sink.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// backoff returns the delay after the given failed attempt (1-based).
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.InitialBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	return d
}

type job struct {
	sink  Sink
	event Event
}

// WorkerPool manages a pool of workers for sending notifications.
type WorkerPool struct {
	size        int
	jobs        chan job
	sinks       []Sink
	policy      RetryPolicy
	deadLetters store.DeadLetterStore
	wg          sync.WaitGroup

	// sleep waits for d or until ctx is done; it reports whether d elapsed.
	sleep func(ctx context.Context, d time.Duration) bool
}

// NewWorkerPool creates a new worker pool fanning each event out to sinks.
func NewWorkerPool(size, queueSize int, policy RetryPolicy, deadLetters store.DeadLetterStore, sinks ...Sink) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	if queueSize <= 0 {
		queueSize = size
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	return &WorkerPool{
		size:        size,
		jobs:        make(chan job, queueSize),
		sinks:       sinks,
		policy:      policy,
		deadLetters: deadLetters,
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

// Wait blocks until every worker has exited.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()
	log.Printf("Worker %d started", id)
	for {
		select {
		case j := <-wp.jobs:
			wp.deliver(ctx, j)
		case <-ctx.Done():
			wp.drain(ctx)
			log.Printf("Worker %d shutting down", id)
			return
		}
	}
}

// drain dead-letters the jobs still queued at shutdown.
func (wp *WorkerPool) drain(ctx context.Context) {
	for {
		select {
		case j := <-wp.jobs:
			wp.deadLetter(ctx, j, 0, ctx.Err())
		default:
			return
		}
	}
}

// Dispatch queues ev for every sink without blocking. When the queue is full
// the event is dead-lettered for that sink.
func (wp *WorkerPool) Dispatch(ev Event) {
	for _, s := range wp.sinks {
		j := job{sink: s, event: ev}
		select {
		case wp.jobs <- j:
		default:
			log.Printf("Notification queue full; dropping %s event for %s", ev.Kind, s.Name())
			wp.deadLetter(context.Background(), j, 0, fmt.Errorf("notification queue full"))
		}
	}
}

func (wp *WorkerPool) deliver(ctx context.Context, j job) {
	var err error
	attempt := 0
	for attempt < wp.policy.MaxAttempts {
		attempt++
		if err = j.sink.Send(ctx, j.event); err == nil {
			return
		}
		log.Printf("Sink %s failed %s event (attempt %d/%d): %v",
			j.sink.Name(), j.event.Kind, attempt, wp.policy.MaxAttempts, err)
		if IsPermanent(err) || attempt == wp.policy.MaxAttempts {
			break
		}
		if !wp.sleep(ctx, wp.policy.backoff(attempt)) {
			break
		}
	}
	wp.deadLetter(ctx, j, attempt, err)
}

func (wp *WorkerPool) deadLetter(ctx context.Context, j job, attempts int, cause error) {
	if wp.deadLetters == nil {
		return
	}
	payload, err := json.Marshal(j.event)
	if err != nil {
		log.Printf("Failed to encode dead letter for %s: %v", j.sink.Name(), err)
		return
	}
	dl := &model.DeadLetter{
		Sink:      j.sink.Name(),
		Kind:      j.event.Kind,
		Payload:   string(payload),
		Attempts:  attempts,
		CreatedAt: time.Now().UTC(),
	}
	if cause != nil {
		dl.LastError = cause.Error()
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := wp.deadLetters.SaveDeadLetter(saveCtx, dl); err != nil {
		log.Printf("Failed to save dead letter for %s: %v", j.sink.Name(), err)
	}
}
