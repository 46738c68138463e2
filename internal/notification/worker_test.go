package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"coffee-booking-backend/internal/model"
)

// mockSink is a testify mock implementing Sink.
type mockSink struct {
	mock.Mock
	name string
}

func (m *mockSink) Name() string { return m.name }

func (m *mockSink) Send(ctx context.Context, ev Event) error {
	return m.Called(ev).Error(0)
}

// memDeadLetters collects dead letters in memory.
type memDeadLetters struct {
	mu      sync.Mutex
	letters []model.DeadLetter
	saved   chan struct{}
}

func newMemDeadLetters() *memDeadLetters {
	return &memDeadLetters{saved: make(chan struct{}, 16)}
}

func (m *memDeadLetters) SaveDeadLetter(ctx context.Context, dl *model.DeadLetter) error {
	m.mu.Lock()
	m.letters = append(m.letters, *dl)
	m.mu.Unlock()
	m.saved <- struct{}{}
	return nil
}

func (m *memDeadLetters) all() []model.DeadLetter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.DeadLetter(nil), m.letters...)
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the worker")
	}
}

var testPolicy = RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 4 * time.Millisecond}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, InitialBackoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, p.backoff(1))
	assert.Equal(t, 200*time.Millisecond, p.backoff(2))
	assert.Equal(t, 300*time.Millisecond, p.backoff(3))
	assert.Equal(t, 300*time.Millisecond, p.backoff(4))
}

func TestWorkerPool_Dispatch(t *testing.T) {
	sink := &mockSink{name: "chat"}
	wp := NewWorkerPool(1, 4, testPolicy, nil, sink)

	ev := Event{Kind: KindBooking, Title: "t", Body: "b"}
	wp.Dispatch(ev)

	select {
	case j := <-wp.jobs:
		assert.Equal(t, ev, j.event)
		assert.Equal(t, "chat", j.sink.Name())
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for job to be dispatched")
	}
}

func TestWorkerPool_DispatchFullQueueDeadLetters(t *testing.T) {
	sink := &mockSink{name: "chat"}
	dls := newMemDeadLetters()
	wp := NewWorkerPool(1, 1, testPolicy, dls, sink)

	wp.Dispatch(Event{Kind: KindBooking})
	wp.Dispatch(Event{Kind: KindBooking})

	require.Len(t, dls.all(), 1)
	assert.Equal(t, "notification queue full", dls.all()[0].LastError)
	assert.Equal(t, 0, dls.all()[0].Attempts)
}

func TestWorkerPool_WorkerLogic(t *testing.T) {
	t.Run("delivers to every sink", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(2)
		ev := Event{Kind: KindBooking, Title: "Booked"}

		chat := &mockSink{name: "chat"}
		chat.On("Send", ev).Return(nil).Once().Run(func(mock.Arguments) { wg.Done() })
		push := &mockSink{name: "webpush"}
		push.On("Send", ev).Return(nil).Once().Run(func(mock.Arguments) { wg.Done() })

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		wp := NewWorkerPool(2, 4, testPolicy, newMemDeadLetters(), chat, push)
		wp.Start(ctx)

		wp.Dispatch(ev)
		wg.Wait()
		chat.AssertExpectations(t)
		push.AssertExpectations(t)
	})

	t.Run("retries then succeeds", func(t *testing.T) {
		done := make(chan struct{})
		ev := Event{Kind: KindBooking}

		sink := &mockSink{name: "chat"}
		sink.On("Send", ev).Return(errors.New("timeout")).Twice()
		sink.On("Send", ev).Return(nil).Once().Run(func(mock.Arguments) { close(done) })

		dls := newMemDeadLetters()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		wp := NewWorkerPool(1, 4, testPolicy, dls, sink)
		wp.Start(ctx)

		wp.Dispatch(ev)
		waitFor(t, done)
		sink.AssertNumberOfCalls(t, "Send", 3)
		assert.Empty(t, dls.all())
	})

	t.Run("dead-letters after the last attempt", func(t *testing.T) {
		ev := Event{Kind: KindInvitationOutcome, Body: "accepted"}
		sink := &mockSink{name: "chat"}
		sink.On("Send", ev).Return(errors.New("bad gateway"))

		dls := newMemDeadLetters()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		wp := NewWorkerPool(1, 4, testPolicy, dls, sink)
		wp.Start(ctx)

		wp.Dispatch(ev)
		waitFor(t, dls.saved)

		sink.AssertNumberOfCalls(t, "Send", 3)
		letters := dls.all()
		require.Len(t, letters, 1)
		assert.Equal(t, "chat", letters[0].Sink)
		assert.Equal(t, KindInvitationOutcome, letters[0].Kind)
		assert.Equal(t, 3, letters[0].Attempts)
		assert.Equal(t, "bad gateway", letters[0].LastError)
		assert.Contains(t, letters[0].Payload, `"body":"accepted"`)
	})

	t.Run("permanent errors are not retried", func(t *testing.T) {
		ev := Event{Kind: KindBooking}
		sink := &mockSink{name: "chat"}
		sink.On("Send", ev).Return(Permanent(errors.New("invalid receive id")))

		dls := newMemDeadLetters()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		wp := NewWorkerPool(1, 4, testPolicy, dls, sink)
		wp.Start(ctx)

		wp.Dispatch(ev)
		waitFor(t, dls.saved)
		sink.AssertNumberOfCalls(t, "Send", 1)
		assert.Equal(t, 1, dls.all()[0].Attempts)
	})
}

func TestWorkerPool_ShutdownDrainsQueue(t *testing.T) {
	sink := &mockSink{name: "chat"}
	dls := newMemDeadLetters()
	// A cancelled worker may still pick up a queued job; it fails fast
	// and is dead-lettered like the rest.
	sink.On("Send", mock.Anything).Return(context.Canceled).Maybe()
	wp := NewWorkerPool(1, 4, testPolicy, dls, sink)

	wp.Dispatch(Event{Kind: KindBooking})
	wp.Dispatch(Event{Kind: KindBooking})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	wp.Start(ctx)
	wp.Wait()

	assert.Len(t, dls.all(), 2)
}

func TestIsPermanent(t *testing.T) {
	base := errors.New("boom")
	assert.True(t, IsPermanent(Permanent(base)))
	assert.ErrorIs(t, Permanent(base), base)
	assert.False(t, IsPermanent(base))
	assert.Nil(t, Permanent(nil))
}
