package events

import (
	"errors"
	"testing"
	"time"
)

func TestNewBus(t *testing.T) {
	bus := NewBus()
	if bus == nil {
		t.Fatal("expected non-nil bus")
	}
	if bus.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", bus.SubscriberCount())
	}
}

func TestBusSubscribeUnsubscribe(t *testing.T) {
	bus := NewBus()

	ch1 := bus.Subscribe()
	ch2 := bus.Subscribe()
	if bus.SubscriberCount() != 2 {
		t.Errorf("expected 2 subscribers, got %d", bus.SubscriberCount())
	}

	bus.Unsubscribe(ch1)
	if bus.SubscriberCount() != 1 {
		t.Errorf("expected 1 subscriber, got %d", bus.SubscriberCount())
	}

	// Unsubscribed channel should be closed
	if _, ok := <-ch1; ok {
		t.Error("expected unsubscribed channel to be closed")
	}

	bus.Unsubscribe(ch2)
	if bus.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", bus.SubscriberCount())
	}
}

func TestBusPublishMultipleSubscribers(t *testing.T) {
	bus := NewBus()

	ch1 := bus.Subscribe()
	ch2 := bus.Subscribe()

	bus.Publish(NewWorkerStartedEvent(3, 4242))

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case received := <-ch:
			if received.Type != EventWorkerStarted {
				t.Errorf("subscriber %d: expected type %s, got %s", i, EventWorkerStarted, received.Type)
			}
			if received.WorkerID != 3 {
				t.Errorf("subscriber %d: expected worker 3, got %d", i, received.WorkerID)
			}
		case <-time.After(100 * time.Millisecond):
			t.Errorf("subscriber %d: timeout waiting for event", i)
		}
	}
}

func TestBusPublishNonBlocking(t *testing.T) {
	bus := NewBus()
	bus.bufferSize = 1

	ch := bus.Subscribe()

	// Second and third events are dropped, Publish must not block
	bus.Publish(NewWorkerStoppedEvent(0, 1))
	bus.Publish(NewWorkerStoppedEvent(1, 1))
	bus.Publish(NewWorkerStoppedEvent(2, 1))

	select {
	case ev := <-ch:
		if ev.WorkerID != 0 {
			t.Errorf("expected first event for worker 0, got %d", ev.WorkerID)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for first event")
	}
}

func TestBusClose(t *testing.T) {
	bus := NewBus()

	ch := bus.Subscribe()
	bus.Close()

	if bus.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after close, got %d", bus.SubscriberCount())
	}
	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed")
	}
}

func TestEventCreation(t *testing.T) {
	t.Run("WorkerStarted", func(t *testing.T) {
		ev := NewWorkerStartedEvent(1, 99)
		if ev.Type != EventWorkerStarted || ev.Data.ThreadID != 99 {
			t.Errorf("unexpected event: %+v", ev)
		}
	})

	t.Run("WorkerStopped", func(t *testing.T) {
		ev := NewWorkerStoppedEvent(2, 17)
		if ev.Type != EventWorkerStopped || ev.Data.JobsRun != 17 {
			t.Errorf("unexpected event: %+v", ev)
		}
	})

	t.Run("JobPanicked", func(t *testing.T) {
		ev := NewJobPanickedEvent(0, 5, errors.New("boom"))
		if ev.Type != EventJobPanicked {
			t.Errorf("expected %s, got %s", EventJobPanicked, ev.Type)
		}
		if ev.Data.JobSeq != 5 || ev.Data.Error != "boom" {
			t.Errorf("unexpected data: %+v", ev.Data)
		}

		nilErr := NewJobPanickedEvent(0, 6, nil)
		if nilErr.Data.Error != "" {
			t.Errorf("expected empty error, got %q", nilErr.Data.Error)
		}
	})

	t.Run("PoolShutdown", func(t *testing.T) {
		ev := NewPoolShutdownEvent(4)
		if ev.WorkerID != -1 || ev.Data.Workers != 4 {
			t.Errorf("unexpected event: %+v", ev)
		}
	})
}

func TestBusSubscribeAfterClose(t *testing.T) {
	bus := NewBus()
	bus.Close()

	ch := bus.Subscribe()
	if _, ok := <-ch; ok {
		t.Error("expected subscription after close to be closed")
	}

	// Must not panic
	bus.Publish(NewPoolShutdownEvent(1))
}
