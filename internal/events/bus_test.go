package events_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cicconel11/TruthLayer-sub001/internal/events"
)

func receiveOne(t *testing.T, sub *events.Subscription) events.Event {
	t.Helper()

	select {
	case e := <-sub.Events():
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return events.Event{}
	}
}

func TestBus_PublishDeliversToSubscriber(t *testing.T) {
	bus := events.NewBus(nil)
	defer bus.Close()

	sub := bus.Subscribe(4)

	bus.Publish(events.New(events.JobAdded, events.JobPayload{JobID: "j1", JobType: "collection"}))

	e := receiveOne(t, sub)
	if e.Type != events.JobAdded {
		t.Errorf("expected type %q, got %q", events.JobAdded, e.Type)
	}
	if e.ID == uuid.Nil {
		t.Error("expected event id to be set")
	}
	if e.Timestamp.IsZero() {
		t.Error("expected event timestamp to be set")
	}
	payload, ok := e.Payload.(events.JobPayload)
	if !ok {
		t.Fatalf("expected JobPayload, got %T", e.Payload)
	}
	if payload.JobID != "j1" {
		t.Errorf("expected job id j1, got %s", payload.JobID)
	}
}

func TestBus_TypeFilter(t *testing.T) {
	bus := events.NewBus(nil)
	defer bus.Close()

	cycleSub := bus.Subscribe(4, events.CycleStarted, events.CycleCompleted)
	allSub := bus.Subscribe(4)

	bus.Publish(events.New(events.JobAdded, nil))
	bus.Publish(events.New(events.CycleStarted, events.CyclePayload{CycleID: "core_daily"}))

	e := receiveOne(t, cycleSub)
	if e.Type != events.CycleStarted {
		t.Errorf("filtered subscriber received %q", e.Type)
	}

	if got := receiveOne(t, allSub).Type; got != events.JobAdded {
		t.Errorf("expected unfiltered subscriber to see job.added first, got %q", got)
	}
}

func TestBus_PublishNeverBlocks(t *testing.T) {
	bus := events.NewBus(nil)
	defer bus.Close()

	sub := bus.Subscribe(1)
	_ = sub

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(events.New(events.JobStarted, nil))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	if bus.Dropped() == 0 {
		t.Error("expected dropped events to be counted")
	}
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	bus := events.NewBus(nil)
	defer bus.Close()

	sub := bus.Subscribe(4)
	sub.Close()

	// Channel must be closed; receive should not block.
	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Error("expected closed channel after unsubscribe")
		}
	case <-time.After(time.Second):
		t.Fatal("receive blocked on closed subscription")
	}

	// Publishing after unsubscribe must not panic.
	bus.Publish(events.New(events.JobCompleted, nil))
}

func TestBus_CloseIsIdempotent(t *testing.T) {
	bus := events.NewBus(nil)
	sub := bus.Subscribe(4)

	bus.Close()
	bus.Close()
	sub.Close()

	// Publish after close is a no-op.
	bus.Publish(events.New(events.JobFailed, nil))

	if _, ok := <-sub.Events(); ok {
		t.Error("expected subscription channel closed after bus close")
	}
}

func TestNewError(t *testing.T) {
	e := events.NewError(events.CycleFailed, events.CyclePayload{CycleID: "c"}, errors.New("collector unavailable"))
	if e.Error != "collector unavailable" {
		t.Errorf("expected error detail, got %q", e.Error)
	}

	e = events.NewError(events.CycleCompleted, nil, nil)
	if e.Error != "" {
		t.Errorf("expected empty error detail, got %q", e.Error)
	}
}
