package events

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestEventBus_Subscribe(t *testing.T) {
	bus := New(10)
	defer bus.Close()

	ch := bus.Subscribe()

	bus.Publish(NewExecutionStartedEvent("wf-1", "ex-1", 3))

	select {
	case received := <-ch:
		if received.EventType() != TypeExecutionStarted {
			t.Errorf("expected %s, got %s", TypeExecutionStarted, received.EventType())
		}
		if received.WorkflowID() != "wf-1" {
			t.Errorf("expected wf-1, got %s", received.WorkflowID())
		}
		if received.ExecutionID() != "ex-1" {
			t.Errorf("expected ex-1, got %s", received.ExecutionID())
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for event")
	}
}

func TestEventBus_SubscribeByType(t *testing.T) {
	bus := New(10)
	defer bus.Close()

	stepCh := bus.Subscribe(TypeStepStarted, TypeStepCompleted)
	allCh := bus.Subscribe()

	bus.Publish(NewExecutionStartedEvent("wf-1", "ex-1", 1))
	bus.Publish(NewStepStartedEvent("wf-1", "ex-1", "n1", "Fetch", "action"))

	for i := 0; i < 2; i++ {
		select {
		case <-allCh:
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("allCh should receive event %d", i)
		}
	}

	select {
	case received := <-stepCh:
		if received.EventType() != TypeStepStarted {
			t.Errorf("expected step_started, got %s", received.EventType())
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("stepCh should receive step event")
	}

	select {
	case received := <-stepCh:
		t.Errorf("stepCh should not receive %s", received.EventType())
	default:
	}
}

func TestEventBus_SubscribeForExecution(t *testing.T) {
	bus := New(10)
	defer bus.Close()

	ch := bus.SubscribeForExecution("ex-2")

	bus.Publish(NewStepSkippedEvent("wf-1", "ex-1", "n1", "A", "branch_not_taken"))
	bus.Publish(NewStepSkippedEvent("wf-1", "ex-2", "n2", "B", "ancestor_failed"))

	select {
	case received := <-ch:
		skipped, ok := received.(StepSkippedEvent)
		if !ok {
			t.Fatalf("expected StepSkippedEvent, got %T", received)
		}
		if skipped.NodeID != "n2" || skipped.Reason != "ancestor_failed" {
			t.Errorf("unexpected event %+v", skipped)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}

	select {
	case received := <-ch:
		t.Errorf("unexpected event for %s", received.ExecutionID())
	default:
	}
}

func TestEventBus_PriorityNeverDrops(t *testing.T) {
	bus := New(1)
	defer bus.Close()

	prio := bus.SubscribePriority()

	var wg sync.WaitGroup
	wg.Add(1)
	received := 0
	go func() {
		defer wg.Done()
		for range prio {
			received++
			if received == 20 {
				return
			}
		}
	}()

	for i := 0; i < 20; i++ {
		bus.PublishPriority(NewExecutionFailedEvent("wf", fmt.Sprintf("ex-%d", i), "boom", time.Second, 1))
	}
	wg.Wait()

	if received != 20 {
		t.Errorf("expected 20 events, got %d", received)
	}
}

func TestEventBus_RingBufferDropsOldest(t *testing.T) {
	bus := New(2)
	defer bus.Close()

	ch := bus.Subscribe()
	for i := 0; i < 5; i++ {
		bus.Publish(NewStepStartedEvent("wf", "ex", fmt.Sprintf("n%d", i), "", "action"))
	}

	if bus.DroppedCount() != 3 {
		t.Errorf("expected 3 dropped, got %d", bus.DroppedCount())
	}

	first := (<-ch).(StepStartedEvent)
	second := (<-ch).(StepStartedEvent)
	if first.NodeID != "n3" || second.NodeID != "n4" {
		t.Errorf("expected newest events n3,n4, got %s,%s", first.NodeID, second.NodeID)
	}
}

func TestEventBus_ConcurrentPublish(t *testing.T) {
	bus := New(1000)
	defer bus.Close()

	ch := bus.Subscribe()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				bus.Publish(NewStepCompletedEvent("wf", "ex", fmt.Sprintf("n%d-%d", n, j), "", "success", "", time.Millisecond))
			}
		}(i)
	}
	wg.Wait()

	if got := len(ch); got != 500 {
		t.Errorf("expected 500 buffered events, got %d", got)
	}
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := New(10)
	defer bus.Close()

	ch := bus.Subscribe()
	bus.Unsubscribe(ch)

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after unsubscribe")
	}

	// Publishing after unsubscribe must not panic.
	bus.Publish(NewExecutionStartedEvent("wf", "ex", 1))
}

func TestEventBus_CloseClosesSubscribers(t *testing.T) {
	bus := New(10)
	ch := bus.Subscribe()
	prio := bus.SubscribePriority()
	bus.Close()
	bus.Close()

	if _, ok := <-ch; ok {
		t.Error("subscriber channel should be closed")
	}
	if _, ok := <-prio; ok {
		t.Error("priority channel should be closed")
	}
	bus.Publish(NewExecutionStartedEvent("wf", "ex", 1))

	late := bus.Subscribe()
	if _, ok := <-late; ok {
		t.Error("subscription after close should be closed")
	}
}
