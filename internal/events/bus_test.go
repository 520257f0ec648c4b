package events

import (
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus(nil)

	ch := bus.Subscribe("agent-1", []Type{TypeAttention})

	event := New(TypeAttention, "monitor", "agent-1", PriorityNormal, map[string]interface{}{
		"status": "waiting_user",
	}, time.Now())
	bus.Publish(event)

	select {
	case received := <-ch:
		if received.ID != event.ID {
			t.Errorf("expected event ID %s, got %s", event.ID, received.ID)
		}
		if received.Type != TypeAttention {
			t.Errorf("expected event type %s, got %s", TypeAttention, received.Type)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("did not receive event within timeout")
	}

	bus.Unsubscribe("agent-1", ch)
}

func TestBus_FilterByType(t *testing.T) {
	bus := NewBus(nil)

	ch := bus.Subscribe("agent-1", []Type{TypeBudgetExceeded})

	bus.Publish(New(TypeAttention, "monitor", "agent-1", PriorityNormal, nil, time.Now()))

	select {
	case <-ch:
		t.Fatal("should not have received an attention event on a budget_exceeded-only subscription")
	case <-time.After(20 * time.Millisecond):
	}

	want := New(TypeBudgetExceeded, "monitor", "agent-1", PriorityHigh, nil, time.Now())
	bus.Publish(want)

	select {
	case received := <-ch:
		if received.Type != TypeBudgetExceeded {
			t.Errorf("expected budget_exceeded, got %s", received.Type)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("did not receive budget_exceeded event")
	}
}

func TestBus_BroadcastToAllTarget(t *testing.T) {
	bus := NewBus(nil)

	ch := bus.Subscribe("all", nil)
	bus.Publish(New(TypeAttention, "monitor", "agent-7", PriorityNormal, nil, time.Now()))

	select {
	case received := <-ch:
		if received.Target != "agent-7" {
			t.Errorf("expected target agent-7 to reach the all-subscriber, got %s", received.Target)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("all-subscriber did not receive event")
	}
}

func TestBus_DropsEventWhenChannelFull(t *testing.T) {
	bus := NewBus(nil)
	ch := bus.Subscribe("agent-1", nil)

	for i := 0; i < 200; i++ {
		bus.Publish(New(TypeAttention, "monitor", "agent-1", PriorityNormal, nil, time.Now()))
	}

	if bus.DroppedEventCount() == 0 {
		t.Fatal("expected at least one dropped event once the subscriber channel filled")
	}
	_ = ch
}
