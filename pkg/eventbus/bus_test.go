package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishWithNoSubscribersDoesNotBlock(t *testing.T) {
	b := New(4)
	done := make(chan struct{})
	go func() {
		b.Publish(Event{Type: TypeSynthesisStarted})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked with no subscribers")
	}
}

func TestBus_SubscriberReceivesPublishedEvents(t *testing.T) {
	b := New(4)
	sub := b.Subscribe()
	defer sub.Close()

	b.Publish(Event{Type: TypeAgentSpawned, AgentSpawned: &AgentSpawned{AgentID: "a1"}})

	select {
	case evt := <-sub.Events():
		require.Equal(t, TypeAgentSpawned, evt.Type)
		assert.Equal(t, "a1", evt.AgentSpawned.AgentID)
	case <-time.After(time.Second):
		t.Fatal("expected event not received")
	}
}

func TestBus_MultipleSubscribersEachReceiveEvents(t *testing.T) {
	b := New(4)
	sub1 := b.Subscribe()
	sub2 := b.Subscribe()
	defer sub1.Close()
	defer sub2.Close()

	b.Publish(Event{Type: TypeSynthesisStarted, SynthesisStarted: &SynthesisStarted{RequestID: "r1"}})

	for _, sub := range []*Subscription{sub1, sub2} {
		select {
		case evt := <-sub.Events():
			assert.Equal(t, "r1", evt.SynthesisStarted.RequestID)
		case <-time.After(time.Second):
			t.Fatal("subscriber missed event")
		}
	}
}

func TestBus_SlowSubscriberLagsWithoutBlockingPublisher(t *testing.T) {
	b := New(2)
	sub := b.Subscribe()
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(Event{Type: TypeAgentTextDelta, AgentTextDelta: &AgentTextDelta{AgentID: "a1"}})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}

	// Drain whatever is buffered; lag should reflect the dropped events.
	drained := 0
	for {
		select {
		case <-sub.Events():
			drained++
		default:
			goto doneDraining
		}
	}
doneDraining:
	assert.LessOrEqual(t, drained, 2)
	assert.Greater(t, sub.Lagged(), int64(0))
}

func TestBus_UnsubscribeIsNotAnError(t *testing.T) {
	b := New(4)
	sub := b.Subscribe()
	sub.Close()
	sub.Close() // idempotent

	assert.NotPanics(t, func() {
		b.Publish(Event{Type: TypeSynthesisStarted})
	})
}
