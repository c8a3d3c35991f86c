package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensemble-dev/ensemble/pkg/domain"
)

func TestMultipleSubscribersEachReceive(t *testing.T) {
	b := NewBroker()

	ch1, cancel1 := b.Subscribe()
	defer cancel1()
	ch2, cancel2 := b.Subscribe()
	defer cancel2()

	b.Publish(domain.Event{Type: domain.EventRunPhase})

	ev1 := <-ch1
	ev2 := <-ch2
	assert.Equal(t, domain.EventRunPhase, ev1.Type)
	assert.Equal(t, domain.EventRunPhase, ev2.Type)
	assert.False(t, ev1.Time.IsZero(), "publish must stamp the event")
}

func TestDeliveryOrderMatchesPublishOrder(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe()
	defer cancel()

	types := []domain.EventType{
		domain.EventSessionAttached,
		domain.EventRunPhase,
		domain.EventStepDone,
		domain.EventRunPhase,
	}
	for _, typ := range types {
		b.Publish(domain.Event{Type: typ})
	}

	for n, want := range types {
		got := <-ch
		assert.Equal(t, want, got.Type, "event %d out of order", n)
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := NewBroker(WithBuffer(1))
	ch, cancel := b.Subscribe()
	defer cancel()

	// Second publish overflows the buffer; it must drop, not deadlock.
	b.Publish(domain.Event{Type: domain.EventRunPhase})
	b.Publish(domain.Event{Type: domain.EventStepDone})

	ev := <-ch
	assert.Equal(t, domain.EventRunPhase, ev.Type)
	select {
	case ev, ok := <-ch:
		require.False(t, ok || ev.Type != "", "overflowed event should have been dropped")
	default:
	}
}

func TestCancelClosesChannelAndIsIdempotent(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe()

	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, b.Subscribers())

	// Publishing after cancellation must not panic.
	b.Publish(domain.Event{Type: domain.EventRunPhase})
}
