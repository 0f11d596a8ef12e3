package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryBusDeliversToSubscriber(t *testing.T) {
	bus := NewInMemoryBus()
	ch, cancel := bus.Subscribe(context.Background(), SessionTopic("s1"))
	defer cancel()

	require.NoError(t, bus.Publish(context.Background(), SessionTopic("s1"), Event{Kind: "cycle_complete", Data: 3}))

	select {
	case ev := <-ch:
		assert.Equal(t, "cycle_complete", ev.Kind)
		assert.Equal(t, 3, ev.Data)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestInMemoryBusFIFOPerTopic(t *testing.T) {
	bus := NewInMemoryBus()
	ch, cancel := bus.Subscribe(context.Background(), SessionTopic("s1"))
	defer cancel()

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(context.Background(), SessionTopic("s1"), Event{Kind: "cycle_started", Data: i}))
	}
	for i := 0; i < 5; i++ {
		select {
		case ev := <-ch:
			assert.Equal(t, i, ev.Data)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestInMemoryBusCancelStopsDelivery(t *testing.T) {
	bus := NewInMemoryBus()
	ch, cancel := bus.Subscribe(context.Background(), SessionTopic("s1"))
	cancel()

	_, open := <-ch
	assert.False(t, open)
}

func TestPublishToSessionAndGlobalReachesBothTopics(t *testing.T) {
	bus := NewInMemoryBus()
	sessCh, cancelSess := bus.Subscribe(context.Background(), SessionTopic("s1"))
	defer cancelSess()
	globalCh, cancelGlobal := bus.Subscribe(context.Background(), GlobalTopic)
	defer cancelGlobal()

	require.NoError(t, PublishToSessionAndGlobal(context.Background(), bus, "s1", Event{Kind: "session_started"}))

	select {
	case ev := <-sessCh:
		assert.Equal(t, "session_started", ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out on session topic")
	}
	select {
	case ev := <-globalCh:
		assert.Equal(t, "session_started", ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out on global topic")
	}
}

func TestInMemoryBusNoSubscribersDoesNotBlock(t *testing.T) {
	bus := NewInMemoryBus()
	assert.NoError(t, bus.Publish(context.Background(), SessionTopic("nobody-listening"), Event{Kind: "x"}))
}
