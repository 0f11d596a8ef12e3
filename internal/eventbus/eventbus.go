// Package eventbus implements the topic-scoped publish/subscribe contract of
// spec §6: a per-session topic and a global "sessions" topic, both FIFO per
// session. It is grounded on the teacher's Redis pub/sub pattern
// (internal/workspaces.RedisGenerationCache) but generalized from a single
// fixed channel to an arbitrary topic namespace.
package eventbus

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// GlobalTopic is the cross-session topic every session's events also land on
// (spec §6 "Global: sessions").
const GlobalTopic = "sessions"

// Event is one published message. Kind matches the message names of spec §6
// (session_started, cycle_complete, claim_died, ...); Data is the
// JSON-serializable payload.
type Event struct {
	Kind string
	Data any
}

// SessionTopic returns the per-session topic name (spec §6 "session:<id>").
func SessionTopic(sessionID string) string { return "session:" + sessionID }

// Bus publishes events to topics and lets callers subscribe to them.
type Bus interface {
	Publish(ctx context.Context, topic string, ev Event) error
	Subscribe(ctx context.Context, topic string) (<-chan Event, func())
}

// InMemoryBus is an in-process Bus for single-node deployments and tests: a
// fan-out of buffered channels per topic, preserving FIFO per publisher.
type InMemoryBus struct {
	mu   sync.RWMutex
	subs map[string][]chan Event
}

// NewInMemoryBus constructs an empty in-process bus.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{subs: make(map[string][]chan Event)}
}

func (b *InMemoryBus) Publish(_ context.Context, topic string, ev Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[topic] {
		select {
		case ch <- ev:
		default:
			log.Warn().Str("topic", topic).Str("kind", ev.Kind).Msg("eventbus: subscriber channel full, dropping event")
		}
	}
	return nil
}

func (b *InMemoryBus) Subscribe(_ context.Context, topic string) (<-chan Event, func()) {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], ch)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		chans := b.subs[topic]
		for i, c := range chans {
			if c == ch {
				b.subs[topic] = append(chans[:i], chans[i+1:]...)
				break
			}
		}
		close(ch)
	}
	return ch, cancel
}

// RedisBus fans events out across processes via Redis pub/sub, for
// multi-replica deployments that need session event delivery to reach a
// client connected to a different process (spec §2 Event Bus responsibility).
type RedisBus struct {
	client redis.UniversalClient
}

// NewRedisBus constructs a Redis-backed Bus.
func NewRedisBus(client redis.UniversalClient) *RedisBus {
	return &RedisBus{client: client}
}

type wireEvent struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

func (b *RedisBus) Publish(ctx context.Context, topic string, ev Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(wireEvent{Kind: ev.Kind, Data: data})
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, "dialectic:"+topic, payload).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, topic string) (<-chan Event, func()) {
	out := make(chan Event, 64)
	sub := b.client.Subscribe(ctx, "dialectic:"+topic)
	go func() {
		for msg := range sub.Channel() {
			var we wireEvent
			if err := json.Unmarshal([]byte(msg.Payload), &we); err != nil {
				log.Warn().Err(err).Str("topic", topic).Msg("eventbus: decode failed")
				continue
			}
			var data any
			_ = json.Unmarshal(we.Data, &data)
			select {
			case out <- Event{Kind: we.Kind, Data: data}:
			default:
			}
		}
	}()
	cancel := func() {
		_ = sub.Close()
		close(out)
	}
	return out, cancel
}

// PublishToSessionAndGlobal publishes ev on both the per-session topic and
// the global topic, matching every producer message in spec §6.
func PublishToSessionAndGlobal(ctx context.Context, bus Bus, sessionID string, ev Event) error {
	if err := bus.Publish(ctx, SessionTopic(sessionID), ev); err != nil {
		return err
	}
	return bus.Publish(ctx, GlobalTopic, ev)
}
