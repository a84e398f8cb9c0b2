// Package pubsub maps topics to the connections currently subscribed to them.
package pubsub

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
)

// Subscriber is one live connection. Deliver must not block; it reports false
// when the payload was dropped.
type Subscriber interface {
	Deliver(subID, topic string, body []byte) bool
}

// Router is what the chat services publish through.
type Router interface {
	Publish(topic string, v any) error
	Subscribe(s Subscriber, subID, topic string)
	Unsubscribe(s Subscriber, subID string)
	Remove(s Subscriber)
}

type subscription struct {
	sub Subscriber
	id  string
}

// Broker is the single-process Router. Delivery is at most once: nothing is
// queued for connections that are not subscribed at publish time.
type Broker struct {
	mu     sync.RWMutex
	topics map[string]map[subscription]struct{}
	bySub  map[Subscriber]map[string]string // subID -> topic
	log    zerolog.Logger
}

func NewBroker(log zerolog.Logger) *Broker {
	return &Broker{
		topics: make(map[string]map[subscription]struct{}),
		bySub:  make(map[Subscriber]map[string]string),
		log:    log.With().Str("component", "pubsub").Logger(),
	}
}

func (b *Broker) Subscribe(s Subscriber, subID, topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.bySub[s]
	if !ok {
		subs = make(map[string]string)
		b.bySub[s] = subs
	}
	if old, ok := subs[subID]; ok {
		b.dropLocked(subscription{s, subID}, old)
	}
	subs[subID] = topic

	set, ok := b.topics[topic]
	if !ok {
		set = make(map[subscription]struct{})
		b.topics[topic] = set
	}
	set[subscription{s, subID}] = struct{}{}
}

func (b *Broker) Unsubscribe(s Subscriber, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.bySub[s]
	topic, ok := subs[subID]
	if !ok {
		return
	}
	delete(subs, subID)
	if len(subs) == 0 {
		delete(b.bySub, s)
	}
	b.dropLocked(subscription{s, subID}, topic)
}

// Remove forgets every subscription of s.
func (b *Broker) Remove(s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for subID, topic := range b.bySub[s] {
		b.dropLocked(subscription{s, subID}, topic)
	}
	delete(b.bySub, s)
}

func (b *Broker) dropLocked(sub subscription, topic string) {
	set := b.topics[topic]
	delete(set, sub)
	if len(set) == 0 {
		delete(b.topics, topic)
	}
}

// Publish encodes v once and hands it to every current subscriber of topic.
func (b *Broker) Publish(topic string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}

	b.mu.RLock()
	targets := make([]subscription, 0, len(b.topics[topic]))
	for sub := range b.topics[topic] {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	dropped := 0
	for _, t := range targets {
		if !t.sub.Deliver(t.id, topic, body) {
			dropped++
		}
	}
	if dropped > 0 {
		b.log.Warn().Str("topic", topic).Int("dropped", dropped).Msg("slow subscribers skipped")
	}
	return nil
}

// Subscribers returns how many subscriptions topic has.
func (b *Broker) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}
