package pubsub

import "sync"

type Published struct {
	Topic   string
	Payload any
}

// Recorder is a Router that only remembers what was published. Services take
// it in tests in place of a Broker.
type Recorder struct {
	mu   sync.Mutex
	msgs []Published
}

func (r *Recorder) Publish(topic string, v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, Published{Topic: topic, Payload: v})
	return nil
}

func (r *Recorder) Subscribe(Subscriber, string, string) {}
func (r *Recorder) Unsubscribe(Subscriber, string)       {}
func (r *Recorder) Remove(Subscriber)                    {}

func (r *Recorder) All() []Published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Published(nil), r.msgs...)
}

// On returns the payloads published to topic, oldest first.
func (r *Recorder) On(topic string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []any
	for _, m := range r.msgs {
		if m.Topic == topic {
			out = append(out, m.Payload)
		}
	}
	return out
}
