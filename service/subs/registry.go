package subs

import (
	"strconv"
	"sync"
	"time"

	"GProject/logger"
	"GProject/service/transport"
)

// Handler receives MESSAGE frames delivered on a topic.
type Handler func(f *transport.Frame)

// Broker is the slice of the transport the registry needs. Subscribe and
// Unsubscribe are fire-and-forget frame writes.
type Broker interface {
	IsConnected() bool
	Subscribe(id, destination string)
	Unsubscribe(id string)
}

// Subscription binds one topic to one handler. Each room screen owns
// exactly one subscription to its own topic, so there is no handler
// reference counting.
type Subscription struct {
	ID        string
	Topic     string
	CreatedAt time.Time

	handler Handler
	active  bool
}

// Registry tracks topic subscriptions independently of transport state.
// While the transport is down, subscriptions are recorded and the broker
// frames are issued later from OnReady (no connected-flag polling).
type Registry struct {
	mu      sync.RWMutex
	broker  Broker
	byTopic map[string]*Subscription
	nextID  int64
}

func NewRegistry(b Broker) *Registry {
	return &Registry{
		broker:  b,
		byTopic: make(map[string]*Subscription),
	}
}

// Subscribe registers a handler for topic. Subscribing to an already
// active topic returns the existing handle without re-registering the
// handler chain, so a topic never delivers twice.
func (r *Registry) Subscribe(topic string, h Handler) *Subscription {
	r.mu.Lock()
	if sub, ok := r.byTopic[topic]; ok {
		r.mu.Unlock()
		return sub
	}
	r.nextID++
	sub := &Subscription{
		ID:        "sub-" + strconv.FormatInt(r.nextID, 10),
		Topic:     topic,
		CreatedAt: time.Now(),
		handler:   h,
		active:    true,
	}
	r.byTopic[topic] = sub
	connected := r.broker.IsConnected()
	r.mu.Unlock()

	if connected {
		r.broker.Subscribe(sub.ID, topic)
	}
	return sub
}

// Unsubscribe tears down the topic binding; no-op when the topic is not
// active.
func (r *Registry) Unsubscribe(topic string) {
	r.mu.Lock()
	sub, ok := r.byTopic[topic]
	if !ok {
		r.mu.Unlock()
		return
	}
	sub.active = false
	delete(r.byTopic, topic)
	connected := r.broker.IsConnected()
	r.mu.Unlock()

	if connected {
		r.broker.Unsubscribe(sub.ID)
	}
}

// ResubscribeAll re-issues broker subscribe frames for every topic still
// marked active. The session controller calls this whenever the transport
// re-enters Ready; it also serves as the deferred-subscribe flush for
// topics registered while disconnected.
func (r *Registry) ResubscribeAll() {
	r.mu.RLock()
	subs := make([]*Subscription, 0, len(r.byTopic))
	for _, sub := range r.byTopic {
		subs = append(subs, sub)
	}
	r.mu.RUnlock()

	for _, sub := range subs {
		r.broker.Subscribe(sub.ID, sub.Topic)
	}
	if len(subs) > 0 {
		logger.Infof("[subs] resubscribed %d topics", len(subs))
	}
}

// Dispatch routes an inbound MESSAGE frame to the subscription matching
// its destination (falling back to the subscription id header). Frames
// for unknown destinations are dropped.
func (r *Registry) Dispatch(f *transport.Frame) {
	dest := f.Header(transport.HdrDestination)
	subID := f.Header("subscription")

	r.mu.RLock()
	var sub *Subscription
	if s, ok := r.byTopic[dest]; ok {
		sub = s
	} else if subID != "" {
		for _, s := range r.byTopic {
			if s.ID == subID {
				sub = s
				break
			}
		}
	}
	r.mu.RUnlock()

	if sub == nil {
		logger.Debug("no subscription for frame dest=" + dest)
		return
	}
	sub.handler(f)
}

// Topics returns the active topic set, for tests and debugging.
func (r *Registry) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byTopic))
	for t := range r.byTopic {
		out = append(out, t)
	}
	return out
}
