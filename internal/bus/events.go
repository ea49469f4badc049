// Package bus is a small in-process pub/sub used to decouple the
// supervisor, the config watcher and the watch loop from whatever wants
// to observe them.
package bus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	. "github.com/roelfdiedericks/clawkeeper/internal/logging"
)

// Well-known topics.
const (
	TopicGatewayState  = "gateway.state"  // supervisor state transitions
	TopicGatewayHealth = "gateway.health" // probe results from the watch loop
	TopicConfigChanged = "config.changed" // a watched config document changed on disk
	TopicAuthSynced    = "auth.synced"    // agent credential records were written
)

// Event represents a notification broadcast to subscribers
type Event struct {
	ID        string    // Unique event ID
	Topic     string    // Event topic: "gateway.state", "config.changed", etc.
	Data      any       // Optional payload data
	Timestamp time.Time // When the event was published
	Source    string    // Origin: "cli", "watch", "supervisor", "system"
}

// EventHandler processes an event (no return value - fire and forget)
type EventHandler func(Event)

// SubscriptionID uniquely identifies an event subscription
type SubscriptionID uint64

// subscription holds a single event handler
type subscription struct {
	id      SubscriptionID
	handler EventHandler
}

var (
	subscriptions   = make(map[string][]subscription)
	subscriptionsMu sync.RWMutex

	nextSubscriptionID uint64
)

// Subscribe registers a handler for an event topic.
// Returns a SubscriptionID that can be used to unsubscribe.
func Subscribe(topic string, handler EventHandler) SubscriptionID {
	id := SubscriptionID(atomic.AddUint64(&nextSubscriptionID, 1))

	subscriptionsMu.Lock()
	defer subscriptionsMu.Unlock()

	subscriptions[topic] = append(subscriptions[topic], subscription{
		id:      id,
		handler: handler,
	})

	L_trace("bus: subscribed", "topic", topic, "subscriptionID", id)
	return id
}

// Unsubscribe removes a subscription by its ID.
// Returns true if the subscription was found and removed.
func Unsubscribe(id SubscriptionID) bool {
	subscriptionsMu.Lock()
	defer subscriptionsMu.Unlock()

	for topic, subs := range subscriptions {
		for i, sub := range subs {
			if sub.id == id {
				subscriptions[topic] = append(subs[:i], subs[i+1:]...)
				if len(subscriptions[topic]) == 0 {
					delete(subscriptions, topic)
				}
				L_trace("bus: unsubscribed", "topic", topic, "subscriptionID", id)
				return true
			}
		}
	}
	return false
}

// Publish broadcasts an event to all subscribers of the topic.
// Handlers are called asynchronously in separate goroutines.
func Publish(topic string, data any) {
	PublishWithSource(topic, data, "system")
}

// PublishWithSource broadcasts an event with source information.
func PublishWithSource(topic string, data any, source string) {
	event := Event{
		ID:        uuid.New().String(),
		Topic:     topic,
		Data:      data,
		Timestamp: time.Now(),
		Source:    source,
	}

	subscriptionsMu.RLock()
	subs := subscriptions[topic]
	// Copy slice to avoid holding lock during handler execution
	subsCopy := make([]subscription, len(subs))
	copy(subsCopy, subs)
	subscriptionsMu.RUnlock()

	if len(subsCopy) == 0 {
		L_trace("bus: published (no subscribers)", "topic", topic)
		return
	}

	L_debug("bus: published", "topic", topic, "subscribers", len(subsCopy), "source", source)

	for _, sub := range subsCopy {
		go func(s subscription) {
			defer func() {
				if r := recover(); r != nil {
					L_error("bus: handler panic", "topic", topic, "subscriptionID", s.id, "panic", r)
				}
			}()
			s.handler(event)
		}(sub)
	}
}

// Topics returns all topics with active subscriptions
func Topics() []string {
	subscriptionsMu.RLock()
	defer subscriptionsMu.RUnlock()

	topics := make([]string, 0, len(subscriptions))
	for topic := range subscriptions {
		topics = append(topics, topic)
	}
	return topics
}

// CountSubscribers returns the number of subscribers for a topic
func CountSubscribers(topic string) int {
	subscriptionsMu.RLock()
	defer subscriptionsMu.RUnlock()

	return len(subscriptions[topic])
}
