package router

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/gastown-labs/orchkernel/internal/constants"
)

// Handler processes a dispatched message and optionally returns a response
// (spec §4.F: "async fn of message -> optional response").
type Handler func(Message) (Message, error)

// TopicHandler processes a BroadcastNotification delivered to a topic
// subscriber.
type TopicHandler func(*BroadcastNotification)

// ErrNoHandler is raised when send() finds no registered handler for a
// message's type (spec §4.F step 2).
type ErrNoHandler struct {
	MessageType string
}

func (e *ErrNoHandler) Error() string {
	return fmt.Sprintf("router: no handler registered for message type %q", e.MessageType)
}

// Router is the Typed Message Router (spec §4.F): the sole coupling
// between transports and handlers.
type Router struct {
	mu            sync.Mutex
	handlers      map[string][]Handler
	topicHandlers map[string][]TopicHandler

	dedupEnabled bool
	dedup        *dedupRing
}

// Option configures a Router at construction time.
type Option func(*Router)

// WithDedup toggles the dedup FIFO and sets its capacity (0 disables it).
func WithDedup(capacity int) Option {
	return func(r *Router) {
		if capacity <= 0 {
			r.dedupEnabled = false
			return
		}
		r.dedupEnabled = true
		r.dedup = newDedupRing(capacity)
	}
}

// New creates a Router with dedup enabled at the default capacity.
func New(opts ...Option) *Router {
	r := &Router{
		handlers:      make(map[string][]Handler),
		topicHandlers: make(map[string][]TopicHandler),
		dedupEnabled:  true,
		dedup:         newDedupRing(constants.DefaultRouterDedupCapacity),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a handler for a message type; multiple handlers per type
// are allowed and run in registration order (spec §4.F).
func (r *Router) Register(messageType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[messageType] = append(r.handlers[messageType], h)
}

// OnTopic subscribes a handler to a broadcast topic (spec §4.F on_topic).
func (r *Router) OnTopic(topic string, h TopicHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topicHandlers[topic] = append(r.topicHandlers[topic], h)
}

// Send dispatches message to its first registered handler (spec §4.F send()).
func (r *Router) Send(msg Message) (Message, error) {
	hash := contentHash(msg)

	if r.dedupEnabled {
		r.mu.Lock()
		seen := r.dedup.Contains(hash)
		r.mu.Unlock()
		if seen {
			return nil, nil
		}
	}

	r.mu.Lock()
	handlers := r.handlers[msg.Type()]
	r.mu.Unlock()
	if len(handlers) == 0 {
		return nil, &ErrNoHandler{MessageType: msg.Type()}
	}

	resp := r.invoke(handlers[0], msg)

	if r.dedupEnabled {
		r.mu.Lock()
		r.dedup.Add(hash)
		r.mu.Unlock()
	}

	return resp, nil
}

// SendMulti invokes every registered handler for message's type and
// aggregates their non-nil responses. Dedup applies only to Send (spec
// §4.F send_multi()).
func (r *Router) SendMulti(msg Message) ([]Message, error) {
	r.mu.Lock()
	handlers := append([]Handler(nil), r.handlers[msg.Type()]...)
	r.mu.Unlock()
	if len(handlers) == 0 {
		return nil, &ErrNoHandler{MessageType: msg.Type()}
	}

	var responses []Message
	for _, h := range handlers {
		if resp := r.invoke(h, msg); resp != nil {
			responses = append(responses, resp)
		}
	}
	return responses, nil
}

// invoke runs a single handler, converting a returned error into a
// synthesized ErrorMessage response (spec §4.F step 4) and stamping
// correlation_id on a successful response (step 3).
func (r *Router) invoke(h Handler, msg Message) Message {
	resp, err := h(msg)
	if err != nil {
		return NewErrorMessage(msg, err)
	}
	if resp != nil {
		stampCorrelation(msg, resp)
	}
	return resp
}

// Broadcast delivers a pre-built notification to every subscriber of its
// topic, swallowing (and logging) handler panics so one bad subscriber
// cannot block the rest (spec §4.F broadcast()).
func (r *Router) Broadcast(n *BroadcastNotification) int {
	r.mu.Lock()
	handlers := append([]TopicHandler(nil), r.topicHandlers[n.Topic]...)
	r.mu.Unlock()

	for _, h := range handlers {
		r.deliverTopic(h, n)
	}
	return len(handlers)
}

// Publish fabricates a BroadcastNotification and delivers it via Broadcast
// (spec §4.F publish()).
func (r *Router) Publish(topic string, payload any, sender string) int {
	n := &BroadcastNotification{
		Envelope: NewEnvelope(sender, PriorityNormal, nil),
		Topic:    topic,
		Payload:  payload,
	}
	return r.Broadcast(n)
}

func (r *Router) deliverTopic(h TopicHandler, n *BroadcastNotification) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("router: topic handler for %q panicked: %v", n.Topic, rec)
		}
	}()
	h(n)
}

// contentHash hashes every envelope field except message_id and timestamp,
// plus the message's type-specific payload if it implements HashPayload
// (spec §3 "Content hash").
func contentHash(msg Message) string {
	env := msg.Env()
	parts := struct {
		Type          string
		Sender        string
		Priority      Priority
		CorrelationID string
		Metadata      map[string]any
		Payload       any
	}{
		Type:          msg.Type(),
		Sender:        env.Sender,
		Priority:      env.Priority,
		CorrelationID: env.CorrelationID,
		Metadata:      env.Metadata,
	}
	if hp, ok := msg.(HashPayload); ok {
		parts.Payload = hp.HashPayload()
	}

	b, err := json.Marshal(parts)
	if err != nil {
		// Fall back to the type tag alone; marshal failure here would mean
		// a payload type json cannot represent, which dedup can tolerate
		// by simply never matching.
		b = []byte(msg.Type())
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
