// Package router implements the Typed Message Router (spec §4.F): the sole
// coupling between transports and handlers, offering type-keyed request/
// response dispatch, topic-keyed publish/subscribe, deduplication, and
// error-wrapping. Grounded on message_handlers.py's handler catalogue from
// the pre-distillation original and on internal/eventbus.Bus's broadcast
// pattern, generalized from decision-specific events to arbitrary topics.
package router

import (
	"time"

	"github.com/google/uuid"
)

// Priority is the envelope priority tag (spec §3).
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Envelope is the base shape every typed message embeds (spec §3).
type Envelope struct {
	MessageID     string         `json:"message_id"`
	Sender        string         `json:"sender"`
	Timestamp     time.Time      `json:"timestamp"`
	Priority      Priority       `json:"priority"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// NewEnvelope stamps a fresh message_id and timestamp, defaulting priority
// to normal.
func NewEnvelope(sender string, priority Priority, metadata map[string]any) Envelope {
	if priority == "" {
		priority = PriorityNormal
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	return Envelope{
		MessageID: uuid.NewString(),
		Sender:    sender,
		Timestamp: time.Now().UTC(),
		Priority:  priority,
		Metadata:  metadata,
	}
}

// Message is any typed envelope with a stable type tag for serialization
// and dispatch (spec §3). Env is named distinctly from the embedded
// Envelope field each concrete message carries, since Go forbids a type
// from declaring both a field and a method of the same name.
type Message interface {
	Env() *Envelope
	Type() string
}

// HashPayload is implemented by messages carrying fields beyond the base
// envelope, so the content hash can fold them in (spec §3 "deterministic
// hash over all envelope fields except message_id and timestamp").
// Messages with no extra payload need not implement it.
type HashPayload interface {
	HashPayload() any
}

// stampCorrelation sets resp's correlation_id to match req's message_id,
// per spec §4.F step 3 ("If it returns a response, stamp
// response.correlation_id = message.message_id").
func stampCorrelation(req, resp Message) {
	if resp == nil {
		return
	}
	resp.Env().CorrelationID = req.Env().MessageID
}
