package events

import "time"

// Kind discriminates stream event variants on the wire.
type Kind string

// Event is implemented by every stream event variant.
type Event interface {
	Kind() Kind
	Timestamp() time.Time
}

// Base carries the fields shared by all events. Embed it and construct it
// through NewBase so the timestamp is always stamped.
type Base struct {
	kind      Kind
	timestamp time.Time
}

func NewBase(kind Kind) Base {
	return Base{kind: kind, timestamp: time.Now()}
}

func (b Base) Kind() Kind           { return b.kind }
func (b Base) Timestamp() time.Time { return b.timestamp }

// Stable error codes carried by ResponseError events.
const (
	CodeGenerationFailed = "generation_failed"
	CodeSynthesisFailed  = "synthesis_failed"
	CodeInternal         = "internal_error"
)
