// Package sessions holds the tutoring transcript model and its in-memory
// store. A session owns its turns and canvas objects; both are append-only
// and only the store mutates them.
package sessions

import (
	"encoding/json"
	"time"
)

// Role marks who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Canvas object types known to clients. The set is open; unknown types are
// stored and forwarded untouched.
const (
	ObjectTypeDiagram = "diagram"
	ObjectTypeCode    = "code"
	ObjectTypePlot    = "plot"
	ObjectTypeText    = "text"
)

// Session is one tutoring conversation with its transcript and canvas.
type Session struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject,omitempty"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Turns         []Turn         `json:"turns"`
	CanvasObjects []CanvasObject `json:"canvasObjects"`
}

// Turn is one transcript entry. Turns are immutable once appended.
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`

	// ObjectsCreated lists ids of canvas objects created during this turn.
	// Always a subset of the session's canvas object ids.
	ObjectsCreated []string `json:"objectsCreated,omitempty"`
	// ObjectsReferenced lists ids of canvas objects the turn pointed at.
	// Weak references: holding an id does not own the object.
	ObjectsReferenced []string `json:"objectsReferenced,omitempty"`
	// HighlightedContext preserves the summary of highlighted canvas
	// objects that accompanied the question, when there was one.
	HighlightedContext string `json:"highlightedContext,omitempty"`
}

// CanvasObject is a structured visual artifact (diagram, code, plot) owned
// by the session it was appended to.
type CanvasObject struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	Meta    ObjectMeta      `json:"meta,omitempty"`
}

// ObjectMeta carries optional provenance for a canvas object.
type ObjectMeta struct {
	TurnID  string   `json:"turnId,omitempty"`
	Subject string   `json:"subject,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

// Preview is the listing view of a session.
type Preview struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject,omitempty"`
	Title     string    `json:"title,omitempty"`
	Excerpt   string    `json:"excerpt,omitempty"`
	TurnCount int       `json:"turnCount"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func cloneTurn(turn Turn) Turn {
	cloned := turn
	if turn.ObjectsCreated != nil {
		cloned.ObjectsCreated = append([]string(nil), turn.ObjectsCreated...)
	}
	if turn.ObjectsReferenced != nil {
		cloned.ObjectsReferenced = append([]string(nil), turn.ObjectsReferenced...)
	}
	return cloned
}

func cloneObject(object CanvasObject) CanvasObject {
	cloned := object
	if object.Payload != nil {
		cloned.Payload = append(json.RawMessage(nil), object.Payload...)
	}
	if object.Meta.Tags != nil {
		cloned.Meta.Tags = append([]string(nil), object.Meta.Tags...)
	}
	return cloned
}

func cloneSession(session *Session) Session {
	cloned := *session
	cloned.Turns = make([]Turn, len(session.Turns))
	for i, turn := range session.Turns {
		cloned.Turns[i] = cloneTurn(turn)
	}
	cloned.CanvasObjects = make([]CanvasObject, len(session.CanvasObjects))
	for i, object := range session.CanvasObjects {
		cloned.CanvasObjects[i] = cloneObject(object)
	}
	return cloned
}
