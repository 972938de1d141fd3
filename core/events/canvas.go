package events

import "github.com/chalklabs/chalk-core/core/sessions"

const (
	// KindCanvasObject identifies a canvas object created mid-response.
	KindCanvasObject Kind = "canvas_object"
	// KindReference identifies a pointer to an existing canvas object.
	KindReference Kind = "reference"
)

// CanvasObjectCreated announces a canvas object the assistant created while
// responding. The object has already been appended to the session when this
// event is yielded.
type CanvasObjectCreated struct {
	Base
	Object sessions.CanvasObject
}

// NewCanvasObjectCreated creates a canvas_object event.
func NewCanvasObjectCreated(object sessions.CanvasObject) CanvasObjectCreated {
	return CanvasObjectCreated{Base: NewBase(KindCanvasObject), Object: object}
}

// ObjectReferenced announces that the assistant referenced an existing
// canvas object by id.
type ObjectReferenced struct {
	Base
	ObjectID string
}

// NewObjectReferenced creates a reference event.
func NewObjectReferenced(objectID string) ObjectReferenced {
	return ObjectReferenced{Base: NewBase(KindReference), ObjectID: objectID}
}
