package tutoring

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/chalklabs/chalk-core/core/sessions"
)

const highlightedPayloadExcerptLength = 120

// ContextBuilder turns the canvas objects a student highlighted into a
// short text summary the generator grounds its answer on.
type ContextBuilder interface {
	SummarizeHighlighted(ctx context.Context, objects []sessions.CanvasObject, objectIDs []string) (string, error)
}

// objectSummaryBuilder is the fallback ContextBuilder: one line per
// highlighted object with its type, tags and a bounded payload excerpt.
// Ids that match no object on the canvas are skipped.
type objectSummaryBuilder struct{}

func (objectSummaryBuilder) SummarizeHighlighted(_ context.Context, objects []sessions.CanvasObject, objectIDs []string) (string, error) {
	if len(objectIDs) == 0 {
		return "", nil
	}

	byID := make(map[string]sessions.CanvasObject, len(objects))
	for _, object := range objects {
		byID[object.ID] = object
	}

	var lines []string
	for _, id := range objectIDs {
		object, ok := byID[id]
		if !ok {
			continue
		}

		line := fmt.Sprintf("- %s object %s", object.Type, object.ID)
		if len(object.Meta.Tags) > 0 {
			line += fmt.Sprintf(" (%s)", strings.Join(object.Meta.Tags, ", "))
		}
		if excerpt := excerptPayload(object.Payload); excerpt != "" {
			line += ": " + excerpt
		}
		lines = append(lines, line)
	}

	if len(lines) == 0 {
		return "", nil
	}

	return "The student highlighted these canvas objects:\n" + strings.Join(lines, "\n"), nil
}

func excerptPayload(payload json.RawMessage) string {
	excerpt := strings.Join(strings.Fields(string(payload)), " ")
	if utf8.RuneCountInString(excerpt) <= highlightedPayloadExcerptLength {
		return excerpt
	}

	return string([]rune(excerpt)[:highlightedPayloadExcerptLength]) + "..."
}
