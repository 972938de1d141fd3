// Package knowledge indexes subject reference material so answers can be
// grounded in retrieved passages.
package knowledge

import "context"

// Document is one piece of reference material for a subject.
type Document struct {
	ID      string   `json:"id"`
	Subject string   `json:"subject"`
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags,omitempty"`
}

// Result is a single semantic-search hit.
type Result struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float32 `json:"score"`
}

// Retriever searches indexed material for passages relevant to a query.
type Retriever interface {
	Search(ctx context.Context, subject, query string, k int) ([]Result, error)
}
