// Package chromem persists the knowledge index with chromem-go, keeping one
// collection per subject on disk.
package chromem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	chromemgo "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/chalklabs/chalk-core/core/knowledge"
)

const defaultSearchLimit = 5

type Store struct {
	mu      sync.RWMutex
	db      *chromemgo.DB
	embedFn chromemgo.EmbeddingFunc
}

// New creates (or opens) the persistent knowledge index at
// dataDir/knowledge/. embedFunc produces the document embeddings, pass
// chromem.NewEmbeddingFuncOpenAICompat pointed at the configured provider.
func New(dataDir string, embedFunc chromemgo.EmbeddingFunc) (*Store, error) {
	dir := filepath.Join(dataDir, "knowledge")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create knowledge index dir: %w", err)
	}

	db, err := chromemgo.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open knowledge index: %w", err)
	}

	return &Store{db: db, embedFn: embedFunc}, nil
}

func collectionName(subject string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(subject)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}

	name := b.String()
	if name == "" {
		name = "general"
	}
	return "subject-" + name
}

func (s *Store) getOrCreateCollection(ctx context.Context, subject string) *chromemgo.Collection {
	name := collectionName(subject)
	col := s.db.GetCollection(name, s.embedFn)
	if col == nil {
		var err error
		col, err = s.db.CreateCollection(name, nil, s.embedFn)
		if err != nil {
			logger.ErrorContext(ctx, "failed to create knowledge collection",
				"subject", subject, "error", err)
			return nil
		}
	}
	return col
}

// Upsert indexes (or re-indexes) a document under its subject and returns
// the document id, assigning one when the document has none.
func (s *Store) Upsert(ctx context.Context, doc knowledge.Document) (string, error) {
	ctx, span := tracer.Start(ctx, "index document")
	defer span.End()
	span.SetAttributes(attribute.String("document.subject", doc.Subject))

	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.getOrCreateCollection(ctx, doc.Subject)
	if col == nil {
		err := fmt.Errorf("no knowledge collection for subject %q", doc.Subject)
		span.RecordError(err)
		span.SetStatus(codes.Error, "collection unavailable")
		return "", err
	}

	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}

	if err := col.AddDocument(ctx, chromemgo.Document{
		ID:      doc.ID,
		Content: doc.Content,
		Metadata: map[string]string{
			"title": doc.Title,
			"tags":  strings.Join(doc.Tags, " "),
		},
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to index document")
		return "", fmt.Errorf("failed to index document: %w", err)
	}

	return doc.ID, nil
}

// Search returns the top-k passages most similar to the query within a
// subject.
func (s *Store) Search(ctx context.Context, subject, query string, k int) ([]knowledge.Result, error) {
	ctx, span := tracer.Start(ctx, "search documents")
	defer span.End()
	span.SetAttributes(
		attribute.String("search.subject", subject),
		attribute.Int("search.k", k),
	)

	if k <= 0 {
		k = defaultSearchLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	col := s.getOrCreateCollection(ctx, subject)
	if col == nil {
		return nil, nil
	}

	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	var results []chromemgo.Result
	var err error
	// chromem-go sometimes rejects nResults even when it is within the
	// document count. Step k down until the query goes through.
	for attemptK := k; attemptK > 0; attemptK-- {
		results, err = col.Query(ctx, query, attemptK, nil, nil)
		if err == nil {
			break
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("failed to query knowledge index: %w", err)
	}

	out := make([]knowledge.Result, 0, len(results))
	for _, r := range results {
		out = append(out, knowledge.Result{
			ID:      r.ID,
			Title:   r.Metadata["title"],
			Content: r.Content,
			Score:   r.Similarity,
		})
	}
	span.SetAttributes(attribute.Int("search.results", len(out)))
	return out, nil
}
