package sessions

import (
	"errors"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"
)

// ErrNotFound is returned for any operation against an unknown session id.
// Mutating operations never create a session implicitly.
var ErrNotFound = errors.New("session not found")

// previewExcerptLength bounds the preview excerpt, in runes.
const previewExcerptLength = 80

// Store is the process-lifetime session registry. Reads hand out copies;
// writes are append-only, so concurrent readers never observe a session
// mid-mutation.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Create allocates a session with empty transcript and canvas.
func (s *Store) Create(subject, title string) Session {
	now := time.Now()
	session := &Session{
		ID:        shortuuid.New(),
		Subject:   subject,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	return cloneSession(session)
}

// Get returns a point-in-time copy of the session.
func (s *Store) Get(id string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return cloneSession(session), nil
}

// List returns previews of all sessions, most recently updated first.
func (s *Store) List() []Preview {
	s.mu.RLock()
	previews := make([]Preview, 0, len(s.sessions))
	for _, session := range s.sessions {
		preview := Preview{
			ID:        session.ID,
			Subject:   session.Subject,
			Title:     session.Title,
			TurnCount: len(session.Turns),
			CreatedAt: session.CreatedAt,
			UpdatedAt: session.UpdatedAt,
		}
		if len(session.Turns) > 0 {
			preview.Excerpt = truncateExcerpt(session.Turns[0].Content)
		}
		previews = append(previews, preview)
	}
	s.mu.RUnlock()

	sort.Slice(previews, func(i, j int) bool {
		return previews[i].UpdatedAt.After(previews[j].UpdatedAt)
	})
	return previews
}

// AppendTurn appends one turn to the session transcript. A missing turn id
// is assigned, the creation timestamp is always stamped here, and object id
// lists are filtered down to ids actually present on the session so no turn
// with a dangling object id survives. Returns the stored turn.
func (s *Store) AppendTurn(sessionID string, turn Turn) (Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return Turn{}, ErrNotFound
	}

	stored := cloneTurn(turn)
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	stored.CreatedAt = time.Now()

	known := make(map[string]struct{}, len(session.CanvasObjects))
	for _, object := range session.CanvasObjects {
		known[object.ID] = struct{}{}
	}
	stored.ObjectsCreated = filterKnown(stored.ObjectsCreated, known)
	stored.ObjectsReferenced = filterKnown(stored.ObjectsReferenced, known)

	session.Turns = append(session.Turns, stored)
	session.UpdatedAt = stored.CreatedAt

	return cloneTurn(stored), nil
}

// AppendCanvasObjects appends a batch of canvas objects to the session,
// assigning ids where missing. Returns the stored objects.
func (s *Store) AppendCanvasObjects(sessionID string, objects ...CanvasObject) ([]CanvasObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}

	stored := make([]CanvasObject, 0, len(objects))
	for _, object := range objects {
		cloned := cloneObject(object)
		if cloned.ID == "" {
			cloned.ID = uuid.NewString()
		}
		session.CanvasObjects = append(session.CanvasObjects, cloned)
		stored = append(stored, cloneObject(cloned))
	}
	if len(stored) > 0 {
		session.UpdatedAt = time.Now()
	}

	return stored, nil
}

// SetTitle replaces the session title.
func (s *Store) SetTitle(sessionID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}

	session.Title = title
	session.UpdatedAt = time.Now()
	return nil
}

// Delete removes the session. Deleting an unknown id fails with ErrNotFound.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, id)
	return nil
}

func filterKnown(ids []string, known map[string]struct{}) []string {
	if len(ids) == 0 {
		return ids
	}

	filtered := ids[:0]
	for _, id := range ids {
		if _, ok := known[id]; ok {
			filtered = append(filtered, id)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	return filtered
}

func truncateExcerpt(content string) string {
	if utf8.RuneCountInString(content) <= previewExcerptLength {
		return content
	}

	runes := []rune(content)
	return string(runes[:previewExcerptLength])
}
