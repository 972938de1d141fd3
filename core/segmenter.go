package tutoring

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const defaultMinSentenceLength = 10

// defaultAbbreviations lists tokens that end with a period mid-sentence.
// Matching is case-insensitive after stripping surrounding punctuation.
var defaultAbbreviations = []string{
	"dr", "mr", "mrs", "ms", "prof", "sr", "jr", "st",
	"etc", "vs", "fig", "eq", "no", "approx", "e.g", "i.e", "ph.d",
}

// Sentence is one complete sentence cut from a response stream. Indices
// start at 0 and increase by one per sentence within a single stream.
// Complete is false only for a flushed tail that never saw terminal
// punctuation.
type Sentence struct {
	Index    int
	Text     string
	Complete bool
}

// SentenceSegmenter splits continuously arriving text fragments into
// complete sentences. Speech synthesis is far slower per call than text
// generation, so the response pipeline hands each sentence to synthesis the
// moment it is complete instead of waiting for the whole response.
//
// The segmenter is stateful and single-writer: feed it with AddChunk, close
// it out with Flush, and Reset it before reuse.
type SentenceSegmenter struct {
	buffer    string
	nextIndex int

	minLength     int
	abbreviations map[string]struct{}
}

type SegmenterOption func(*SentenceSegmenter)

// WithMinSentenceLength overrides the minimum rune count a sentence
// candidate needs before a boundary is accepted. Values below 1 are
// ignored.
func WithMinSentenceLength(length int) SegmenterOption {
	return func(s *SentenceSegmenter) {
		if length < 1 {
			return
		}
		s.minLength = length
	}
}

// WithAbbreviations adds abbreviations that suppress a sentence boundary
// after their trailing period.
func WithAbbreviations(abbreviations ...string) SegmenterOption {
	return func(s *SentenceSegmenter) {
		for _, abbreviation := range abbreviations {
			s.abbreviations[normalizeToken(abbreviation)] = struct{}{}
		}
	}
}

func NewSentenceSegmenter(opts ...SegmenterOption) *SentenceSegmenter {
	segmenter := &SentenceSegmenter{
		minLength:     defaultMinSentenceLength,
		abbreviations: make(map[string]struct{}, len(defaultAbbreviations)),
	}
	for _, abbreviation := range defaultAbbreviations {
		segmenter.abbreviations[normalizeToken(abbreviation)] = struct{}{}
	}

	for _, opt := range opts {
		opt(segmenter)
	}

	return segmenter
}

// AddChunk appends a text fragment to the internal buffer and returns every
// complete sentence that can be cut off the front of it. Empty fragments
// are ignored; a fragment carrying several sentence endings yields several
// sentences in one call.
func (s *SentenceSegmenter) AddChunk(fragment string) []Sentence {
	if fragment == "" {
		return nil
	}

	s.buffer += fragment

	var sentences []Sentence
	for {
		boundary := s.findBoundary()
		if boundary < 0 {
			break
		}

		text := strings.TrimSpace(s.buffer[:boundary])
		s.buffer = s.buffer[boundary:]
		sentences = append(sentences, s.cut(text, true))
	}
	return sentences
}

// Flush drains whatever is still buffered as a final sentence, regardless
// of punctuation. Returns nil when the buffer holds nothing but whitespace.
func (s *SentenceSegmenter) Flush() *Sentence {
	text := strings.TrimSpace(s.buffer)
	s.buffer = ""
	if text == "" {
		return nil
	}

	sentence := s.cut(text, endsWithTerminator(text))
	return &sentence
}

// Reset clears the buffer and restarts sentence indices at 0.
func (s *SentenceSegmenter) Reset() {
	s.buffer = ""
	s.nextIndex = 0
}

func (s *SentenceSegmenter) cut(text string, complete bool) Sentence {
	sentence := Sentence{Index: s.nextIndex, Text: text, Complete: complete}
	s.nextIndex++
	return sentence
}

// findBoundary returns the byte offset just past the first acceptable
// terminator run, or -1 when no boundary can be confirmed yet. A run that
// touches the end of the buffer is left unconfirmed: it may still grow
// ("?!"), so it resolves on the next fragment or at Flush.
func (s *SentenceSegmenter) findBoundary() int {
	inRun := false
	for i, r := range s.buffer {
		if isTerminator(r) {
			inRun = true
			continue
		}
		if !inRun {
			continue
		}
		inRun = false

		// Only whitespace after the run ends a sentence: a period glued to
		// the next token is part of a decimal, a version, or a domain name.
		if !unicode.IsSpace(r) {
			continue
		}
		if s.acceptBoundary(s.buffer[:i]) {
			return i
		}
	}
	return -1
}

func (s *SentenceSegmenter) acceptBoundary(candidate string) bool {
	trimmed := strings.TrimSpace(candidate)
	if utf8.RuneCountInString(trimmed) < s.minLength {
		return false
	}

	// The token carrying the terminator decides abbreviation suppression:
	// "Dr." must not end a sentence even though a period follows it.
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return false
	}
	if _, ok := s.abbreviations[normalizeToken(fields[len(fields)-1])]; ok {
		return false
	}

	return true
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func endsWithTerminator(text string) bool {
	r, _ := utf8.DecodeLastRuneInString(text)
	return isTerminator(r)
}

// normalizeToken lowercases a token and strips every non-letter rune so
// "(Dr." and "Ph.D" compare as "dr" and "phd".
func normalizeToken(token string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(token) {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
