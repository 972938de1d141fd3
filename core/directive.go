package tutoring

import (
	"fmt"
	"strings"
)

const (
	objectOpenMarker  = "[[object]]"
	objectCloseMarker = "[[/object]]"
	refOpenMarker     = "[[ref]]"
	refCloseMarker    = "[[/ref]]"
)

type directiveKind string

const (
	directiveObject directiveKind = "object"
	directiveRef    directiveKind = "ref"
)

// directive is one extracted marker block with its raw payload, still
// unparsed JSON.
type directive struct {
	Kind    directiveKind
	Payload string
}

// directiveScanner strips directive marker blocks out of streaming response
// text. Plain text goes to onText, completed blocks to onDirective. Because
// fragments can split a marker anywhere, the scanner withholds any fragment
// tail that could still grow into a marker until the next fragment settles
// it.
type directiveScanner struct {
	onText      func(string)
	onDirective func(directive)

	buffer      string
	inDirective bool
	kind        directiveKind
	payload     strings.Builder
}

func newDirectiveScanner(onText func(string), onDirective func(directive)) *directiveScanner {
	return &directiveScanner{
		onText:      onText,
		onDirective: onDirective,
	}
}

// Write feeds the scanner the next response fragment.
func (s *directiveScanner) Write(fragment string) {
	if fragment == "" {
		return
	}

	s.buffer += fragment
	for {
		if s.inDirective {
			if !s.scanDirectiveBody() {
				return
			}
			continue
		}
		if !s.scanText() {
			return
		}
	}
}

// Flush releases any withheld text. An unterminated directive cannot be
// recovered at stream end: its opening marker and partial payload are
// discarded, and the returned error describes the loss.
func (s *directiveScanner) Flush() error {
	defer func() {
		s.buffer = ""
		s.payload.Reset()
		s.inDirective = false
	}()

	if s.inDirective {
		return fmt.Errorf("dropped unterminated %s directive at end of stream", s.kind)
	}

	if s.buffer != "" {
		s.onText(s.buffer)
	}
	return nil
}

// scanText looks for the next opening marker and reports whether the buffer
// advanced into a directive. Text before the marker is emitted; without a
// marker, everything except a possible marker prefix at the tail is
// emitted.
func (s *directiveScanner) scanText() bool {
	kind := directiveObject
	open := objectOpenMarker
	at := strings.Index(s.buffer, objectOpenMarker)
	if refAt := strings.Index(s.buffer, refOpenMarker); refAt >= 0 && (at < 0 || refAt < at) {
		kind, open, at = directiveRef, refOpenMarker, refAt
	}

	if at < 0 {
		held := holdbackLength(s.buffer, objectOpenMarker, refOpenMarker)
		if emit := s.buffer[:len(s.buffer)-held]; emit != "" {
			s.onText(emit)
		}
		s.buffer = s.buffer[len(s.buffer)-held:]
		return false
	}

	if at > 0 {
		s.onText(s.buffer[:at])
	}
	s.buffer = s.buffer[at+len(open):]
	s.inDirective = true
	s.kind = kind
	return true
}

// scanDirectiveBody accumulates payload until the closing marker and
// reports whether a complete directive was emitted.
func (s *directiveScanner) scanDirectiveBody() bool {
	closeMarker := objectCloseMarker
	if s.kind == directiveRef {
		closeMarker = refCloseMarker
	}

	at := strings.Index(s.buffer, closeMarker)
	if at < 0 {
		held := holdbackLength(s.buffer, closeMarker)
		s.payload.WriteString(s.buffer[:len(s.buffer)-held])
		s.buffer = s.buffer[len(s.buffer)-held:]
		return false
	}

	s.payload.WriteString(s.buffer[:at])
	s.onDirective(directive{Kind: s.kind, Payload: s.payload.String()})
	s.payload.Reset()
	s.buffer = s.buffer[at+len(closeMarker):]
	s.inDirective = false
	return true
}

// holdbackLength returns the length of the longest text suffix that is a
// strict prefix of one of the markers.
func holdbackLength(text string, markers ...string) int {
	longest := 0
	for _, marker := range markers {
		limit := len(marker) - 1
		if len(text) < limit {
			limit = len(text)
		}
		for n := limit; n > longest; n-- {
			if strings.HasSuffix(text, marker[:n]) {
				longest = n
				break
			}
		}
	}
	return longest
}
