package setaside

import (
	"fmt"
	"strings"
	"sync"
)

// Session hands out short references (C1, C2, ...) for collections shown to a
// user or agent, so later commands can name them without the full id.
type Session struct {
	mu      sync.Mutex
	refs    map[string]string // session ref -> collection ID
	reverse map[string]string // collection ID -> session ref
	counter int
}

// NewSession creates an empty session.
func NewSession() *Session {
	return &Session{
		refs:    make(map[string]string),
		reverse: make(map[string]string),
	}
}

// Track records a collection and returns its session reference. Tracking the
// same id again returns the same reference.
func (s *Session) Track(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ref, ok := s.reverse[id]; ok {
		return ref
	}
	s.counter++
	ref := fmt.Sprintf("C%d", s.counter)
	s.refs[ref] = id
	s.reverse[id] = ref
	return ref
}

// Resolve converts a session reference to a collection ID.
func (s *Session) Resolve(ref string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.refs[strings.ToUpper(ref)]
	return id, ok
}

// Count returns the number of tracked collections.
func (s *Session) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.refs)
}

// Clear forgets every reference.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs = make(map[string]string)
	s.reverse = make(map[string]string)
	s.counter = 0
}

// Match resolves ref to a collection ID. It accepts a session reference, a full
// collection ID, a unique ID prefix of at least four characters, or a snippet of a
// tracked collection's URLs or titles as returned by describe.
func (s *Session) Match(ref string, ids []string, describe func(id string) string) (string, bool) {
	if id, ok := s.Resolve(ref); ok {
		return id, true
	}

	var prefixed []string
	for _, id := range ids {
		if id == ref {
			return id, true
		}
		if len(ref) >= 4 && strings.HasPrefix(id, ref) {
			prefixed = append(prefixed, id)
		}
	}
	if len(prefixed) == 1 {
		return prefixed[0], true
	}
	if len(prefixed) > 1 || describe == nil {
		return "", false
	}

	s.mu.Lock()
	tracked := make([]string, 0, s.counter)
	for i := 1; i <= s.counter; i++ {
		if id, ok := s.refs[fmt.Sprintf("C%d", i)]; ok {
			tracked = append(tracked, id)
		}
	}
	s.mu.Unlock()

	needle := strings.ToLower(ref)
	for _, id := range tracked {
		if strings.Contains(strings.ToLower(describe(id)), needle) {
			return id, true
		}
	}
	return "", false
}

// Describe returns the searchable text of a collection: its item URLs and titles.
func Describe(col *Collection) string {
	var b strings.Builder
	for _, it := range col.Items {
		b.WriteString(it.URL)
		b.WriteByte(' ')
		b.WriteString(it.Title)
		b.WriteByte('\n')
	}
	return b.String()
}
