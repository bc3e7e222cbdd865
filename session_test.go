package setaside

import (
	"testing"
)

func TestSession_Track(t *testing.T) {
	s := NewSession()

	if ref := s.Track(idA); ref != "C1" {
		t.Errorf("Track(A) = %q, want C1", ref)
	}
	if ref := s.Track(idB); ref != "C2" {
		t.Errorf("Track(B) = %q, want C2", ref)
	}
	if ref := s.Track(idA); ref != "C1" {
		t.Errorf("Track(A) again = %q, want C1", ref)
	}
	if n := s.Count(); n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}

	if id, ok := s.Resolve("c2"); !ok || id != idB {
		t.Errorf("Resolve(c2) = %q, %v; want %s", id, ok, idB)
	}

	s.Clear()
	if _, ok := s.Resolve("C1"); ok {
		t.Error("Resolve after Clear succeeded")
	}
	if ref := s.Track(idC); ref != "C1" {
		t.Errorf("Track after Clear = %q, want C1", ref)
	}
}

func TestSession_Match(t *testing.T) {
	s := NewSession()
	s.Track(idA)
	s.Track(idB)
	ids := []string{idA, idB, idC}
	cols := map[string]*Collection{
		idA: testCollection(idA, "https://go.dev/doc"),
		idB: testCollection(idB, "https://example.com"),
		idC: testCollection(idC, "https://untracked.example"),
	}
	describe := func(id string) string { return Describe(cols[id]) }

	tests := []struct {
		ref    string
		want   string
		wantOK bool
	}{
		{"C2", idB, true},
		{idC, idC, true},
		{"0c0c", idC, true},
		{"0c0", "", false},
		{"GO.DEV", idA, true},
		{"untracked", "", false},
		{"nothing", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, ok := s.Match(tt.ref, ids, describe)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Match(%q) = %q, %v; want %q, %v", tt.ref, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
