// Package library fetches saved-track libraries, compares them, and turns the overlap into a playlist.
package library

// IDSet is a set of opaque upstream ids that remembers insertion order.
//
// Order only makes batching deterministic; equality is by id alone.
type IDSet struct {
	ids   []string
	index map[string]struct{}
}

// NewIDSet returns a set holding ids, skipping empty ids and duplicates.
func NewIDSet(ids ...string) *IDSet {
	s := &IDSet{index: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add inserts id and reports whether it was new. Empty ids are ignored.
func (s *IDSet) Add(id string) bool {
	if id == "" {
		return false
	}
	if _, ok := s.index[id]; ok {
		return false
	}
	s.index[id] = struct{}{}
	s.ids = append(s.ids, id)
	return true
}

func (s *IDSet) Contains(id string) bool {
	_, ok := s.index[id]
	return ok
}

func (s *IDSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ids)
}

// IDs returns a copy of the members in insertion order.
func (s *IDSet) IDs() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

// Intersect returns the ids present in both sets, in a's order.
func Intersect(a, b *IDSet) *IDSet {
	out := NewIDSet()
	if a == nil || b == nil {
		return out
	}
	for _, id := range a.ids {
		if b.Contains(id) {
			out.Add(id)
		}
	}
	return out
}

// Chunk splits ids into consecutive slices of at most size elements.
func Chunk(ids []string, size int) [][]string {
	if size <= 0 {
		size = len(ids)
	}
	var out [][]string
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		out = append(out, ids[start:end])
	}
	return out
}
