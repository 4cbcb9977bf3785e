package common

// IndexedSet is a set with O(1) membership checks and O(1) removal that
// still supports ordered iteration over a backing slice. Removal swaps the
// victim with the last element and pops, so iteration order is not stable
// across removals. The subscription ledger uses one per plan to walk a
// plan's subscribers during the billing sweep.
type IndexedSet[T comparable] struct {
	items []T
	pos   map[T]int
}

func NewIndexedSet[T comparable]() *IndexedSet[T] {
	return &IndexedSet[T]{pos: make(map[T]int)}
}

// Add inserts v and reports whether it was not already present.
func (s *IndexedSet[T]) Add(v T) bool {
	if _, ok := s.pos[v]; ok {
		return false
	}
	s.pos[v] = len(s.items)
	s.items = append(s.items, v)
	return true
}

// Remove deletes v by swapping it with the last element and popping.
// Reports whether v was present.
func (s *IndexedSet[T]) Remove(v T) bool {
	i, ok := s.pos[v]
	if !ok {
		return false
	}
	last := len(s.items) - 1
	if i != last {
		s.items[i] = s.items[last]
		s.pos[s.items[i]] = i
	}
	s.items = s.items[:last]
	delete(s.pos, v)
	return true
}

func (s *IndexedSet[T]) Contains(v T) bool {
	_, ok := s.pos[v]
	return ok
}

func (s *IndexedSet[T]) Len() int {
	return len(s.items)
}

// Items returns a copy of the members so callers can mutate the set while
// iterating the snapshot.
func (s *IndexedSet[T]) Items() []T {
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}
