package catalog

// Snapshot is the catalog as of one point in time. It is never modified
// after construction and may be shared between goroutines freely.
type Snapshot struct {
	entries []Entry
}

// NewSnapshot builds a snapshot from entries. The slice and every entry's
// region list are copied, so later changes by the caller are not observed.
func NewSnapshot(entries []Entry) *Snapshot {
	s := &Snapshot{entries: make([]Entry, len(entries))}
	for i, e := range entries {
		s.entries[i] = e.clone()
	}
	return s
}

// Len returns the number of entries. A nil snapshot is empty.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// At returns the entry at index i
func (s *Snapshot) At(i int) (Entry, bool) {
	if i < 0 || i >= s.Len() {
		return Entry{}, false
	}
	return s.entries[i].clone(), true
}

// IndexOf returns the position of the entry with the given ID, or -1
func (s *Snapshot) IndexOf(id int64) int {
	if id == NoID {
		return -1
	}
	for i := 0; i < s.Len(); i++ {
		if s.entries[i].ID == id {
			return i
		}
	}
	return -1
}
