package zipmeta

import "fmt"

// Structure is the decoded archive listing for one inspection session:
// the ordered entry list plus a name to size index. It is populated once,
// right after a successful locate, and read-only afterwards.
type Structure struct {
	entries []Entry
	sizes   map[string]int64
}

func newStructure(entries []Entry) *Structure {
	s := &Structure{
		entries: entries,
		sizes:   make(map[string]int64, len(entries)),
	}
	for _, e := range entries {
		s.sizes[e.Name] = e.Size
	}
	return s
}

// Entries returns the listing in central directory order.
func (s *Structure) Entries() []Entry {
	return s.entries
}

// SizeOf returns the uncompressed size of a named entry.
func (s *Structure) SizeOf(name string) (int64, error) {
	size, ok := s.sizes[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	return size, nil
}

func (s *Structure) Len() int {
	return len(s.entries)
}

// TotalSize sums the uncompressed sizes of every entry.
func (s *Structure) TotalSize() int64 {
	var total int64
	for _, e := range s.entries {
		total += e.Size
	}
	return total
}
