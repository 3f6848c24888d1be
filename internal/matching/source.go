package matching

import (
	"fmt"
	"sync"
)

// Source hands out the lookup tables, loading them at most once. The tables
// are read-only after the first load so any number of goroutines may share a
// Source. A failed load is remembered; restart the process to retry.
type Source struct {
	load   func() (*Tables, error)
	tables *Tables
	err    error
	once   sync.Once
}

// NewSource creates a Source that calls load on first use.
func NewSource(load func() (*Tables, error)) *Source {
	return &Source{load: load}
}

// NewFileSource creates a Source backed by a Loader.
func NewFileSource(loader *Loader) *Source {
	return NewSource(loader.Load)
}

// StaticSource wraps tables that are already in memory.
func StaticSource(tables Tables) *Source {
	return NewSource(func() (*Tables, error) { return &tables, nil })
}

// Tables returns the cached tables, loading them on the first call.
func (s *Source) Tables() (*Tables, error) {
	s.once.Do(func() {
		if s.load == nil {
			s.tables = &Tables{}
			return
		}
		s.tables, s.err = s.load()
		if s.err != nil {
			s.err = fmt.Errorf("failed to load match tables: %w", s.err)
			s.tables = nil
		}
	})
	return s.tables, s.err
}
