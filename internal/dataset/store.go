package dataset

import (
	"fmt"
	"sort"
)

// Store indexes tasks by id. It is immutable after construction and safe for
// concurrent readers.
type Store struct {
	tasks map[string]Task
	ids   []string
}

// NewStore validates tasks and indexes them. Duplicate ids are rejected.
func NewStore(tasks ...Task) (*Store, error) {
	s := &Store{tasks: make(map[string]Task, len(tasks))}
	for _, t := range tasks {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if _, dup := s.tasks[t.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate task id %q", ErrInvalidTask, t.ID)
		}
		s.tasks[t.ID] = t
		s.ids = append(s.ids, t.ID)
	}
	sort.Strings(s.ids)
	return s, nil
}

// Len returns the number of tasks.
func (s *Store) Len() int { return len(s.ids) }

// Get returns the task with the given id.
func (s *Store) Get(id string) (Task, bool) {
	t, ok := s.tasks[id]
	return t, ok
}

// IDs returns task ids in ascending order.
func (s *Store) IDs() []string {
	return append([]string(nil), s.ids...)
}

// Tasks returns tasks ordered by id. A positive limit caps the result.
func (s *Store) Tasks(limit int) []Task {
	n := len(s.ids)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Task, 0, n)
	for _, id := range s.ids[:n] {
		out = append(out, s.tasks[id])
	}
	return out
}
