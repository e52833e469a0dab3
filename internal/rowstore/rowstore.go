// Package rowstore keeps the ordered row list and the review cursor.
//
// A Store is owned by a single goroutine (the session loop). It performs no
// locking of its own.
package rowstore

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/curator/internal/rows"
)

var (
	ErrNotFound  = errors.New("row not found")
	ErrInvariant = errors.New("update violates row invariants")
)

// Listener observes every successful update.
type Listener func(prev, next rows.Row)

type Store struct {
	rows      []rows.Row
	index     map[uuid.UUID]int
	cursor    int
	listeners []*subscription
}

type subscription struct {
	fn Listener
}

// New takes ownership of initial. The cursor starts at 0, or -1 for an empty list.
func New(initial []rows.Row) *Store {
	s := &Store{
		rows:   make([]rows.Row, len(initial)),
		index:  make(map[uuid.UUID]int, len(initial)),
		cursor: -1,
	}
	for i, r := range initial {
		s.rows[i] = r.Clone()
		s.index[r.ID] = i
	}
	if len(initial) > 0 {
		s.cursor = 0
	}
	return s
}

// All returns copies of every row in ingestion order.
func (s *Store) All() []rows.Row {
	out := make([]rows.Row, len(s.rows))
	for i, r := range s.rows {
		out[i] = r.Clone()
	}
	return out
}

func (s *Store) Len() int    { return len(s.rows) }
func (s *Store) Cursor() int { return s.cursor }

func (s *Store) Current() (rows.Row, bool) {
	if s.cursor < 0 {
		return rows.Row{}, false
	}
	return s.rows[s.cursor].Clone(), true
}

func (s *Store) Get(id uuid.UUID) (rows.Row, bool) {
	i, ok := s.index[id]
	if !ok {
		return rows.Row{}, false
	}
	return s.rows[i].Clone(), true
}

// IndexOf returns the position of id, or -1.
func (s *Store) IndexOf(id uuid.UUID) int {
	i, ok := s.index[id]
	if !ok {
		return -1
	}
	return i
}

// Update merges p into the row and notifies listeners. A patch that would break
// an invariant is rejected whole and the row is left untouched.
func (s *Store) Update(id uuid.UUID, p rows.Patch) (rows.Row, error) {
	i, ok := s.index[id]
	if !ok {
		return rows.Row{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	prev := s.rows[i]
	next := p.Apply(prev)
	if err := next.Validate(); err != nil {
		return prev.Clone(), fmt.Errorf("%w: %w", ErrInvariant, err)
	}

	s.rows[i] = next
	for _, sub := range append([]*subscription(nil), s.listeners...) {
		sub.fn(prev.Clone(), next.Clone())
	}
	return next.Clone(), nil
}

// SetCursor moves the cursor to i. Out-of-range positions are ignored.
func (s *Store) SetCursor(i int) bool {
	if i < 0 || i >= len(s.rows) {
		return false
	}
	s.cursor = i
	return true
}

// Subscribe registers fn and returns a function that removes it.
func (s *Store) Subscribe(fn Listener) func() {
	sub := &subscription{fn: fn}
	s.listeners = append(s.listeners, sub)
	return func() {
		for i, l := range s.listeners {
			if l == sub {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}
