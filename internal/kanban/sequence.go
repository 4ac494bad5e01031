package kanban

import (
	"errors"
	"fmt"
	"slices"
)

// ErrDuplicateID is returned when a sequence would hold two items with the same id.
var ErrDuplicateID = errors.New("duplicate id")

// Item is an element of a Sequence.
type Item interface {
	ItemID() string
}

// Move returns a copy of seq with the element at from reinserted at to.
// Elements in between shift by one and everything else keeps its relative
// order. Out-of-range or equal indices return seq unchanged. The input slice
// is never modified.
func Move[T any](seq []T, from, to int) []T {
	n := len(seq)
	if from == to || from < 0 || to < 0 || from >= n || to >= n {
		return seq
	}
	out := make([]T, 0, n)
	out = append(out, seq[:from]...)
	out = append(out, seq[from+1:]...)
	return slices.Insert(out, to, seq[from])
}

// Sequence is an immutable ordered list of items with unique ids. Every
// operation returns a new Sequence; position is the only ordering key.
type Sequence[T Item] struct {
	items []T
}

// NewSequence builds a sequence, rejecting duplicate or empty ids.
func NewSequence[T Item](items ...T) (Sequence[T], error) {
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		id := it.ItemID()
		if id == "" {
			return Sequence[T]{}, fmt.Errorf("empty id at position %d", len(seen))
		}
		if _, ok := seen[id]; ok {
			return Sequence[T]{}, fmt.Errorf("%w: %s", ErrDuplicateID, id)
		}
		seen[id] = struct{}{}
	}
	return Sequence[T]{items: slices.Clone(items)}, nil
}

func (s Sequence[T]) Len() int { return len(s.items) }

// Items returns a copy of the items in order. Never nil.
func (s Sequence[T]) Items() []T {
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

func (s Sequence[T]) At(i int) T { return s.items[i] }

// IndexOf returns the position of id, or -1.
func (s Sequence[T]) IndexOf(id string) int {
	return slices.IndexFunc(s.items, func(it T) bool { return it.ItemID() == id })
}

func (s Sequence[T]) Contains(id string) bool { return s.IndexOf(id) >= 0 }

// Get returns the item with the given id.
func (s Sequence[T]) Get(id string) (T, bool) {
	if i := s.IndexOf(id); i >= 0 {
		return s.items[i], true
	}
	var zero T
	return zero, false
}

// Append adds item at the end. It refuses empty and duplicate ids.
func (s Sequence[T]) Append(item T) (Sequence[T], bool) {
	if item.ItemID() == "" || s.Contains(item.ItemID()) {
		return s, false
	}
	out := make([]T, 0, len(s.items)+1)
	out = append(out, s.items...)
	return Sequence[T]{items: append(out, item)}, true
}

// Remove drops the item with the given id.
func (s Sequence[T]) Remove(id string) (Sequence[T], bool) {
	i := s.IndexOf(id)
	if i < 0 {
		return s, false
	}
	return Sequence[T]{items: slices.Delete(slices.Clone(s.items), i, i+1)}, true
}

// RemoveFunc drops every item matching pred and reports how many went.
func (s Sequence[T]) RemoveFunc(pred func(T) bool) (Sequence[T], int) {
	out := make([]T, 0, len(s.items))
	for _, it := range s.items {
		if !pred(it) {
			out = append(out, it)
		}
	}
	removed := len(s.items) - len(out)
	if removed == 0 {
		return s, 0
	}
	return Sequence[T]{items: out}, removed
}

// Replace swaps the item with the given id for fn(item). fn must keep the id.
func (s Sequence[T]) Replace(id string, fn func(T) T) (Sequence[T], bool) {
	i := s.IndexOf(id)
	if i < 0 {
		return s, false
	}
	next := fn(s.items[i])
	if next.ItemID() != id {
		return s, false
	}
	out := slices.Clone(s.items)
	out[i] = next
	return Sequence[T]{items: out}, true
}

// Move relocates the item at from to to. See Move.
func (s Sequence[T]) Move(from, to int) Sequence[T] {
	return Sequence[T]{items: Move(s.items, from, to)}
}

// Filter returns the items matching pred, preserving order.
func (s Sequence[T]) Filter(pred func(T) bool) []T {
	out := make([]T, 0, len(s.items))
	for _, it := range s.items {
		if pred(it) {
			out = append(out, it)
		}
	}
	return out
}
