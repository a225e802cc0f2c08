package domain

// Window is a bounded FIFO sequence. Once capacity is reached every Push
// evicts the oldest element.
type Window[T any] struct {
	items    []T
	capacity int
}

// NewWindow creates a window holding at most capacity elements.
func NewWindow[T any](capacity int) *Window[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Window[T]{items: make([]T, 0, capacity), capacity: capacity}
}

// Push appends v, evicting the oldest element when full.
func (w *Window[T]) Push(v T) {
	if len(w.items) == w.capacity {
		copy(w.items, w.items[1:])
		w.items[len(w.items)-1] = v
		return
	}
	w.items = append(w.items, v)
}

// Len returns the number of retained elements.
func (w *Window[T]) Len() int { return len(w.items) }

// Cap returns the fixed capacity.
func (w *Window[T]) Cap() int { return w.capacity }

// Last returns the newest element.
func (w *Window[T]) Last() (T, bool) {
	var zero T
	if len(w.items) == 0 {
		return zero, false
	}
	return w.items[len(w.items)-1], true
}

// Values returns a copy of the retained elements, oldest first.
func (w *Window[T]) Values() []T {
	out := make([]T, len(w.items))
	copy(out, w.items)
	return out
}
