package queue

import "sync"

// Deque is a double-ended queue that is safe for concurrent use.
type Deque[T any] struct {
	items []T
	mutex sync.Mutex
}

func NewDeque[T any]() *Deque[T] {
	return &Deque[T]{
		items: make([]T, 0),
	}
}

func (d *Deque[T]) PushFront(item T) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	var empty T
	d.items = append(d.items, empty)
	copy(d.items[1:], d.items)
	d.items[0] = item
}

func (d *Deque[T]) PushBack(item T) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.items = append(d.items, item)
}

// PopFront removes and returns the first item. Returns false if the deque is empty.
func (d *Deque[T]) PopFront() (T, bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	var empty T
	if len(d.items) == 0 {
		return empty, false
	}

	item := d.items[0]
	d.items[0] = empty // Release the reference for the GC
	d.items = d.items[1:]
	return item, true
}

// PopBack removes and returns the last item. Returns false if the deque is empty.
func (d *Deque[T]) PopBack() (T, bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	var empty T
	if len(d.items) == 0 {
		return empty, false
	}

	lastIndex := len(d.items) - 1
	item := d.items[lastIndex]
	d.items[lastIndex] = empty
	d.items = d.items[:lastIndex]
	return item, true
}

func (d *Deque[T]) Len() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	return len(d.items)
}
