package resource

import (
	"math"
	"sync"
)

// Table maps handles to values of type T.
// It is safe for concurrent use.
type Table[T any] struct {
	entries   []entry[T]
	freeList  []int
	observers []subscription
	nextSub   uint64
	mu        sync.RWMutex
	obsMu     sync.RWMutex
	live      int
	closed    bool
}

type subscription struct {
	o  Observer
	id uint64
}

type entry[T any] struct {
	value T
	gen   uint32
	valid bool
}

// NewTable creates an empty table.
func NewTable[T any]() *Table[T] {
	return &Table[T]{
		entries:  make([]entry[T], 0, 64),
		freeList: make([]int, 0, 16),
	}
}

// Insert stores a value and returns its handle.
func (t *Table[T]) Insert(value T) (Handle, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, ErrClosed
	}

	var slot int
	if n := len(t.freeList); n > 0 {
		slot = t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
	} else {
		if len(t.entries) >= math.MaxUint32-1 {
			t.mu.Unlock()
			return 0, ErrFull
		}
		t.entries = append(t.entries, entry[T]{})
		slot = len(t.entries) - 1
	}

	e := &t.entries[slot]
	e.value = value
	e.valid = true
	h := makeHandle(slot, e.gen)
	t.live++
	t.mu.Unlock()

	t.notify(Event{Type: EventCreated, Handle: h, Value: value})
	return h, nil
}

func (t *Table[T]) lookup(h Handle) (*entry[T], bool) {
	slot := h.slot()
	if h == 0 || slot < 0 || slot >= len(t.entries) {
		return nil, false
	}
	e := &t.entries[slot]
	if !e.valid || e.gen != h.generation() {
		return nil, false
	}
	return e, true
}

// Get retrieves a value by handle.
func (t *Table[T]) Get(h Handle) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.lookup(h)
	if !ok {
		var zero T
		return zero, false
	}
	return e.value, true
}

// Remove drops a value and returns it. Stale or unknown handles return false.
func (t *Table[T]) Remove(h Handle) (T, bool) {
	var zero T

	t.mu.Lock()
	e, ok := t.lookup(h)
	if !ok {
		t.mu.Unlock()
		return zero, false
	}
	value := e.value
	e.value = zero
	e.valid = false
	e.gen++
	t.freeList = append(t.freeList, h.slot())
	t.live--
	t.mu.Unlock()

	t.notify(Event{Type: EventReleased, Handle: h, Value: value})
	return value, true
}

// Len returns the number of live values.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.live
}

// Each iterates over live values until fn returns false.
// fn must not modify the table.
func (t *Table[T]) Each(fn func(Handle, T) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i := range t.entries {
		e := &t.entries[i]
		if !e.valid {
			continue
		}
		if !fn(makeHandle(i, e.gen), e.value) {
			return
		}
	}
}

// Subscribe adds an observer for lifecycle events and returns a function
// that removes it. Observers are matched by subscription, so func-valued
// observers such as ObserverFunc can be removed too.
func (t *Table[T]) Subscribe(o Observer) (unsubscribe func()) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.nextSub++
	id := t.nextSub
	t.observers = append(t.observers, subscription{o: o, id: id})

	var once sync.Once
	return func() {
		once.Do(func() { t.unsubscribe(id) })
	}
}

func (t *Table[T]) unsubscribe(id uint64) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, sub := range t.observers {
		if sub.id == id {
			t.observers = append(t.observers[:i:i], t.observers[i+1:]...)
			return
		}
	}
}

// Close drops every live value and rejects further inserts.
// Values implementing Dropper have Drop called.
func (t *Table[T]) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true

	var dropped []any
	for i := range t.entries {
		e := &t.entries[i]
		if e.valid {
			dropped = append(dropped, e.value)
		}
	}
	t.entries = nil
	t.freeList = nil
	t.live = 0
	t.mu.Unlock()

	for _, v := range dropped {
		if d, ok := v.(Dropper); ok {
			d.Drop()
		}
	}
	return nil
}

func (t *Table[T]) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, sub := range t.observers {
		sub.o.OnResourceEvent(e)
	}
}
