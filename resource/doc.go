// Package resource provides handle tables for foreign container bookkeeping.
//
// Backends hand out opaque handles instead of raw addresses. The table maps a
// handle to the backend's value and detects stale handles: a handle encodes
// the slot index and the slot generation, so a released handle never aliases
// the container that later reuses its slot.
//
// # Lifecycle
//
//	table := resource.NewTable[*record]()
//
//	// Insert a value, get a handle
//	h, err := table.Insert(rec)
//
//	// Retrieve value by handle
//	rec, ok := table.Get(h)
//
//	// Remove and get value (release)
//	rec, ok = table.Remove(h)
//
// # Observers
//
// Register observers to track container lifecycle events:
//
//	table.Subscribe(resource.ObserverFunc(func(e resource.Event) {
//	    if e.Type == resource.EventReleased {
//	        log.Printf("container %v released", e.Handle)
//	    }
//	}))
//
// # Memory Management
//
// Values are not garbage collected by the foreign side. Remove must be called
// for every inserted value. Close drops whatever is left, calling Drop on
// values that implement Dropper.
package resource
