// Package marshal moves JSON-encoded values across a foreign library
// boundary.
//
// Two conventions are supported. A WireString is JSON text followed by a
// single NUL byte and is handed to the foreign side directly. A Container is
// an opaque handle to text held by the foreign library; the host reads it by
// asking for its length, allocating exactly that many bytes and letting the
// library populate them.
//
// # Ownership
//
// A Container moves through Unbound, Bound and Released. Release must happen
// exactly once, either explicitly or by passing release=true to a decode
// call. Any use of a released Container panics with a use_after_release
// *errors.Error:
//
//	c, err := m.EncodeToContainer(ctx, doc)
//	if err != nil {
//	    return err
//	}
//	v, err := m.DecodeFromContainer(ctx, c, true) // c is released here
//
// With wraps acquisition and release around a callback.
//
// # Numbers
//
// Integral JSON numbers decode to int (int64 when they do not fit), other
// numbers to float64. Numbers outside the float64 range are kept as
// json.Number.
package marshal
