// Package errors provides structured error types for jsonffi.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). Foreign call failures also carry the entry point name and the
// handle involved.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseForeign, errors.KindForeignCall).
//		Op("populate_string").
//		Handle(uint64(h)).
//		Detail("wrote %d of %d bytes", got, want).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.NullHandle("box_string")
//	err := errors.Decode(cause, payload)
//
// Kind sentinels match any error of that kind regardless of phase:
//
//	if errors.Is(err, jerrors.ErrDecode) { ... }
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
