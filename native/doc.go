// Package native is a container library written in C and linked with cgo.
//
// Containers are malloc'd structs holding a copy of the boxed text. The Go
// side never hands a raw C pointer to callers: handles index a
// resource.Table, so a stale or forged handle is rejected before it reaches
// C. Closing the library frees every container still live.
//
// Builds without cgo compile a stub whose Open reports an unsupported error.
package native
