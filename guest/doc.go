// Package guest assembles the container library as a WebAssembly module.
//
// The module keeps every container inside its own linear memory. A container
// is a 12 byte header:
//
//	+0  data pointer
//	+4  payload length (bytes, no terminator)
//	+8  live marker
//
// The handle returned to the host is the header address. Releasing a
// container clears the live marker, so a second release or any later access
// reports status -1 instead of touching stale data.
//
// Every allocation is preceded by an 8 byte block prefix holding its size and,
// while free, the next free block. alloc reuses the first free block that is
// large enough and otherwise bumps the heap. free lowers the heap when given
// the top block and pushes any other block on the free list. Releasing a
// container frees its payload and its header, and send_container frees the
// payload it replaces, so repeated exchanges run in constant memory.
//
// Entry point signatures are declared with WIT types in Signatures and
// flattened to core types, both to build the module and to validate
// third-party modules implementing the same ABI.
package guest
