package jsonffi

import "context"

// Handle is an opaque reference to a container owned by a foreign library.
// Handle 0 is the null handle and never valid.
type Handle uint64

// Library is the set of entry points a foreign library exposes for
// container handling.
type Library interface {
	// Box copies a NUL-terminated string into a new container.
	// The caller keeps ownership of ws; the foreign side must not retain it.
	Box(ctx context.Context, ws []byte) (Handle, error)

	// Length returns the payload length in bytes, excluding any terminator.
	Length(ctx context.Context, h Handle) (uint32, error)

	// Populate copies the payload into buf and returns the number of bytes
	// written. buf is sized by the caller from Length.
	Populate(ctx context.Context, h Handle, buf []byte) (uint32, error)

	// Release invalidates the handle. It must not be called twice.
	Release(ctx context.Context, h Handle) error
}

// Exchanger exposes the foreign side consuming and producing payloads.
type Exchanger interface {
	// SendString hands a NUL-terminated string to the foreign side and
	// returns the number of bytes it consumed before the terminator.
	SendString(ctx context.Context, ws []byte) (uint32, error)

	// SendContainer hands a container to the foreign side, which rewrites
	// its payload to ModifiedPrefix + payload + ModifiedSuffix.
	SendContainer(ctx context.Context, h Handle) error

	// ProduceContainer returns a container created by the foreign side that
	// holds ProducedDocument. The caller owns it.
	ProduceContainer(ctx context.Context) (Handle, error)
}

// Foreign is a loaded foreign library.
type Foreign interface {
	Library
	Exchanger

	// Live returns the number of containers that were boxed and not released.
	Live() int

	// Close unloads the library. Containers still live are leaked.
	Close(ctx context.Context) error
}

// Payloads used by the foreign side of every backend.
const (
	ProducedDocument = `{"generated":"foreign","scalar":1,"vector":[1,2,3],"string":"hello"}`
	ModifiedPrefix   = `{"modified":true,"payload":`
	ModifiedSuffix   = `}`
)
