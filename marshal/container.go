package marshal

import (
	"context"
	"runtime"

	"go.uber.org/zap"

	"github.com/wippyai/jsonffi"
	"github.com/wippyai/jsonffi/errors"
)

// State is the ownership state of a Container.
type State uint8

const (
	Unbound State = iota
	Bound
	Released
)

func (s State) String() string {
	switch s {
	case Unbound:
		return "unbound"
	case Bound:
		return "bound"
	case Released:
		return "released"
	default:
		return "unknown"
	}
}

// noCopy lets go vet flag copies of a Container.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Container owns a handle to text held by a foreign library.
// It is not safe for concurrent use and must not be copied.
type Container struct {
	noCopy noCopy

	lib    jsonffi.Library
	log    *zap.Logger
	handle jsonffi.Handle
	state  State
}

func newContainer(lib jsonffi.Library, log *zap.Logger, h jsonffi.Handle) *Container {
	c := &Container{lib: lib, log: log, handle: h, state: Bound}
	runtime.SetFinalizer(c, (*Container).finalize)
	return c
}

func (c *Container) finalize() {
	if c.state == Bound && c.log != nil {
		c.log.Warn("container garbage collected without release",
			zap.Uint64("handle", uint64(c.handle)))
	}
}

func (c *Container) checkLive(op string) {
	if c.state == Released {
		panic(errors.UseAfterRelease(op, uint64(c.handle)))
	}
}

func (c *Container) bound(op string) (jsonffi.Handle, error) {
	c.checkLive(op)
	if c.state != Bound || c.lib == nil {
		return 0, errors.New(errors.PhaseForeign, errors.KindInvalidInput).
			Op(op).Detail("container is not bound").Build()
	}
	return c.handle, nil
}

// Handle returns the foreign handle, or 0 for an unbound container.
func (c *Container) Handle() jsonffi.Handle {
	c.checkLive("handle")
	return c.handle
}

// State returns the ownership state.
func (c *Container) State() State {
	return c.state
}

// Release returns the container to the foreign library. The container is
// Released afterwards even when the library reports a failure.
func (c *Container) Release(ctx context.Context) error {
	c.checkLive("release")
	if c.state == Unbound {
		c.state = Released
		return nil
	}

	c.state = Released
	runtime.SetFinalizer(c, nil)
	err := c.lib.Release(ctx, c.handle)
	if c.log != nil {
		c.log.Debug("container released", zap.Uint64("handle", uint64(c.handle)), zap.Error(err))
	}
	return err
}

// Bytes copies the container's payload into a buffer sized to the reported
// length. A populate that writes any other amount is a foreign_call error.
func (c *Container) Bytes(ctx context.Context) ([]byte, error) {
	h, err := c.bound("populate_string")
	if err != nil {
		return nil, err
	}

	n, err := c.lib.Length(ctx, h)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	written, err := c.lib.Populate(ctx, h, buf)
	if err != nil {
		return nil, err
	}
	if written != n {
		return nil, errors.ShortWrite("populate_string", uint64(h), n, written)
	}
	return buf, nil
}
