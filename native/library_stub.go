//go:build !cgo

package native

import (
	"context"

	"github.com/wippyai/jsonffi"
	"github.com/wippyai/jsonffi/errors"
)

// Available reports whether the native library was compiled in.
const Available = false

// Library is unavailable without cgo.
type Library struct{}

var _ jsonffi.Foreign = (*Library)(nil)

func unsupported() *errors.Error {
	return errors.Unsupported(errors.PhaseLoad, "native library requires cgo")
}

// Open always fails without cgo.
func Open(opts ...Option) (*Library, error) {
	_ = buildOptions(opts)
	return nil, unsupported()
}

func (*Library) Box(context.Context, []byte) (jsonffi.Handle, error) { return 0, unsupported() }

func (*Library) Length(context.Context, jsonffi.Handle) (uint32, error) { return 0, unsupported() }

func (*Library) Populate(context.Context, jsonffi.Handle, []byte) (uint32, error) {
	return 0, unsupported()
}

func (*Library) Release(context.Context, jsonffi.Handle) error { return unsupported() }

func (*Library) SendString(context.Context, []byte) (uint32, error) { return 0, unsupported() }

func (*Library) SendContainer(context.Context, jsonffi.Handle) error { return unsupported() }

func (*Library) ProduceContainer(context.Context) (jsonffi.Handle, error) { return 0, unsupported() }

func (*Library) Live() int { return 0 }

func (*Library) Close(context.Context) error { return nil }
