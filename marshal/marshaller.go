package marshal

import (
	"context"
	stderrors "errors"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/wippyai/jsonffi"
	"github.com/wippyai/jsonffi/errors"
)

// Marshaller converts values to and from containers of one library.
type Marshaller struct {
	lib jsonffi.Library
	log *zap.Logger
}

// Option configures a Marshaller.
type Option func(*Marshaller)

// WithLogger sets the logger used for container lifecycle messages.
func WithLogger(log *zap.Logger) Option {
	return func(m *Marshaller) {
		if log != nil {
			m.log = log
		}
	}
}

// New creates a Marshaller backed by lib.
func New(lib jsonffi.Library, opts ...Option) *Marshaller {
	m := &Marshaller{lib: lib, log: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Library returns the underlying library.
func (m *Marshaller) Library() jsonffi.Library {
	return m.lib
}

func (m *Marshaller) box(ctx context.Context, ws WireString) (*Container, error) {
	h, err := m.lib.Box(ctx, ws)
	if err != nil {
		return nil, err
	}
	if h == 0 {
		return nil, errors.NullHandle("box_string")
	}
	m.log.Debug("container boxed", zap.Uint64("handle", uint64(h)), zap.Int("len", ws.Len()))
	return newContainer(m.lib, m.log, h), nil
}

// EncodeToContainer serializes v and boxes it into a new container.
func (m *Marshaller) EncodeToContainer(ctx context.Context, v any) (*Container, error) {
	ws, err := EncodeToWireString(v)
	if err != nil {
		return nil, err
	}
	return m.box(ctx, ws)
}

// BoxString boxes raw text without JSON encoding.
func (m *Marshaller) BoxString(ctx context.Context, s string) (*Container, error) {
	ws, err := EncodeString(s)
	if err != nil {
		return nil, err
	}
	return m.box(ctx, ws)
}

// Adopt takes ownership of a handle created by the foreign side.
func (m *Marshaller) Adopt(h jsonffi.Handle) (*Container, error) {
	if h == 0 {
		return nil, errors.NullHandle("adopt")
	}
	return newContainer(m.lib, m.log, h), nil
}

// extract reads the payload and, when asked, releases the container on every
// path. Errors from both steps are joined.
func (m *Marshaller) extract(ctx context.Context, c *Container, release bool, parse func([]byte) error) (err error) {
	c.checkLive("decode")
	if release {
		defer func() {
			if c.State() == Bound {
				if rerr := c.Release(ctx); rerr != nil {
					err = stderrors.Join(err, rerr)
				}
			}
		}()
	}

	data, err := c.Bytes(ctx)
	if err != nil {
		return err
	}
	return parse(data)
}

// DecodeFromContainer reads and parses the container's JSON payload.
// When release is true the container is released afterwards, also when
// reading or parsing fails.
func (m *Marshaller) DecodeFromContainer(ctx context.Context, c *Container, release bool) (any, error) {
	var v any
	err := m.extract(ctx, c, release, func(data []byte) error {
		var err error
		v, err = decodeJSON(data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// DecodeInto parses the container's JSON payload into out.
func (m *Marshaller) DecodeInto(ctx context.Context, c *Container, release bool, out any) error {
	return m.extract(ctx, c, release, func(data []byte) error {
		return decodeJSONInto(data, out)
	})
}

// Decode parses the container's JSON payload as a T.
func Decode[T any](ctx context.Context, m *Marshaller, c *Container, release bool) (T, error) {
	var out T
	if err := m.DecodeInto(ctx, c, release, &out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// UnboxString reads the container's payload as raw text.
func (m *Marshaller) UnboxString(ctx context.Context, c *Container, release bool) (string, error) {
	var s string
	err := m.extract(ctx, c, release, func(data []byte) error {
		if !utf8.Valid(data) {
			return errors.InvalidUTF8(data)
		}
		s = string(data)
		return nil
	})
	return s, err
}

// With encodes v into a container, runs fn and releases the container unless
// fn already did. The release also happens when fn panics.
func (m *Marshaller) With(ctx context.Context, v any, fn func(*Container) error) (err error) {
	c, err := m.EncodeToContainer(ctx, v)
	if err != nil {
		return err
	}
	defer func() {
		if c.State() == Bound {
			if rerr := c.Release(ctx); rerr != nil {
				err = stderrors.Join(err, fmt.Errorf("release after use: %w", rerr))
			}
		}
	}()
	return fn(c)
}
