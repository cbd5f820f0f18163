package runtime

import (
	"context"
	stderrors "errors"

	"github.com/wippyai/jsonffi/errors"
	"github.com/wippyai/jsonffi/marshal"
)

func (r *Runtime) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.CallTimeout > 0 {
		return context.WithTimeout(ctx, r.cfg.CallTimeout)
	}
	return context.WithCancel(ctx)
}

// decode reads c and releases it, through the decode call when
// Config.Release is set and explicitly otherwise.
func (r *Runtime) decode(ctx context.Context, c *marshal.Container) (any, error) {
	if r.cfg.Release {
		return r.m.DecodeFromContainer(ctx, c, true)
	}
	v, err := r.m.DecodeFromContainer(ctx, c, false)
	if rerr := c.Release(ctx); rerr != nil {
		return nil, stderrors.Join(err, rerr)
	}
	return v, err
}

// RoundTrip boxes v into a container and decodes it back.
func (r *Runtime) RoundTrip(ctx context.Context, v any) (any, error) {
	ctx, cancel := r.callContext(ctx)
	defer cancel()

	c, err := r.m.EncodeToContainer(ctx, v)
	if err != nil {
		return nil, err
	}
	return r.decode(ctx, c)
}

// Send hands v to the foreign side as a WireString and checks that it
// consumed the whole text.
func (r *Runtime) Send(ctx context.Context, v any) (int, error) {
	ctx, cancel := r.callContext(ctx)
	defer cancel()

	ws, err := marshal.EncodeToWireString(v)
	if err != nil {
		return 0, err
	}
	n, err := r.lib.SendString(ctx, ws)
	if err != nil {
		return 0, err
	}
	if int(n) != ws.Len() {
		return int(n), errors.New(errors.PhaseForeign, errors.KindForeignCall).
			Op("send_string").Value(n).
			Detail("consumed %d bytes, sent %d", n, ws.Len()).Build()
	}
	return int(n), nil
}

// Transform sends v in a container, lets the foreign side rewrite it and
// decodes the result.
func (r *Runtime) Transform(ctx context.Context, v any) (any, error) {
	ctx, cancel := r.callContext(ctx)
	defer cancel()

	c, err := r.m.EncodeToContainer(ctx, v)
	if err != nil {
		return nil, err
	}
	if err := r.lib.SendContainer(ctx, c.Handle()); err != nil {
		return nil, stderrors.Join(err, c.Release(ctx))
	}
	return r.decode(ctx, c)
}

// Produce decodes a container created by the foreign side.
func (r *Runtime) Produce(ctx context.Context) (any, error) {
	ctx, cancel := r.callContext(ctx)
	defer cancel()

	h, err := r.lib.ProduceContainer(ctx)
	if err != nil {
		return nil, err
	}
	c, err := r.m.Adopt(h)
	if err != nil {
		return nil, err
	}
	return r.decode(ctx, c)
}
