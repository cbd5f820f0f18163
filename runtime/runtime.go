package runtime

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/wippyai/jsonffi"
	"github.com/wippyai/jsonffi/config"
	"github.com/wippyai/jsonffi/engine"
	"github.com/wippyai/jsonffi/errors"
	"github.com/wippyai/jsonffi/guest"
	"github.com/wippyai/jsonffi/marshal"
	"github.com/wippyai/jsonffi/memlib"
	"github.com/wippyai/jsonffi/native"
)

// Runtime owns one foreign library and the marshaller bound to it. Its
// exchanges serialize through the library, and Close unloads it.
type Runtime struct {
	lib jsonffi.Foreign
	m   *marshal.Marshaller
	log *zap.Logger
	cfg config.Config
}

type options struct {
	log     *zap.Logger
	foreign jsonffi.Foreign
	module  []byte
}

// Option configures a Runtime.
type Option func(*options)

// WithLogger sets the logger passed to the marshaller and the backend.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithForeign uses lib instead of opening the configured backend. The
// Runtime takes ownership and closes lib.
func WithForeign(lib jsonffi.Foreign) Option {
	return func(o *options) { o.foreign = lib }
}

// WithModule supplies the container library binary for the wasm backend.
func WithModule(bin []byte) Option {
	return func(o *options) { o.module = bin }
}

// New opens the backend selected by cfg.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	lib := o.foreign
	if lib == nil {
		var err error
		lib, err = open(ctx, cfg, o)
		if err != nil {
			return nil, err
		}
	}

	o.log.Debug("runtime ready", zap.String("backend", string(cfg.Backend)))
	return &Runtime{
		lib: lib,
		m:   marshal.New(lib, marshal.WithLogger(o.log)),
		log: o.log,
		cfg: cfg,
	}, nil
}

func open(ctx context.Context, cfg config.Config, o options) (jsonffi.Foreign, error) {
	switch cfg.Backend {
	case config.BackendWasm:
		bin := o.module
		if bin == nil && cfg.Module != "" {
			data, err := os.ReadFile(cfg.Module)
			if err != nil {
				return nil, errors.Load("read module "+cfg.Module, err)
			}
			bin = data
		}
		if bin == nil {
			bin = guest.Module()
		}
		engine.SetLogger(o.log)
		return engine.Open(ctx, bin, &engine.Config{
			MemoryLimitPages:   cfg.MemoryLimitPages,
			CloseOnContextDone: cfg.CloseOnContextDone,
		})
	case config.BackendNative:
		return native.Open(native.WithLogger(o.log))
	case config.BackendMemory:
		return memlib.New(memlib.WithLogger(o.log)), nil
	default:
		return nil, errors.NotFound(errors.PhaseLoad, "backend", string(cfg.Backend))
	}
}

// Marshaller returns the marshaller bound to the backend.
func (r *Runtime) Marshaller() *marshal.Marshaller {
	return r.m
}

// Foreign returns the backend.
func (r *Runtime) Foreign() jsonffi.Foreign {
	return r.lib
}

// Config returns the configuration the runtime was opened with.
func (r *Runtime) Config() config.Config {
	return r.cfg
}

// Live returns the number of containers the backend still holds.
func (r *Runtime) Live() int {
	return r.lib.Live()
}

// Close closes the backend. Leaked containers are logged.
func (r *Runtime) Close(ctx context.Context) error {
	if n := r.lib.Live(); n > 0 {
		r.log.Warn("containers leaked", zap.Int("live", n))
	}
	return r.lib.Close(ctx)
}
