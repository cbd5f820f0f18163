package engine

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/jsonffi"
	"github.com/wippyai/jsonffi/errors"
	"github.com/wippyai/jsonffi/guest"
)

// WazeroEngine loads container libraries into a wazero runtime
type WazeroEngine struct {
	runtime wazero.Runtime
}

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	// 256 = 16MB, 1024 = 64MB, 4096 = 256MB
	MemoryLimitPages uint32

	// CloseOnContextDone aborts guest calls when their context is canceled.
	CloseOnContextDone bool
}

// NewWazeroEngine creates a new wazero-based engine
func NewWazeroEngine(ctx context.Context) (*WazeroEngine, error) {
	return NewWazeroEngineWithConfig(ctx, nil)
}

// NewWazeroEngineWithConfig creates a new engine with custom configuration
func NewWazeroEngineWithConfig(ctx context.Context, cfg *Config) (*WazeroEngine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()

	if cfg != nil {
		if cfg.MemoryLimitPages > 0 {
			if cfg.MemoryLimitPages > 65536 {
				return nil, errors.InvalidConfig(
					fmt.Sprintf("memory limit %d pages exceeds 65536", cfg.MemoryLimitPages), nil)
			}
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.CloseOnContextDone {
			runtimeCfg = runtimeCfg.WithCloseOnContextDone(true)
		}
	}

	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	return &WazeroEngine{runtime: runtime}, nil
}

// LoadModule compiles a container library and checks that it exports every
// entry point with the expected core signature.
func (e *WazeroEngine) LoadModule(ctx context.Context, wasmBytes []byte) (*WazeroModule, error) {
	if len(wasmBytes) == 0 {
		return nil, errors.InvalidInput(errors.PhaseLoad, "empty module")
	}

	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, errors.Load("compile failed", err)
	}

	if err := checkExports(compiled.Name(), compiled.ExportedFunctions(), compiled.ExportedMemories()); err != nil {
		compiled.Close(ctx)
		return nil, err
	}

	return &WazeroModule{
		runtime:  e.runtime,
		compiled: compiled,
	}, nil
}

// Open loads and instantiates a library on a dedicated runtime. Closing the
// instance closes the runtime.
func Open(ctx context.Context, wasmBytes []byte, cfg *Config) (*WazeroInstance, error) {
	eng, err := NewWazeroEngineWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	mod, err := eng.LoadModule(ctx, wasmBytes)
	if err != nil {
		eng.Close(ctx)
		return nil, err
	}
	inst, err := mod.Instantiate(ctx)
	if err != nil {
		eng.Close(ctx)
		return nil, err
	}
	inst.owner = eng
	return inst, nil
}

func (e *WazeroEngine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// WazeroModule is a compiled container library
type WazeroModule struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
}

// ExportNames returns the names of the exported functions.
func (m *WazeroModule) ExportNames() []string {
	defs := m.compiled.ExportedFunctions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	return names
}

func (m *WazeroModule) Instantiate(ctx context.Context) (*WazeroInstance, error) {
	// anonymous for parallel instantiation
	modConfig := wazero.NewModuleConfig().WithName("")

	instance, err := m.runtime.InstantiateModule(ctx, m.compiled, modConfig)
	if err != nil {
		return nil, errors.Instantiation(err)
	}

	live := instance.ExportedGlobal(guest.ExportLive)
	if live == nil {
		instance.Close(ctx)
		return nil, errors.NewMissingExportsError(m.compiled.Name(), []string{guest.ExportLive})
	}

	inst := &WazeroInstance{
		instance: instance,
		memory:   &WazeroMemory{mem: instance.Memory()},
		live:     live,
		funcs:    make(map[string]api.Function, len(guest.Signatures)),
		stackBuf: make([]uint64, 4),
	}
	for _, sig := range guest.Signatures {
		inst.funcs[sig.Name] = instance.ExportedFunction(sig.Name)
	}
	inst.alloc = &wazeroAllocator{
		allocFn:  inst.funcs[guest.ExportAlloc],
		freeFn:   inst.funcs[guest.ExportFree],
		stackBuf: inst.stackBuf,
	}
	return inst, nil
}

// WazeroInstance is a running container library. Calls are serialized, so
// an instance may be shared between goroutines.
type WazeroInstance struct {
	instance api.Module
	memory   *WazeroMemory
	live     api.Global
	funcs    map[string]api.Function
	alloc    *wazeroAllocator
	owner    *WazeroEngine
	stackBuf []uint64
	mu       sync.Mutex
}

var _ jsonffi.Foreign = (*WazeroInstance)(nil)

// MemorySize returns the current linear memory size in bytes.
func (i *WazeroInstance) MemorySize() uint32 {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.memory == nil {
		return 0
	}
	return i.memory.Size()
}

// call invokes an entry point and returns its i32 result. Callers hold mu.
func (i *WazeroInstance) call(ctx context.Context, name string, h jsonffi.Handle, args ...uint64) (int32, error) {
	if i.instance == nil {
		return 0, errors.ForeignCall(name, uint64(h), fmt.Errorf("instance closed"))
	}
	fn := i.funcs[name]
	n := copy(i.stackBuf, args)
	if n == 0 {
		n = 1
	}
	if err := fn.CallWithStack(ctx, i.stackBuf[:n]); err != nil {
		return 0, errors.ForeignCall(name, uint64(h), err)
	}
	return api.DecodeI32(i.stackBuf[0]), nil
}

func handleArg(op string, h jsonffi.Handle) (uint64, error) {
	if h == 0 || h > math.MaxUint32 {
		return 0, errors.New(errors.PhaseForeign, errors.KindInvalidInput).
			Op(op).Handle(uint64(h)).Detail("handle out of range").Build()
	}
	return uint64(h), nil
}

// withString copies ws into guest memory for the duration of fn.
func (i *WazeroInstance) withString(ctx context.Context, op string, ws []byte, fn func(ptr uint32) error) error {
	if len(ws) == 0 || ws[len(ws)-1] != 0 {
		return errors.New(errors.PhaseForeign, errors.KindInvalidInput).
			Op(op).Detail("string is not NUL-terminated").Build()
	}
	if i.instance == nil {
		return errors.ForeignCall(op, 0, fmt.Errorf("instance closed"))
	}

	size := uint32(len(ws))
	ptr, err := i.alloc.Alloc(ctx, size)
	if err != nil {
		return errors.ForeignCall(op, 0, err)
	}
	defer i.alloc.Free(ctx, ptr, size)

	if err := i.memory.Write(ptr, ws); err != nil {
		return errors.ForeignCall(op, 0, err)
	}
	return fn(ptr)
}

func (i *WazeroInstance) Box(ctx context.Context, ws []byte) (jsonffi.Handle, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	var h jsonffi.Handle
	err := i.withString(ctx, guest.ExportBox, ws, func(ptr uint32) error {
		res, err := i.call(ctx, guest.ExportBox, 0, uint64(ptr))
		if err != nil {
			return err
		}
		if res == 0 {
			return errors.NullHandle(guest.ExportBox)
		}
		h = jsonffi.Handle(uint32(res))
		return nil
	})
	return h, err
}

func (i *WazeroInstance) Length(ctx context.Context, h jsonffi.Handle) (uint32, error) {
	arg, err := handleArg(guest.ExportLength, h)
	if err != nil {
		return 0, err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	res, err := i.call(ctx, guest.ExportLength, h, arg)
	if err != nil {
		return 0, err
	}
	if res < 0 {
		return 0, errors.Status(guest.ExportLength, uint64(h), res)
	}
	return uint32(res), nil
}

func (i *WazeroInstance) Populate(ctx context.Context, h jsonffi.Handle, buf []byte) (uint32, error) {
	arg, err := handleArg(guest.ExportPopulate, h)
	if err != nil {
		return 0, err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if i.instance == nil {
		return 0, errors.ForeignCall(guest.ExportPopulate, uint64(h), fmt.Errorf("instance closed"))
	}
	size := uint32(len(buf))
	dst, err := i.alloc.Alloc(ctx, size)
	if err != nil {
		return 0, errors.ForeignCall(guest.ExportPopulate, uint64(h), err)
	}
	defer i.alloc.Free(ctx, dst, size)

	res, err := i.call(ctx, guest.ExportPopulate, h, arg, uint64(dst))
	if err != nil {
		return 0, err
	}
	if res < 0 {
		return 0, errors.Status(guest.ExportPopulate, uint64(h), res)
	}

	written := uint32(res)
	if written > size {
		return 0, errors.ShortWrite(guest.ExportPopulate, uint64(h), size, written)
	}
	data, err := i.memory.Read(dst, written)
	if err != nil {
		return 0, errors.ForeignCall(guest.ExportPopulate, uint64(h), err)
	}
	copy(buf, data)
	return written, nil
}

func (i *WazeroInstance) Release(ctx context.Context, h jsonffi.Handle) error {
	arg, err := handleArg(guest.ExportRelease, h)
	if err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	res, err := i.call(ctx, guest.ExportRelease, h, arg)
	if err != nil {
		return err
	}
	if res != 0 {
		return errors.Status(guest.ExportRelease, uint64(h), res)
	}
	return nil
}

func (i *WazeroInstance) SendString(ctx context.Context, ws []byte) (uint32, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	var n uint32
	err := i.withString(ctx, guest.ExportSendString, ws, func(ptr uint32) error {
		res, err := i.call(ctx, guest.ExportSendString, 0, uint64(ptr))
		if err != nil {
			return err
		}
		if res < 0 {
			return errors.Status(guest.ExportSendString, 0, res)
		}
		n = uint32(res)
		return nil
	})
	return n, err
}

func (i *WazeroInstance) SendContainer(ctx context.Context, h jsonffi.Handle) error {
	arg, err := handleArg(guest.ExportSendContainer, h)
	if err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	res, err := i.call(ctx, guest.ExportSendContainer, h, arg)
	if err != nil {
		return err
	}
	if res != 0 {
		return errors.Status(guest.ExportSendContainer, uint64(h), res)
	}
	return nil
}

func (i *WazeroInstance) ProduceContainer(ctx context.Context) (jsonffi.Handle, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	res, err := i.call(ctx, guest.ExportProduce, 0)
	if err != nil {
		return 0, err
	}
	if res == 0 {
		return 0, errors.NullHandle(guest.ExportProduce)
	}
	return jsonffi.Handle(uint32(res)), nil
}

// Live returns the guest's count of unreleased containers.
func (i *WazeroInstance) Live() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.live == nil {
		return 0
	}
	return int(api.DecodeI32(i.live.Get()))
}

func (i *WazeroInstance) Close(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if n := i.liveLocked(); n > 0 {
		Logger().Warn("closing library with live containers", zap.Int("live", n))
	}

	var firstErr error
	if i.instance != nil {
		if err := i.instance.Close(ctx); err != nil {
			firstErr = err
		}
		i.instance = nil
	}
	if i.owner != nil {
		if err := i.owner.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		i.owner = nil
	}
	// Clear references to help GC
	i.funcs = nil
	i.memory = nil
	i.live = nil
	i.alloc = nil
	return firstErr
}

func (i *WazeroInstance) liveLocked() int {
	if i.live == nil {
		return 0
	}
	return int(api.DecodeI32(i.live.Get()))
}

// wazeroAllocator drives the guest's alloc and free exports. It shares the
// instance stack buffer, so callers hold the instance lock.
type wazeroAllocator struct {
	allocFn  api.Function
	freeFn   api.Function
	stackBuf []uint64
}

func (a *wazeroAllocator) Alloc(ctx context.Context, size uint32) (uint32, error) {
	if a.allocFn == nil {
		return 0, fmt.Errorf("no allocator available")
	}

	a.stackBuf[0] = uint64(size)
	if err := a.allocFn.CallWithStack(ctx, a.stackBuf[:1]); err != nil {
		return 0, err
	}
	ptr := uint32(a.stackBuf[0])
	if ptr == 0 {
		return 0, fmt.Errorf("guest out of memory allocating %d bytes", size)
	}
	return ptr, nil
}

func (a *wazeroAllocator) Free(ctx context.Context, ptr, size uint32) {
	if a.freeFn == nil || ptr == 0 {
		return
	}

	a.stackBuf[0] = uint64(ptr)
	a.stackBuf[1] = uint64(size)
	if err := a.freeFn.CallWithStack(ctx, a.stackBuf[:2]); err != nil {
		Logger().Warn("Free: failed to call free",
			zap.Uint32("ptr", ptr),
			zap.Uint32("size", size),
			zap.Error(err))
	}
}

// WazeroMemory wraps wazero memory with bounds-checked access
type WazeroMemory struct {
	mem api.Memory
}

func (m *WazeroMemory) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, fmt.Errorf("read out of bounds: offset=%d, length=%d", offset, length)
	}
	return data, nil
}

func (m *WazeroMemory) Write(offset uint32, data []byte) error {
	ok := m.mem.Write(offset, data)
	if !ok {
		return fmt.Errorf("write out of bounds: offset=%d, length=%d", offset, len(data))
	}
	return nil
}

func (m *WazeroMemory) Size() uint32 {
	if m.mem == nil {
		return 0
	}
	return m.mem.Size()
}
