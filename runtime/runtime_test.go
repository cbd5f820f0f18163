package runtime

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/wippyai/jsonffi"
	"github.com/wippyai/jsonffi/config"
	"github.com/wippyai/jsonffi/errors"
	"github.com/wippyai/jsonffi/guest"
	"github.com/wippyai/jsonffi/memlib"
	"github.com/wippyai/jsonffi/native"
)

var scenario = map[string]any{
	"Generated in Go": true,
	"scalar":          1,
	"vector":          []any{1, 2, 3},
	"string":          "hello",
}

func backendConfigs() []config.Config {
	var out []config.Config
	for _, b := range []config.Backend{config.BackendWasm, config.BackendMemory, config.BackendNative} {
		if b == config.BackendNative && !native.Available {
			continue
		}
		cfg := config.Default()
		cfg.Backend = b
		out = append(out, cfg)
	}
	return out
}

func newRuntime(t *testing.T, cfg config.Config, opts ...Option) *Runtime {
	t.Helper()
	ctx := context.Background()
	rt, err := New(ctx, cfg, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { rt.Close(ctx) })
	return rt
}

func TestRuntime_Scenario(t *testing.T) {
	for _, cfg := range backendConfigs() {
		for _, release := range []bool{true, false} {
			cfg.Release = release
			name := string(cfg.Backend)
			if !release {
				name += "/explicit-release"
			}
			t.Run(name, func(t *testing.T) {
				ctx := context.Background()
				rt := newRuntime(t, cfg)

				got, err := rt.RoundTrip(ctx, scenario)
				if err != nil {
					t.Fatalf("RoundTrip failed: %v", err)
				}
				if !reflect.DeepEqual(got, scenario) {
					t.Errorf("RoundTrip = %#v", got)
				}

				if _, err := rt.Send(ctx, scenario); err != nil {
					t.Errorf("Send failed: %v", err)
				}

				mod, err := rt.Transform(ctx, scenario)
				if err != nil {
					t.Fatalf("Transform failed: %v", err)
				}
				want := map[string]any{"modified": true, "payload": scenario}
				if !reflect.DeepEqual(mod, want) {
					t.Errorf("Transform = %#v", mod)
				}

				prod, err := rt.Produce(ctx)
				if err != nil {
					t.Fatalf("Produce failed: %v", err)
				}
				if m, ok := prod.(map[string]any); !ok || m["generated"] != "foreign" {
					t.Errorf("Produce = %#v", prod)
				}

				if rt.Live() != 0 {
					t.Errorf("Live = %d after scenario", rt.Live())
				}
			})
		}
	}
}

func TestRuntime_SendMismatch(t *testing.T) {
	lib := memlib.New(memlib.WithFaults(memlib.Faults{MiscountSend: true}))
	rt := newRuntime(t, config.Default(), WithForeign(lib))

	_, err := rt.Send(context.Background(), []int{1, 2})
	if !stderrors.Is(err, errors.ErrForeignCall) {
		t.Fatalf("expected foreign call error, got %v", err)
	}
}

func TestRuntime_TransformFailureReleases(t *testing.T) {
	lib := memlib.New()
	rt := newRuntime(t, config.Default(), WithForeign(lib))

	lib.SetFaults(memlib.Faults{Corrupt: func(b []byte) []byte {
		for i := range b {
			b[i] = '{'
		}
		return b
	}})
	_, err := rt.Transform(context.Background(), 1)
	if !stderrors.Is(err, errors.ErrDecode) {
		t.Fatalf("expected decode error, got %v", err)
	}
	if lib.Live() != 0 {
		t.Errorf("Live = %d", lib.Live())
	}
}

func TestRuntime_ProduceFailure(t *testing.T) {
	lib := memlib.New(memlib.WithFaults(memlib.Faults{FailBox: true}))
	rt := newRuntime(t, config.Default(), WithForeign(lib))

	if _, err := rt.Produce(context.Background()); !stderrors.Is(err, errors.ErrForeignCall) {
		t.Fatalf("expected foreign call error, got %v", err)
	}
}

func TestRuntime_RepeatedExchanges(t *testing.T) {
	ctx := context.Background()
	for _, cfg := range backendConfigs() {
		t.Run(string(cfg.Backend), func(t *testing.T) {
			rt := newRuntime(t, cfg)
			doc := map[string]any{"blob": strings.Repeat("y", 1<<20)}
			for i := 0; i < 40; i++ {
				if _, err := rt.RoundTrip(ctx, doc); err != nil {
					t.Fatalf("round trip %d failed with live=%d: %v", i, rt.Live(), err)
				}
				if _, err := rt.Transform(ctx, doc); err != nil {
					t.Fatalf("transform %d failed with live=%d: %v", i, rt.Live(), err)
				}
			}
			if rt.Live() != 0 {
				t.Errorf("Live = %d, want 0", rt.Live())
			}
		})
	}
}

func TestRuntime_ModuleFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guest.wasm")
	if err := os.WriteFile(path, guest.Module(), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.Module = path

	rt := newRuntime(t, cfg)
	if _, err := rt.RoundTrip(context.Background(), "x"); err != nil {
		t.Fatalf("RoundTrip failed: %v", err)
	}
}

func TestRuntime_ModuleErrors(t *testing.T) {
	ctx := context.Background()

	cfg := config.Default()
	cfg.Module = filepath.Join(t.TempDir(), "missing.wasm")
	if _, err := New(ctx, cfg); err == nil {
		t.Error("missing module should fail")
	}

	bin, _ := guest.Build(guest.DefaultPayloads())
	if _, err := New(ctx, config.Default(), WithModule(bin[:len(bin)-3])); err == nil {
		t.Error("truncated module should fail")
	}

	bad := config.Default()
	bad.Backend = "jvm"
	if _, err := New(ctx, bad); err == nil {
		t.Error("invalid config should fail")
	}
}

func TestRuntime_CustomModule(t *testing.T) {
	bin, _ := guest.Build(guest.Payloads{Produced: `{"generated":"custom"}`, Prefix: `[`, Suffix: `]`})
	rt := newRuntime(t, config.Default(), WithModule(bin))

	got, err := rt.Produce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, map[string]any{"generated": "custom"}) {
		t.Errorf("Produce = %#v", got)
	}
	out, err := rt.Transform(context.Background(), 7)
	if err != nil || !reflect.DeepEqual(out, []any{7}) {
		t.Errorf("Transform = %#v, %v", out, err)
	}
}

func TestRuntime_Accessors(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = config.BackendMemory
	rt := newRuntime(t, cfg)

	if rt.Marshaller() == nil || rt.Config().Backend != config.BackendMemory {
		t.Error("accessors not wired")
	}
	var _ jsonffi.Foreign = rt.Foreign()
}

func TestRuntime_CloseWithLeak(t *testing.T) {
	ctx := context.Background()
	lib := memlib.New()
	rt, err := New(ctx, config.Default(), WithForeign(lib))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := rt.Marshaller().EncodeToContainer(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if rt.Live() != 1 {
		t.Fatalf("Live = %d", rt.Live())
	}
	if err := rt.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if lib.Live() != 0 {
		t.Errorf("Close should drop leaked containers")
	}
}
