package memlib

import (
	"bytes"
	"context"
	stderrors "errors"
	"testing"

	"github.com/wippyai/jsonffi"
	"github.com/wippyai/jsonffi/errors"
	"github.com/wippyai/jsonffi/resource"
)

func cstr(s string) []byte {
	return append([]byte(s), 0)
}

func contents(t *testing.T, l *Library, h jsonffi.Handle) string {
	t.Helper()
	ctx := context.Background()
	n, err := l.Length(ctx, h)
	if err != nil {
		t.Fatalf("Length failed: %v", err)
	}
	buf := make([]byte, n)
	if _, err := l.Populate(ctx, h, buf); err != nil {
		t.Fatalf("Populate failed: %v", err)
	}
	return string(buf)
}

func TestLibrary_BoxRoundTrip(t *testing.T) {
	ctx := context.Background()
	l := New()

	h, err := l.Box(ctx, cstr(`{"a":[1,2]}`))
	if err != nil {
		t.Fatalf("Box failed: %v", err)
	}
	if h == 0 {
		t.Fatal("Box returned null handle")
	}
	if got := contents(t, l, h); got != `{"a":[1,2]}` {
		t.Errorf("contents = %q", got)
	}
	if l.Live() != 1 {
		t.Errorf("Live = %d, want 1", l.Live())
	}
	if err := l.Release(ctx, h); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if l.Live() != 0 {
		t.Errorf("Live = %d, want 0", l.Live())
	}
}

func TestLibrary_BoxStopsAtNUL(t *testing.T) {
	ctx := context.Background()
	l := New()

	h, err := l.Box(ctx, []byte("abc\x00def\x00"))
	if err != nil {
		t.Fatal(err)
	}
	if got := contents(t, l, h); got != "abc" {
		t.Errorf("contents = %q, want abc", got)
	}
}

func TestLibrary_BoxCopies(t *testing.T) {
	ctx := context.Background()
	l := New()

	ws := cstr("xyz")
	h, _ := l.Box(ctx, ws)
	ws[0] = 'Q'
	if got := contents(t, l, h); got != "xyz" {
		t.Errorf("container aliases caller buffer: %q", got)
	}
}

func TestLibrary_Unterminated(t *testing.T) {
	ctx := context.Background()
	l := New()

	if _, err := l.Box(ctx, []byte("{}")); !stderrors.Is(err, &errors.Error{Kind: errors.KindInvalidInput}) {
		t.Errorf("Box: expected invalid input, got %v", err)
	}
	if _, err := l.SendString(ctx, nil); !stderrors.Is(err, &errors.Error{Kind: errors.KindInvalidInput}) {
		t.Errorf("SendString: expected invalid input, got %v", err)
	}
}

func TestLibrary_StaleHandle(t *testing.T) {
	ctx := context.Background()
	l := New()

	h1, _ := l.Box(ctx, cstr("1"))
	l.Release(ctx, h1)
	h2, _ := l.Box(ctx, cstr("2"))
	if h1 == h2 {
		t.Fatal("reused slot produced identical handle")
	}

	if err := l.Release(ctx, h1); !stderrors.Is(err, errors.ErrForeignCall) {
		t.Errorf("second Release: expected foreign call error, got %v", err)
	}
	if _, err := l.Length(ctx, h1); !stderrors.Is(err, errors.ErrForeignCall) {
		t.Errorf("Length on stale handle: expected foreign call error, got %v", err)
	}
	if got := contents(t, l, h2); got != "2" {
		t.Errorf("live container corrupted: %q", got)
	}
}

func TestLibrary_Exchange(t *testing.T) {
	ctx := context.Background()
	l := New()

	n, err := l.SendString(ctx, cstr("hello"))
	if err != nil || n != 5 {
		t.Errorf("SendString = %d, %v; want 5", n, err)
	}

	h, _ := l.Box(ctx, cstr(`[]`))
	if err := l.SendContainer(ctx, h); err != nil {
		t.Fatal(err)
	}
	if got, want := contents(t, l, h), jsonffi.ModifiedPrefix+`[]`+jsonffi.ModifiedSuffix; got != want {
		t.Errorf("modified = %q, want %q", got, want)
	}

	p, err := l.ProduceContainer(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got := contents(t, l, p); got != jsonffi.ProducedDocument {
		t.Errorf("produced = %q", got)
	}
}

func TestLibrary_Options(t *testing.T) {
	ctx := context.Background()
	l := New(WithProduced(`[0]`), WithWrapping("<", ">"), WithLogger(nil))

	p, _ := l.ProduceContainer(ctx)
	l.SendContainer(ctx, p)
	if got := contents(t, l, p); got != "<[0]>" {
		t.Errorf("contents = %q", got)
	}
}

func TestLibrary_Faults(t *testing.T) {
	ctx := context.Background()
	doc := `{"k":"value"}`

	tests := []struct {
		name   string
		faults Faults
		check  func(t *testing.T, l *Library, h jsonffi.Handle)
	}{
		{
			name:   "short write",
			faults: Faults{ShortWrite: 3},
			check: func(t *testing.T, l *Library, h jsonffi.Handle) {
				buf := make([]byte, len(doc))
				n, err := l.Populate(ctx, h, buf)
				if err != nil || n != uint32(len(doc)-3) {
					t.Errorf("Populate = %d, %v; want %d", n, err, len(doc)-3)
				}
			},
		},
		{
			name:   "long write",
			faults: Faults{LongWrite: 4},
			check: func(t *testing.T, l *Library, h jsonffi.Handle) {
				buf := make([]byte, len(doc))
				n, _ := l.Populate(ctx, h, buf)
				if n != uint32(len(doc)+4) {
					t.Errorf("Populate = %d, want %d", n, len(doc)+4)
				}
			},
		},
		{
			name:   "corrupt",
			faults: Faults{Corrupt: func(b []byte) []byte { return bytes.ToUpper(b) }},
			check: func(t *testing.T, l *Library, h jsonffi.Handle) {
				if got := contents(t, l, h); got != `{"K":"VALUE"}` {
					t.Errorf("contents = %q", got)
				}
			},
		},
		{
			name:   "fail release",
			faults: Faults{FailRelease: true},
			check: func(t *testing.T, l *Library, h jsonffi.Handle) {
				if err := l.Release(ctx, h); !stderrors.Is(err, errors.ErrForeignCall) {
					t.Errorf("expected foreign call error, got %v", err)
				}
				if l.Live() != 1 {
					t.Errorf("failed release dropped container")
				}
			},
		},
		{
			name:   "miscount send",
			faults: Faults{MiscountSend: true},
			check: func(t *testing.T, l *Library, _ jsonffi.Handle) {
				if n, _ := l.SendString(ctx, cstr(doc)); n != uint32(len(doc)-1) {
					t.Errorf("SendString = %d", n)
				}
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := New()
			h, err := l.Box(ctx, cstr(doc))
			if err != nil {
				t.Fatal(err)
			}
			l.SetFaults(tc.faults)
			tc.check(t, l, h)
		})
	}
}

func TestLibrary_FailBox(t *testing.T) {
	ctx := context.Background()
	l := New(WithFaults(Faults{FailBox: true}))

	if _, err := l.Box(ctx, cstr("1")); !stderrors.Is(err, errors.ErrForeignCall) {
		t.Errorf("Box: expected foreign call error, got %v", err)
	}
	if _, err := l.ProduceContainer(ctx); !stderrors.Is(err, errors.ErrForeignCall) {
		t.Errorf("ProduceContainer: expected foreign call error, got %v", err)
	}
}

func TestLibrary_Observer(t *testing.T) {
	ctx := context.Background()
	l := New()

	var events []resource.EventType
	stop := l.Subscribe(resource.ObserverFunc(func(e resource.Event) {
		events = append(events, e.Type)
	}))

	h, _ := l.Box(ctx, cstr("1"))
	l.Release(ctx, h)
	stop()
	h, _ = l.Box(ctx, cstr("2"))
	l.Release(ctx, h)

	if len(events) != 2 || events[0] != resource.EventCreated || events[1] != resource.EventReleased {
		t.Errorf("events = %v", events)
	}
}

func TestLibrary_Close(t *testing.T) {
	ctx := context.Background()
	l := New()

	h, _ := l.Box(ctx, cstr("1"))
	if err := l.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if l.Live() != 0 {
		t.Errorf("Live after Close = %d", l.Live())
	}
	if _, err := l.Length(ctx, h); err == nil {
		t.Error("Length after Close should fail")
	}
	if _, err := l.Box(ctx, cstr("2")); err == nil {
		t.Error("Box after Close should fail")
	}
}
