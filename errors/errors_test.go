package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseForeign,
				Kind:   KindForeignCall,
				Op:     "populate_string",
				Handle: 0x40,
				Detail: "status -1",
			},
			contains: []string{"[foreign]", "foreign_call", "populate_string", "0x40", "status -1"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseDecode,
				Kind:  KindDecode,
			},
			contains: []string{"[decode]", "decode"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseEncode,
				Kind:   KindEncoding,
				Detail: "cannot encode chan int",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[encode]", "encoding", "chan int", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_OmitsZeroHandle(t *testing.T) {
	msg := NullHandle("box_string").Error()
	if strings.Contains(msg, "handle 0x") {
		t.Errorf("null handle error should not print a handle: %q", msg)
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := ForeignCall("box_string", 0, cause)

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is did not reach cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseForeign,
		Kind:  KindForeignCall,
		Op:    "string_length",
	}

	if !err.Is(&Error{Phase: PhaseForeign, Kind: KindForeignCall}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseDecode, Kind: KindForeignCall}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseForeign, Kind: KindDecode}) {
		t.Error("Is should not match different kind")
	}
	if !errors.Is(err, ErrForeignCall) {
		t.Error("errors.Is should match the kind sentinel")
	}
	if errors.Is(err, ErrDecode) {
		t.Error("errors.Is should not match another kind sentinel")
	}
}

func TestSentinelsThroughWrapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel *Error
	}{
		{"encoding", Encoding("chan int", errors.New("unsupported")), ErrEncoding},
		{"nul", EmbeddedNUL(3), ErrEncoding},
		{"decode", Decode(errors.New("eof"), []byte(`{"a":`)), ErrDecode},
		{"utf8", InvalidUTF8([]byte{0xff}), ErrDecode},
		{"null handle", NullHandle("produce_container"), ErrForeignCall},
		{"short write", ShortWrite("populate_string", 8, 10, 4), ErrForeignCall},
		{"status", Status("release_container", 8, -1), ErrForeignCall},
		{"use after release", UseAfterRelease("decode", 8), ErrUseAfterRelease},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := wrap(tt.err)
			if !errors.Is(wrapped, tt.sentinel) {
				t.Errorf("errors.Is(%v, %s) = false", wrapped, tt.sentinel.Kind)
			}
			var e *Error
			if !errors.As(wrapped, &e) {
				t.Fatal("errors.As failed")
			}
		})
	}
}

func wrap(err error) error {
	return errors.Join(errors.New("context"), err)
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseForeign, KindForeignCall).
		Op("populate_string").
		Handle(0x10).
		Value(42).
		Cause(cause).
		Detail("wrote %d of %d bytes", 4, 10).
		Build()

	if err.Phase != PhaseForeign {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseForeign)
	}
	if err.Kind != KindForeignCall {
		t.Errorf("Kind = %v, want %v", err.Kind, KindForeignCall)
	}
	if err.Op != "populate_string" {
		t.Errorf("Op = %v, want populate_string", err.Op)
	}
	if err.Handle != 0x10 {
		t.Errorf("Handle = %#x, want 0x10", err.Handle)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v, want 42", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "wrote 4 of 10 bytes" {
		t.Errorf("Detail = %v, want 'wrote 4 of 10 bytes'", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("Decode preview", func(t *testing.T) {
		long := []byte(strings.Repeat("x", 100))
		err := Decode(errors.New("bad"), long)
		if !strings.Contains(err.Detail, "...") {
			t.Errorf("Detail = %q, want truncated preview", err.Detail)
		}
		if got := Decode(nil, nil).Detail; !strings.Contains(got, "(empty)") {
			t.Errorf("Detail = %q, want (empty)", got)
		}
	})

	t.Run("ShortWrite", func(t *testing.T) {
		err := ShortWrite("populate_string", 1, 10, 4)
		if err.Value != uint32(4) {
			t.Errorf("Value = %v, want 4", err.Value)
		}
		if !strings.Contains(err.Detail, "10") {
			t.Errorf("Detail = %q, should contain reported length", err.Detail)
		}
	})

	t.Run("Signature", func(t *testing.T) {
		err := Signature("box_string", "(i32) -> (i32)", "(i64) -> (i32)")
		if err.Kind != KindSignature || err.Op != "box_string" {
			t.Errorf("got %+v", err)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		err := NotFound(PhaseLoad, "backend", "carrier-pigeon")
		if err.Kind != KindNotFound {
			t.Errorf("Kind = %v, want %v", err.Kind, KindNotFound)
		}
	})

	t.Run("InvalidConfig", func(t *testing.T) {
		cause := errors.New("toml")
		err := InvalidConfig("parse config", cause)
		if err.Phase != PhaseConfig || !errors.Is(err, cause) {
			t.Errorf("got %+v", err)
		}
	})
}

func TestMissingExportsError(t *testing.T) {
	err := NewMissingExportsError("guest", []string{"box_string", "release_container"})
	msg := err.Error()
	for _, s := range []string{"guest", "2 entry point(s)", "box_string", "release_container"} {
		if !strings.Contains(msg, s) {
			t.Errorf("message %q does not contain %q", msg, s)
		}
	}

	var target *MissingExportsError
	if !errors.As(wrap(err), &target) {
		t.Error("errors.As failed")
	}
	if !errors.Is(err, &MissingExportsError{}) {
		t.Error("errors.Is should match any MissingExportsError")
	}

	empty := NewMissingExportsError("", nil)
	if !strings.Contains(empty.Error(), "no exports") {
		t.Errorf("unexpected message %q", empty.Error())
	}
}
