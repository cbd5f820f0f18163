package marshal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/wippyai/jsonffi/errors"
)

// WireString is text followed by exactly one NUL terminator.
type WireString []byte

// Text returns the bytes before the terminator.
func (ws WireString) Text() []byte {
	if i := bytes.IndexByte(ws, 0); i >= 0 {
		return ws[:i]
	}
	return ws
}

// Len returns the length of the text, excluding the terminator.
func (ws WireString) Len() int {
	return len(ws.Text())
}

func (ws WireString) String() string {
	return string(ws.Text())
}

// EncodeToWireString serializes v as JSON and appends the terminator.
func EncodeToWireString(v any) (WireString, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(preserveFloats(v)); err != nil {
		return nil, errors.Encoding(fmt.Sprintf("%T", v), err)
	}

	// Encode terminates with a newline; reuse its slot for the NUL.
	out := buf.Bytes()
	out[len(out)-1] = 0
	if i := bytes.IndexByte(out[:len(out)-1], 0); i >= 0 {
		return nil, errors.EmbeddedNUL(i)
	}
	return WireString(out), nil
}

// EncodeString wraps raw text as a WireString. The text must be valid UTF-8
// without NUL bytes.
func EncodeString(s string) (WireString, error) {
	if i := bytes.IndexByte([]byte(s), 0); i >= 0 {
		return nil, errors.EmbeddedNUL(i)
	}
	if !utf8.ValidString(s) {
		return nil, errors.New(errors.PhaseEncode, errors.KindEncoding).
			Detail("text is not valid UTF-8").Build()
	}
	out := make([]byte, len(s)+1)
	copy(out, s)
	return WireString(out), nil
}

// DecodeFromWireString parses the JSON text before the terminator.
func DecodeFromWireString(ws WireString) (any, error) {
	return decodeJSON(ws.Text())
}
