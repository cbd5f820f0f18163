//go:build cgo

package native

/*
#include <stdint.h>
#include <stdlib.h>
#include <string.h>

#define JF_LIVE 0x434F4E54u

typedef struct {
	char    *data;
	uint32_t len;
	uint32_t magic;
} jf_container;

static jf_container *jf_box(const char *s) {
	if (s == NULL) {
		return NULL;
	}
	size_t n = strlen(s);
	if (n > UINT32_MAX) {
		return NULL;
	}
	jf_container *c = malloc(sizeof(jf_container));
	if (c == NULL) {
		return NULL;
	}
	c->data = malloc(n + 1);
	if (c->data == NULL) {
		free(c);
		return NULL;
	}
	memcpy(c->data, s, n + 1);
	c->len = (uint32_t)n;
	c->magic = JF_LIVE;
	return c;
}

static int32_t jf_length(jf_container *c) {
	if (c == NULL || c->magic != JF_LIVE) {
		return -1;
	}
	return (int32_t)c->len;
}

static int32_t jf_populate(jf_container *c, char *dst) {
	if (c == NULL || c->magic != JF_LIVE) {
		return -1;
	}
	memcpy(dst, c->data, c->len);
	return (int32_t)c->len;
}

static int32_t jf_release(jf_container *c) {
	if (c == NULL || c->magic != JF_LIVE) {
		return -1;
	}
	c->magic = 0;
	free(c->data);
	free(c);
	return 0;
}

static int32_t jf_send_string(const char *s) {
	if (s == NULL) {
		return -1;
	}
	return (int32_t)strlen(s);
}

static int32_t jf_send_container(jf_container *c, const char *prefix, const char *suffix) {
	if (c == NULL || c->magic != JF_LIVE) {
		return -1;
	}
	size_t p = strlen(prefix), s = strlen(suffix);
	size_t n = p + c->len + s;
	char *data = malloc(n + 1);
	if (data == NULL) {
		return -2;
	}
	memcpy(data, prefix, p);
	memcpy(data + p, c->data, c->len);
	memcpy(data + p + c->len, suffix, s + 1);
	free(c->data);
	c->data = data;
	c->len = (uint32_t)n;
	return 0;
}
*/
import "C"

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"unsafe"

	"go.uber.org/zap"

	"github.com/wippyai/jsonffi"
	"github.com/wippyai/jsonffi/errors"
	"github.com/wippyai/jsonffi/resource"
)

// Available reports whether the native library was compiled in.
const Available = true

type cContainer struct {
	ptr *C.jf_container
}

// Drop frees a container that was never released.
func (c *cContainer) Drop() {
	if c.ptr != nil {
		C.jf_release(c.ptr)
		c.ptr = nil
	}
}

// Library is the cgo container library.
type Library struct {
	table    *resource.Table[*cContainer]
	log      *zap.Logger
	produced *C.char
	prefix   *C.char
	suffix   *C.char
	mu       sync.Mutex
	closed   bool
}

var _ jsonffi.Foreign = (*Library)(nil)

// Open creates a library instance.
func Open(opts ...Option) (*Library, error) {
	o := buildOptions(opts)
	for _, s := range []string{o.produced, o.prefix, o.suffix} {
		if strings.IndexByte(s, 0) >= 0 {
			return nil, errors.InvalidInput(errors.PhaseLoad, "payload contains NUL")
		}
	}
	return &Library{
		table:    resource.NewTable[*cContainer](),
		log:      o.log,
		produced: C.CString(o.produced),
		prefix:   C.CString(o.prefix),
		suffix:   C.CString(o.suffix),
	}, nil
}

func cstr(ws []byte) *C.char {
	return (*C.char)(unsafe.Pointer(&ws[0]))
}

func terminated(op string, ws []byte) error {
	if bytes.IndexByte(ws, 0) < 0 {
		return errors.New(errors.PhaseForeign, errors.KindInvalidInput).
			Op(op).Detail("string is not NUL-terminated").Build()
	}
	return nil
}

func (l *Library) insert(op string, ptr *C.jf_container) (jsonffi.Handle, error) {
	if ptr == nil {
		return 0, errors.NullHandle(op)
	}
	h, err := l.table.Insert(&cContainer{ptr: ptr})
	if err != nil {
		C.jf_release(ptr)
		return 0, errors.ForeignCall(op, 0, err)
	}
	l.log.Debug("container boxed", zap.Uint64("handle", uint64(h)))
	return jsonffi.Handle(h), nil
}

func (l *Library) get(op string, h jsonffi.Handle) (*cContainer, error) {
	c, ok := l.table.Get(resource.Handle(h))
	if !ok {
		return nil, errors.Status(op, uint64(h), -1)
	}
	return c, nil
}

func (l *Library) Box(_ context.Context, ws []byte) (jsonffi.Handle, error) {
	if err := terminated(opBox, ws); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, errors.ForeignCall(opBox, 0, resource.ErrClosed)
	}
	return l.insert(opBox, C.jf_box(cstr(ws)))
}

func (l *Library) Length(_ context.Context, h jsonffi.Handle) (uint32, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, err := l.get(opLength, h)
	if err != nil {
		return 0, err
	}
	n := int32(C.jf_length(c.ptr))
	if n < 0 {
		return 0, errors.Status(opLength, uint64(h), n)
	}
	return uint32(n), nil
}

func (l *Library) Populate(_ context.Context, h jsonffi.Handle, buf []byte) (uint32, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, err := l.get(opPopulate, h)
	if err != nil {
		return 0, err
	}
	n := int32(C.jf_length(c.ptr))
	if n < 0 {
		return 0, errors.Status(opPopulate, uint64(h), n)
	}
	if int(n) > len(buf) {
		return 0, errors.ShortWrite(opPopulate, uint64(h), uint32(len(buf)), uint32(n))
	}
	if n == 0 {
		return 0, nil
	}

	written := int32(C.jf_populate(c.ptr, (*C.char)(unsafe.Pointer(&buf[0]))))
	if written < 0 {
		return 0, errors.Status(opPopulate, uint64(h), written)
	}
	return uint32(written), nil
}

func (l *Library) Release(_ context.Context, h jsonffi.Handle) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.table.Remove(resource.Handle(h))
	if !ok {
		return errors.Status(opRelease, uint64(h), -1)
	}
	status := int32(C.jf_release(c.ptr))
	c.ptr = nil
	if status != 0 {
		return errors.Status(opRelease, uint64(h), status)
	}
	l.log.Debug("container released", zap.Uint64("handle", uint64(h)))
	return nil
}

func (l *Library) SendString(_ context.Context, ws []byte) (uint32, error) {
	if err := terminated(opSendString, ws); err != nil {
		return 0, err
	}
	n := int32(C.jf_send_string(cstr(ws)))
	if n < 0 {
		return 0, errors.Status(opSendString, 0, n)
	}
	return uint32(n), nil
}

func (l *Library) SendContainer(_ context.Context, h jsonffi.Handle) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, err := l.get(opSendContainer, h)
	if err != nil {
		return err
	}
	if status := int32(C.jf_send_container(c.ptr, l.prefix, l.suffix)); status != 0 {
		return errors.Status(opSendContainer, uint64(h), status)
	}
	return nil
}

func (l *Library) ProduceContainer(_ context.Context) (jsonffi.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, errors.ForeignCall(opProduce, 0, resource.ErrClosed)
	}
	return l.insert(opProduce, C.jf_box(l.produced))
}

// Live returns the number of unreleased containers.
func (l *Library) Live() int {
	return l.table.Len()
}

// Close frees every live container and the library's payloads.
func (l *Library) Close(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true

	if n := l.table.Len(); n > 0 {
		l.log.Warn("closing library with live containers", zap.Int("live", n))
	}
	err := l.table.Close()
	for _, p := range []*C.char{l.produced, l.prefix, l.suffix} {
		C.free(unsafe.Pointer(p))
	}
	l.produced, l.prefix, l.suffix = nil, nil, nil
	return err
}
