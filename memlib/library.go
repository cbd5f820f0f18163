package memlib

import (
	"bytes"
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/jsonffi"
	"github.com/wippyai/jsonffi/errors"
	"github.com/wippyai/jsonffi/resource"
)

// Entry point names used in errors.
const (
	opBox           = "box_string"
	opLength        = "string_length"
	opPopulate      = "populate_string"
	opRelease       = "release_container"
	opSendString    = "send_string"
	opSendContainer = "send_container"
	opProduce       = "produce_container"
)

// Faults makes the library misbehave on purpose.
type Faults struct {
	// Corrupt rewrites the payload handed out by Populate.
	Corrupt func([]byte) []byte

	// ShortWrite makes Populate write and report this many bytes fewer
	// than Length.
	ShortWrite uint32

	// LongWrite makes Populate report this many bytes more than it wrote.
	LongWrite uint32

	// FailBox makes Box and ProduceContainer return the null handle.
	FailBox bool

	// FailRelease makes Release report a failure and keep the container.
	FailRelease bool

	// MiscountSend makes SendString report one byte fewer than it consumed.
	MiscountSend bool
}

type container struct {
	data []byte
}

// Library is a pure-Go container library.
type Library struct {
	table    *resource.Table[*container]
	log      *zap.Logger
	produced string
	prefix   string
	suffix   string
	faults   Faults
	mu       sync.Mutex
}

var _ jsonffi.Foreign = (*Library)(nil)

// Option configures a Library.
type Option func(*Library)

// WithFaults installs fault injection.
func WithFaults(f Faults) Option {
	return func(l *Library) { l.faults = f }
}

// WithProduced replaces the document returned by ProduceContainer.
func WithProduced(doc string) Option {
	return func(l *Library) { l.produced = doc }
}

// WithWrapping replaces the text SendContainer wraps payloads with.
func WithWrapping(prefix, suffix string) Option {
	return func(l *Library) {
		l.prefix = prefix
		l.suffix = suffix
	}
}

// WithLogger sets the logger used for lifecycle events.
func WithLogger(log *zap.Logger) Option {
	return func(l *Library) {
		if log != nil {
			l.log = log
		}
	}
}

// New creates an empty library.
func New(opts ...Option) *Library {
	l := &Library{
		table:    resource.NewTable[*container](),
		log:      zap.NewNop(),
		produced: jsonffi.ProducedDocument,
		prefix:   jsonffi.ModifiedPrefix,
		suffix:   jsonffi.ModifiedSuffix,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SetFaults replaces the active faults.
func (l *Library) SetFaults(f Faults) {
	l.mu.Lock()
	l.faults = f
	l.mu.Unlock()
}

// Subscribe registers an observer for container creation and release and
// returns a function that removes it.
func (l *Library) Subscribe(o resource.Observer) (unsubscribe func()) {
	return l.table.Subscribe(o)
}

// cstring returns the bytes before the first NUL.
func cstring(ws []byte) []byte {
	if i := bytes.IndexByte(ws, 0); i >= 0 {
		return ws[:i]
	}
	return ws
}

func terminated(op string, ws []byte) error {
	if bytes.IndexByte(ws, 0) < 0 {
		return errors.New(errors.PhaseForeign, errors.KindInvalidInput).
			Op(op).Detail("string is not NUL-terminated").Build()
	}
	return nil
}

func (l *Library) box(op string, text []byte) (jsonffi.Handle, error) {
	if l.faults.FailBox {
		return 0, errors.NullHandle(op)
	}
	data := make([]byte, len(text))
	copy(data, text)

	h, err := l.table.Insert(&container{data: data})
	if err != nil {
		return 0, errors.ForeignCall(op, 0, err)
	}
	l.log.Debug("container boxed", zap.Uint64("handle", uint64(h)), zap.Int("len", len(data)))
	return jsonffi.Handle(h), nil
}

func (l *Library) get(op string, h jsonffi.Handle) (*container, error) {
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
	return l.box(opBox, cstring(ws))
}

func (l *Library) Length(_ context.Context, h jsonffi.Handle) (uint32, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, err := l.get(opLength, h)
	if err != nil {
		return 0, err
	}
	return uint32(len(c.data)), nil
}

func (l *Library) Populate(_ context.Context, h jsonffi.Handle, buf []byte) (uint32, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, err := l.get(opPopulate, h)
	if err != nil {
		return 0, err
	}

	data := c.data
	if l.faults.Corrupt != nil {
		data = l.faults.Corrupt(append([]byte(nil), data...))
	}
	if s := l.faults.ShortWrite; s > 0 {
		if int(s) > len(data) {
			s = uint32(len(data))
		}
		data = data[:len(data)-int(s)]
	}

	n := copy(buf, data)
	return uint32(n) + l.faults.LongWrite, nil
}

func (l *Library) Release(_ context.Context, h jsonffi.Handle) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.faults.FailRelease {
		return errors.Status(opRelease, uint64(h), -2)
	}
	if _, ok := l.table.Remove(resource.Handle(h)); !ok {
		return errors.Status(opRelease, uint64(h), -1)
	}
	l.log.Debug("container released", zap.Uint64("handle", uint64(h)))
	return nil
}

func (l *Library) SendString(_ context.Context, ws []byte) (uint32, error) {
	if err := terminated(opSendString, ws); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	n := uint32(len(cstring(ws)))
	if l.faults.MiscountSend && n > 0 {
		n--
	}
	l.log.Debug("string received", zap.Uint32("len", n))
	return n, nil
}

func (l *Library) SendContainer(_ context.Context, h jsonffi.Handle) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, err := l.get(opSendContainer, h)
	if err != nil {
		return err
	}
	data := make([]byte, 0, len(l.prefix)+len(c.data)+len(l.suffix))
	data = append(data, l.prefix...)
	data = append(data, c.data...)
	data = append(data, l.suffix...)
	c.data = data
	return nil
}

func (l *Library) ProduceContainer(_ context.Context) (jsonffi.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.box(opProduce, []byte(l.produced))
}

// Live returns the number of unreleased containers.
func (l *Library) Live() int {
	return l.table.Len()
}

// Close discards every container. Later calls fail.
func (l *Library) Close(_ context.Context) error {
	if n := l.table.Len(); n > 0 {
		l.log.Warn("closing library with live containers", zap.Int("live", n))
	}
	return l.table.Close()
}
