package native

import (
	"go.uber.org/zap"

	"github.com/wippyai/jsonffi"
)

type options struct {
	log      *zap.Logger
	produced string
	prefix   string
	suffix   string
}

// Option configures a Library.
type Option func(*options)

// WithLogger sets the logger used for lifecycle events.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithProduced replaces the document returned by ProduceContainer.
func WithProduced(doc string) Option {
	return func(o *options) { o.produced = doc }
}

func buildOptions(opts []Option) options {
	o := options{
		log:      zap.NewNop(),
		produced: jsonffi.ProducedDocument,
		prefix:   jsonffi.ModifiedPrefix,
		suffix:   jsonffi.ModifiedSuffix,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

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
