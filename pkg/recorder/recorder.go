// Package recorder encodes rendered camera frames and microphone audio
// into one movie file, and optionally saves frames as images.
package recorder

import (
	"time"

	"github.com/grafika-go/camcorder/pkg/graphics"
	"github.com/grafika-go/camcorder/pkg/logger"
)

// DrainPoll is how long a final drain waits for each encoder output.
const DrainPoll = 10 * time.Millisecond

type options struct {
	log          *logger.Logger
	onError      func(error)
	flip         graphics.Flip
	pendingLimit int
}

type Option func(*options)

func WithLogger(log *logger.Logger) Option { return func(o *options) { o.log = log } }

// WithOnError sets the handler of fatal pipeline errors.
// It is called from the pipeline worker.
func WithOnError(fn func(error)) Option { return func(o *options) { o.onError = fn } }

func WithFlip(flip graphics.Flip) Option { return func(o *options) { o.flip = flip } }

// WithPendingLimit bounds the samples a sink holds before its muxer starts.
// Values below 1 keep the default.
func WithPendingLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.pendingLimit = n
		}
	}
}

func newOptions(name string, opts []Option) options {
	o := options{log: logger.Default(), pendingLimit: 512}
	for _, opt := range opts {
		opt(&o)
	}
	o.log = o.log.Tag(name)
	return o
}

func (o options) fail(err error) {
	o.log.Error().Err(err).Msg("pipeline failed")
	if o.onError != nil {
		o.onError(err)
	}
}
