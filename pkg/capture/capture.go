// Package capture reads microphone PCM on a dedicated thread.
package capture

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/grafika-go/camcorder/pkg/logger"
	"github.com/grafika-go/camcorder/pkg/media"
)

// Microphone is a blocking source of 16-bit little-endian PCM.
type Microphone interface {
	Start() error
	// Read blocks until a buffer is captured, Stop makes it return.
	Read(p []byte) (int, error)
	Stop() error
	BufferSize() int
	SampleRate() int
}

type options struct {
	sleep    time.Duration
	onError  func(error)
	log      *logger.Logger
	rate     int
	channels int
}

type Option func(*options)

// WithSleep sets the pause after every read.
func WithSleep(d time.Duration) Option { return func(o *options) { o.sleep = d } }

func WithOnError(fn func(error)) Option { return func(o *options) { o.onError = fn } }

func WithLogger(log *logger.Logger) Option { return func(o *options) { o.log = log } }

// WithRate sets the sample rate the listener expects. Microphones running
// at another rate are resampled.
func WithRate(rate, channels int) Option {
	return func(o *options) { o.rate, o.channels = rate, channels }
}

// Audio pumps microphone buffers into a listener. The listener is
// called on the capture thread and must copy what it keeps.
type Audio struct {
	mic      Microphone
	listener func([]byte)
	options

	running atomic.Bool
	done    chan struct{}
	reads   atomic.Int64

	// resampling state, capture thread only
	in    media.Samples
	frame *media.Buffer
	out   []byte
}

func New(mic Microphone, listener func([]byte), opts ...Option) *Audio {
	o := options{sleep: 5 * time.Millisecond, log: logger.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	o.log = o.log.Tag("capture")
	return &Audio{mic: mic, listener: listener, options: o}
}

func (a *Audio) Start() error {
	if !a.running.CompareAndSwap(false, true) {
		return errors.New("capture is running")
	}
	if err := a.mic.Start(); err != nil {
		a.running.Store(false)
		return fmt.Errorf("microphone: %w", err)
	}
	buf := make([]byte, a.mic.BufferSize())
	a.frame = nil
	if from := a.mic.SampleRate(); a.rate > 0 && from != a.rate {
		n := media.ResampledSize(len(buf)/2, a.channels, from, a.rate)
		a.frame = media.NewBuffer(max(n, 1))
		a.log.Info().Msgf("resampling %v Hz to %v Hz", from, a.rate)
	}
	a.done = make(chan struct{})
	a.log.Info().Msgf("capturing %v Hz, %v bytes per read", a.mic.SampleRate(), len(buf))
	go a.loop(buf)
	return nil
}

func (a *Audio) loop(buf []byte) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(a.done)

	for a.running.Load() {
		n, err := a.mic.Read(buf)
		if err != nil {
			if a.running.Load() {
				a.log.Error().Err(err).Msg("read")
				if a.onError != nil {
					a.onError(fmt.Errorf("microphone read: %w", err))
				}
			}
			return
		}
		if n > 0 && a.running.Load() {
			a.deliver(buf[:n])
			a.reads.Add(1)
		}
		if a.sleep > 0 {
			time.Sleep(a.sleep)
		}
	}
}

func (a *Audio) deliver(pcm []byte) {
	if a.frame == nil {
		a.listener(pcm)
		return
	}
	a.in = media.SamplesOf(a.in, pcm)
	size := media.ResampledSize(len(a.in), a.channels, a.mic.SampleRate(), a.rate)
	a.frame.Write(media.ResampleStretch(a.in, a.channels, size), func(s media.Samples) {
		a.out = s.AppendBytes(a.out[:0])
		a.listener(a.out)
	})
}

func (a *Audio) Running() bool { return a.running.Load() }

// Reads is the number of buffers handed to the listener.
func (a *Audio) Reads() int64 { return a.reads.Load() }

// Stop ends capture and waits for the capture thread.
func (a *Audio) Stop() error {
	if !a.running.CompareAndSwap(true, false) {
		return nil
	}
	err := a.mic.Stop()
	<-a.done
	a.log.Debug().Msgf("stopped after %v reads", a.Reads())
	return err
}
