// Package codectest provides deterministic in-memory encoders.
//
// Every input produces one output buffer. Outputs can be held back to
// mimic encoder latency, they are all released on end of stream.
package codectest

import (
	"encoding/binary"
	"errors"
	"image"
	"sync"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/grafika-go/camcorder/pkg/codec"
	"github.com/grafika-go/camcorder/pkg/media"
)

// SPS and PPS of a 1920x1080 baseline stream.
var (
	SPS = []byte{
		0x67, 0x42, 0xc0, 0x28, 0xd9, 0x00, 0x78, 0x02,
		0x27, 0xe5, 0x84, 0x00, 0x00, 0x03, 0x00, 0x04,
		0x00, 0x00, 0x03, 0x00, 0xf0, 0x3c, 0x60, 0xc9,
		0x20,
	}
	PPS = []byte{0x08}
)

var ErrEndOfStream = errors.New("input after end of stream")

type Options struct {
	// Delay is the number of outputs held back until end of stream.
	Delay int
	// CodecConfig emits a codec config buffer right after the format.
	CodecConfig bool
	// KeyInterval marks every n-th video output as a key frame.
	KeyInterval int
	// Gate, when set, makes every video input wait for a value.
	Gate chan struct{}
	// VideoErr and AudioErr fail the encoder creation.
	VideoErr error
	AudioErr error
}

type Factory struct {
	opts Options

	mu    sync.Mutex
	video []*Encoder
	audio []*Encoder
}

func NewFactory(opts Options) *Factory { return &Factory{opts: opts} }

func (f *Factory) NewVideoEncoder(format codec.Format) (codec.VideoEncoder, error) {
	if f.opts.VideoErr != nil {
		return nil, f.opts.VideoErr
	}
	if format.MIME != codec.MimeH264 {
		return nil, codec.ErrNoEncoder
	}
	format.CSD = [][]byte{SPS, PPS}
	e := newEncoder(format, f.opts)
	f.mu.Lock()
	f.video = append(f.video, e)
	f.mu.Unlock()
	return e, nil
}

func (f *Factory) NewAudioEncoder(format codec.Format) (codec.AudioEncoder, error) {
	if f.opts.AudioErr != nil {
		return nil, f.opts.AudioErr
	}
	if format.MIME != codec.MimeAAC {
		return nil, codec.ErrNoEncoder
	}
	asc := mpeg4audio.AudioSpecificConfig{
		Type:         mpeg4audio.ObjectTypeAACLC,
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
	}
	b, err := asc.Marshal()
	if err != nil {
		return nil, err
	}
	format.CSD = [][]byte{b}
	e := newEncoder(format, f.opts)
	f.mu.Lock()
	f.audio = append(f.audio, e)
	f.mu.Unlock()
	return e, nil
}

// Video returns the last video encoder made.
func (f *Factory) Video() *Encoder { return last(&f.mu, f.video) }

// Audio returns the last audio encoder made.
func (f *Factory) Audio() *Encoder { return last(&f.mu, f.audio) }

func last(mu *sync.Mutex, l []*Encoder) *Encoder {
	mu.Lock()
	defer mu.Unlock()
	if len(l) == 0 {
		return nil
	}
	return l[len(l)-1]
}

type Encoder struct {
	format codec.Format
	opts   Options
	out    *codec.OutputQueue

	mu         sync.Mutex
	started    bool
	stopped    bool
	released   bool
	eos        bool
	formatSent bool
	held       []codec.Output
	inputs     []int64
	lastPts    int64
}

func newEncoder(format codec.Format, opts Options) *Encoder {
	return &Encoder{format: format, opts: opts, out: codec.NewOutputQueue()}
}

func (e *Encoder) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return codec.ErrReleased
	}
	e.started = true
	return nil
}

func (e *Encoder) Dequeue(timeout time.Duration) (codec.Output, error) {
	e.mu.Lock()
	started := e.started && !e.stopped
	e.mu.Unlock()
	if !started {
		return codec.Output{}, codec.ErrNotStarted
	}
	return e.out.Pop(timeout), nil
}

func (e *Encoder) OutputFormat() codec.Format { return e.format }

func (e *Encoder) Stop() error {
	e.mu.Lock()
	e.stopped = true
	e.mu.Unlock()
	return nil
}

func (e *Encoder) Release() error {
	e.mu.Lock()
	e.released = true
	e.mu.Unlock()
	return nil
}

func (e *Encoder) InputSurface() media.FrameSink { return surface{e} }

func (e *Encoder) SignalEndOfInputStream() error { return e.endOfStream() }

func (e *Encoder) QueueInput(pcm []byte, ptsUs int64, flags codec.BufferFlag) error {
	if flags.Has(codec.FlagEndOfStream) {
		return e.endOfStream()
	}
	return e.input(ptsUs, append([]byte(nil), pcm...))
}

func (e *Encoder) input(ptsUs int64, payload []byte) error {
	if e.format.IsVideo() && e.opts.Gate != nil {
		<-e.opts.Gate
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started || e.stopped {
		return codec.ErrNotStarted
	}
	if e.eos {
		return ErrEndOfStream
	}

	if !e.formatSent {
		e.formatSent = true
		e.out.Push(codec.Output{Event: codec.FormatChanged})
		if e.opts.CodecConfig {
			csd := append(append([]byte{0, 0, 0, 1}, SPS...), append([]byte{0, 0, 0, 1}, PPS...)...)
			e.out.Push(codec.Output{Event: codec.BufferAvailable, Data: csd,
				Info: codec.BufferInfo{Size: len(csd), Flags: codec.FlagCodecConfig}})
		}
	}

	var flags codec.BufferFlag
	n := len(e.inputs)
	if e.format.IsVideo() && (n == 0 || (e.opts.KeyInterval > 0 && n%e.opts.KeyInterval == 0)) {
		flags |= codec.FlagKeyFrame
	}
	e.inputs = append(e.inputs, ptsUs)
	e.lastPts = ptsUs

	data := payload
	if e.format.IsVideo() {
		// an IDR or non-IDR slice carrying the input index
		nal := byte(0x41)
		if flags.Has(codec.FlagKeyFrame) {
			nal = 0x65
		}
		data = binary.BigEndian.AppendUint32([]byte{0, 0, 0, 1, nal}, uint32(n))
	}
	e.held = append(e.held, codec.Output{Event: codec.BufferAvailable, Data: data,
		Info: codec.BufferInfo{Size: len(data), PresentationTimeUs: ptsUs, Flags: flags}})
	for len(e.held) > e.opts.Delay {
		e.out.Push(e.held[0])
		e.held = e.held[1:]
	}
	return nil
}

func (e *Encoder) endOfStream() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started || e.stopped {
		return codec.ErrNotStarted
	}
	if e.eos {
		return nil
	}
	e.eos = true
	for _, o := range e.held {
		e.out.Push(o)
	}
	e.held = nil
	e.out.Push(codec.Output{Event: codec.BufferAvailable,
		Info: codec.BufferInfo{PresentationTimeUs: e.lastPts, Flags: codec.FlagEndOfStream}})
	return nil
}

// Inputs returns presentation times of everything queued so far, in microseconds.
func (e *Encoder) Inputs() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int64(nil), e.inputs...)
}

func (e *Encoder) Stopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped
}

func (e *Encoder) Released() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.released
}

func (e *Encoder) EndOfStream() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.eos
}

type surface struct{ e *Encoder }

func (s surface) Size() (int, int) { return s.e.format.Width, s.e.format.Height }

func (s surface) QueueFrame(img *image.RGBA, ptsNs int64) error {
	if img == nil {
		return errors.New("nil frame")
	}
	return s.e.input(ptsNs/1000, nil)
}
