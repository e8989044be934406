package ffmpeg

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/grafika-go/camcorder/pkg/codec"
	"github.com/grafika-go/camcorder/pkg/logger"
	"github.com/grafika-go/camcorder/pkg/monitoring"
)

// audioEncoder cuts incoming 16-bit PCM into codec frames.
type audioEncoder struct {
	format codec.Format
	out    *codec.OutputQueue
	log    *logger.Logger

	mu         sync.Mutex
	ctx        *astiav.CodecContext
	swr        *astiav.SoftwareResampleContext
	in         *astiav.Frame
	enc        *astiav.Frame
	pkt        *astiav.Packet
	pcm        []byte
	frameBytes int
	nextPts    int64
	started    bool
	eos        bool
	released   bool
}

func channelLayout(channels int) astiav.ChannelLayout {
	if channels == 2 {
		return astiav.ChannelLayoutStereo
	}
	return astiav.ChannelLayoutMono
}

func newAudioEncoder(format codec.Format, log *logger.Logger) (*audioEncoder, error) {
	c := astiav.FindEncoder(astiav.CodecIDAac)
	if c == nil {
		return nil, fmt.Errorf("%w: aac", codec.ErrNoEncoder)
	}
	ctx := astiav.AllocCodecContext(c)
	if ctx == nil {
		return nil, errors.New("alloc aac codec context")
	}
	ctx.SetChannelLayout(channelLayout(format.Channels))
	ctx.SetSampleRate(format.SampleRate)
	if sfs := c.SampleFormats(); len(sfs) > 0 {
		ctx.SetSampleFormat(sfs[0])
	}
	ctx.SetTimeBase(astiav.NewRational(1, format.SampleRate))
	ctx.SetBitRate(int64(format.BitRate))
	ctx.SetProfile(astiav.ProfileAacLow)
	ctx.SetStrictStdCompliance(astiav.StrictStdComplianceExperimental)
	ctx.SetFlags(ctx.Flags().Add(astiav.CodecContextFlagGlobalHeader))

	if err := ctx.Open(c, nil); err != nil {
		ctx.Free()
		return nil, fmt.Errorf("open aac: %w", err)
	}
	extra, err := extraData(ctx)
	if err != nil {
		ctx.Free()
		return nil, err
	}
	format.CSD = [][]byte{extra}

	log.Info().Msgf("audio encoder %v %vHz x%v %vbps, %v samples per frame", c.Name(),
		format.SampleRate, format.Channels, format.BitRate, ctx.FrameSize())

	return &audioEncoder{
		format:     format,
		out:        codec.NewOutputQueue(),
		log:        log,
		ctx:        ctx,
		pkt:        astiav.AllocPacket(),
		frameBytes: ctx.FrameSize() * 2 * max(format.Channels, 1),
		nextPts:    -1,
	}, nil
}

func (e *audioEncoder) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return codec.ErrReleased
	}
	if e.started {
		return nil
	}

	samples := e.ctx.FrameSize()
	e.in = astiav.AllocFrame()
	e.in.SetSampleFormat(astiav.SampleFormatS16)
	e.in.SetChannelLayout(e.ctx.ChannelLayout())
	e.in.SetSampleRate(e.ctx.SampleRate())
	e.in.SetNbSamples(samples)
	if err := e.in.AllocBuffer(0); err != nil {
		return fmt.Errorf("pcm frame: %w", err)
	}
	e.enc = astiav.AllocFrame()
	e.enc.SetSampleFormat(e.ctx.SampleFormat())
	e.enc.SetChannelLayout(e.ctx.ChannelLayout())
	e.enc.SetSampleRate(e.ctx.SampleRate())
	e.enc.SetNbSamples(samples)
	if err := e.enc.AllocBuffer(0); err != nil {
		return fmt.Errorf("aac frame: %w", err)
	}
	e.swr = astiav.AllocSoftwareResampleContext()
	e.started = true
	e.out.Push(codec.Output{Event: codec.FormatChanged})
	return nil
}

func (e *audioEncoder) toUs(pts int64) int64 {
	return pts * 1_000_000 / int64(e.format.SampleRate)
}

func (e *audioEncoder) QueueInput(pcm []byte, ptsUs int64, flags codec.BufferFlag) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return codec.ErrNotStarted
	}
	if e.eos {
		return errors.New("input after end of stream")
	}
	if e.nextPts < 0 {
		e.nextPts = ptsUs * int64(e.format.SampleRate) / 1_000_000
	}

	e.pcm = append(e.pcm, pcm...)
	for len(e.pcm) >= e.frameBytes {
		if err := e.encode(e.pcm[:e.frameBytes]); err != nil {
			return err
		}
		e.pcm = e.pcm[e.frameBytes:]
	}

	if !flags.Has(codec.FlagEndOfStream) {
		return nil
	}
	e.eos = true
	if len(e.pcm) > 0 {
		tail := make([]byte, e.frameBytes)
		copy(tail, e.pcm)
		e.pcm = nil
		if err := e.encode(tail); err != nil {
			return err
		}
	}
	if err := e.ctx.SendFrame(nil); err != nil && !errors.Is(err, astiav.ErrEof) {
		return fmt.Errorf("flush aac: %w", err)
	}
	for {
		eof, err := receive(e.ctx, e.pkt, e.out, e.toUs)
		if err != nil {
			return err
		}
		if eof {
			break
		}
	}
	e.out.Push(codec.Output{Event: codec.BufferAvailable, Info: codec.BufferInfo{
		PresentationTimeUs: e.toUs(e.nextPts), Flags: codec.FlagEndOfStream}})
	return nil
}

func (e *audioEncoder) encode(pcm []byte) error {
	if err := e.in.MakeWritable(); err != nil {
		return err
	}
	if err := e.in.Data().SetBytes(pcm, 0); err != nil {
		return fmt.Errorf("pcm frame: %w", err)
	}
	if err := e.enc.MakeWritable(); err != nil {
		return err
	}
	if err := e.swr.ConvertFrame(e.in, e.enc); err != nil {
		return fmt.Errorf("resample: %w", err)
	}
	e.enc.SetPts(e.nextPts)
	e.nextPts += int64(e.ctx.FrameSize())
	drain := func() error {
		_, err := receive(e.ctx, e.pkt, e.out, e.toUs)
		return err
	}
	dropped, err := send(func() error { return e.ctx.SendFrame(e.enc) }, drain)
	if err != nil {
		return err
	}
	if dropped {
		monitoring.FramesDropped.WithLabelValues("encoder").Inc()
		e.log.Warn().Msgf("audio encoder is full, frame at %v dropped", e.enc.Pts())
	}
	return drain()
}

func (e *audioEncoder) Dequeue(timeout time.Duration) (codec.Output, error) {
	e.mu.Lock()
	started := e.started
	e.mu.Unlock()
	if !started {
		return codec.Output{}, codec.ErrNotStarted
	}
	return e.out.Pop(timeout), nil
}

func (e *audioEncoder) OutputFormat() codec.Format { return e.format }

func (e *audioEncoder) Stop() error {
	e.mu.Lock()
	e.started = false
	e.mu.Unlock()
	return nil
}

func (e *audioEncoder) Release() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return nil
	}
	e.released = true
	if e.swr != nil {
		e.swr.Free()
	}
	if e.in != nil {
		e.in.Free()
	}
	if e.enc != nil {
		e.enc.Free()
	}
	e.pkt.Free()
	e.ctx.Free()
	return nil
}
