package ffmpeg

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/grafika-go/camcorder/pkg/codec"
	"github.com/grafika-go/camcorder/pkg/graphics"
	"github.com/grafika-go/camcorder/pkg/logger"
	"github.com/grafika-go/camcorder/pkg/media"
	"github.com/grafika-go/camcorder/pkg/monitoring"
)

// microsecond time base for video packets
var usTimeBase = astiav.NewRational(1, 1_000_000)

type videoEncoder struct {
	format codec.Format
	name   string
	out    *codec.OutputQueue
	log    *logger.Logger

	mu       sync.Mutex
	ctx      *astiav.CodecContext
	sws      *astiav.SoftwareScaleContext
	src      *astiav.Frame
	dst      *astiav.Frame
	pkt      *astiav.Packet
	started  bool
	eos      bool
	released bool
}

func findVideoEncoder(names []string) *astiav.Codec {
	for _, name := range names {
		if c := astiav.FindEncoderByName(name); c != nil {
			return c
		}
	}
	return astiav.FindEncoder(astiav.CodecIDH264)
}

func newVideoEncoder(format codec.Format, names []string, log *logger.Logger) (*videoEncoder, error) {
	c := findVideoEncoder(names)
	if c == nil {
		return nil, fmt.Errorf("%w: h264", codec.ErrNoEncoder)
	}
	ctx := astiav.AllocCodecContext(c)
	if ctx == nil {
		return nil, errors.New("alloc h264 codec context")
	}
	ctx.SetWidth(format.Width)
	ctx.SetHeight(format.Height)
	ctx.SetPixelFormat(astiav.PixelFormatYuv420P)
	ctx.SetTimeBase(usTimeBase)
	ctx.SetFramerate(astiav.NewRational(format.FrameRate, 1))
	ctx.SetBitRate(int64(format.BitRate))
	ctx.SetGopSize(format.FrameRate * format.IFrameInterval)
	ctx.SetMaxBFrames(0)
	ctx.SetFlags(ctx.Flags().Add(astiav.CodecContextFlagGlobalHeader))

	opts := astiav.NewDictionary()
	defer opts.Free()
	flags := astiav.NewDictionaryFlags()
	_ = opts.Set("profile", "baseline", flags)
	if c.Name() == "libx264" {
		_ = opts.Set("preset", "veryfast", flags)
		_ = opts.Set("tune", "zerolatency", flags)
	}

	if err := ctx.Open(c, opts); err != nil {
		ctx.Free()
		return nil, fmt.Errorf("open %v: %w", c.Name(), err)
	}

	extra, err := extraData(ctx)
	if err != nil {
		ctx.Free()
		return nil, err
	}
	sps, pps, err := parameterSets(extra)
	if err != nil {
		ctx.Free()
		return nil, fmt.Errorf("%v extradata: %w", c.Name(), err)
	}
	format.CSD = [][]byte{sps, pps}

	log.Info().Msgf("video encoder %v %vx%v@%v %vbps", c.Name(), format.Width, format.Height,
		format.FrameRate, format.BitRate)

	return &videoEncoder{
		format: format,
		name:   c.Name(),
		out:    codec.NewOutputQueue(),
		log:    log,
		ctx:    ctx,
		pkt:    astiav.AllocPacket(),
	}, nil
}

func (e *videoEncoder) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return codec.ErrReleased
	}
	if e.started {
		return nil
	}
	w, h := e.format.Width, e.format.Height
	sws, err := astiav.CreateSoftwareScaleContext(w, h, astiav.PixelFormatRgba, w, h, astiav.PixelFormatYuv420P,
		astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBilinear))
	if err != nil {
		return fmt.Errorf("scale context: %w", err)
	}
	e.sws = sws
	if e.src, err = newImageFrame(w, h, astiav.PixelFormatRgba); err != nil {
		return err
	}
	if e.dst, err = newImageFrame(w, h, astiav.PixelFormatYuv420P); err != nil {
		return err
	}
	e.started = true
	// the parameter sets are known right after open
	e.out.Push(codec.Output{Event: codec.FormatChanged})
	return nil
}

func newImageFrame(w, h int, pf astiav.PixelFormat) (*astiav.Frame, error) {
	f := astiav.AllocFrame()
	f.SetWidth(w)
	f.SetHeight(h)
	f.SetPixelFormat(pf)
	if err := f.AllocBuffer(1); err != nil {
		f.Free()
		return nil, fmt.Errorf("frame buffer: %w", err)
	}
	return f, nil
}

func (e *videoEncoder) Dequeue(timeout time.Duration) (codec.Output, error) {
	e.mu.Lock()
	started := e.started
	e.mu.Unlock()
	if !started {
		return codec.Output{}, codec.ErrNotStarted
	}
	return e.out.Pop(timeout), nil
}

func (e *videoEncoder) OutputFormat() codec.Format { return e.format }

func (e *videoEncoder) InputSurface() media.FrameSink { return (*videoInput)(e) }

func (e *videoEncoder) SignalEndOfInputStream() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return codec.ErrNotStarted
	}
	if e.eos {
		return nil
	}
	e.eos = true
	if err := e.ctx.SendFrame(nil); err != nil && !errors.Is(err, astiav.ErrEof) {
		return fmt.Errorf("flush %v: %w", e.name, err)
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
	e.out.Push(codec.Output{Event: codec.BufferAvailable, Info: codec.BufferInfo{Flags: codec.FlagEndOfStream}})
	return nil
}

func (e *videoEncoder) toUs(pts int64) int64 { return pts }

func (e *videoEncoder) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started = false
	return nil
}

func (e *videoEncoder) Release() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return nil
	}
	e.released = true
	if e.sws != nil {
		e.sws.Free()
	}
	if e.src != nil {
		e.src.Free()
	}
	if e.dst != nil {
		e.dst.Free()
	}
	e.pkt.Free()
	e.ctx.Free()
	return nil
}

// videoInput is the input surface of the encoder.
type videoInput videoEncoder

func (in *videoInput) Size() (int, int) { return in.format.Width, in.format.Height }

// QueueFrame converts the image to YUV and encodes it.
func (in *videoInput) QueueFrame(img *image.RGBA, ptsNs int64) error {
	e := (*videoEncoder)(in)
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return codec.ErrNotStarted
	}
	if e.eos {
		return errors.New("frame after end of stream")
	}

	pix := img.Pix
	if img.Stride != 4*e.format.Width {
		tight := image.NewRGBA(image.Rect(0, 0, e.format.Width, e.format.Height))
		graphics.Copy(tight, img)
		pix = tight.Pix
	}
	if err := e.src.MakeWritable(); err != nil {
		return err
	}
	if err := e.src.Data().SetBytes(pix, 1); err != nil {
		return fmt.Errorf("rgba frame: %w", err)
	}
	if err := e.dst.MakeWritable(); err != nil {
		return err
	}
	if err := e.sws.ScaleFrame(e.src, e.dst); err != nil {
		return fmt.Errorf("scale: %w", err)
	}
	e.dst.SetPts(ptsNs / 1000)
	drain := func() error {
		_, err := receive(e.ctx, e.pkt, e.out, e.toUs)
		return err
	}
	dropped, err := send(func() error { return e.ctx.SendFrame(e.dst) }, drain)
	if err != nil {
		return err
	}
	if dropped {
		monitoring.FramesDropped.WithLabelValues("encoder").Inc()
		e.log.Warn().Msgf("video encoder is full, frame at %v dropped", e.dst.Pts())
	}
	return drain()
}
