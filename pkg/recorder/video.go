package recorder

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/grafika-go/camcorder/pkg/codec"
	"github.com/grafika-go/camcorder/pkg/config"
	"github.com/grafika-go/camcorder/pkg/graphics"
	"github.com/grafika-go/camcorder/pkg/logger"
	"github.com/grafika-go/camcorder/pkg/media"
	"github.com/grafika-go/camcorder/pkg/monitoring"
	"github.com/grafika-go/camcorder/pkg/thread"
)

// VideoPipeline draws camera frames into the input surface of an H.264
// encoder on its own worker and hands the output to the sink.
type VideoPipeline struct {
	dev     graphics.Device
	sink    *Sink
	factory codec.Factory
	conf    config.Video
	options

	looper  *thread.Looper
	state   media.StateVar
	dropped atomic.Int64
	dropLog *logger.Logger

	// worker owned
	ctx     graphics.Context
	surface graphics.Surface
	quad    graphics.Quad
	enc     codec.VideoEncoder
	tb      *media.Timebase

	stopOnce sync.Once
	stopErr  error
}

func NewVideoPipeline(dev graphics.Device, sink *Sink, factory codec.Factory, conf config.Video, opts ...Option) *VideoPipeline {
	p := VideoPipeline{dev: dev, sink: sink, factory: factory, conf: conf, options: newOptions("video", opts)}
	p.looper = thread.NewLooper("video", max(conf.Queue, 1), p.failed)
	p.dropLog = p.log.Sampled(100)
	return &p
}

// Start sets the pipeline up on its worker, share is the context
// owning tex.
func (p *VideoPipeline) Start(share graphics.Context, tex graphics.Texture, w, h int) error {
	if !p.state.CompareAndSwap(media.Idle, media.Starting) {
		return fmt.Errorf("video pipeline is %v", p.state.Load())
	}
	p.looper.Start()
	p.looper.Post(func() error { return p.setup(share, tex, w, h) })
	return nil
}

func (p *VideoPipeline) setup(share graphics.Context, tex graphics.Texture, w, h int) (err error) {
	if p.ctx, err = p.dev.NewContext(share); err != nil {
		return fmt.Errorf("video context: %w", err)
	}
	if p.enc, err = p.factory.NewVideoEncoder(codec.VideoFormat(w, h, p.conf)); err != nil {
		return fmt.Errorf("video encoder: %w", err)
	}
	if p.surface, err = p.ctx.NewEncoderSurface(p.enc.InputSurface()); err != nil {
		return fmt.Errorf("encoder surface: %w", err)
	}
	if err = p.surface.MakeCurrent(); err != nil {
		return err
	}
	if p.quad, err = p.ctx.NewQuad(p.flip, tex); err != nil {
		return err
	}
	if err = p.enc.Start(); err != nil {
		return fmt.Errorf("video encoder start: %w", err)
	}
	p.tb = media.NewTimebase(p.sink.Epoch())
	p.state.Store(media.Running)
	p.log.Info().Msgf("started %vx%v, flip %v", w, h, p.flip)
	return nil
}

func (p *VideoPipeline) failed(err error) {
	p.state.Store(media.Stopped)
	if rerr := p.release(); rerr != nil {
		p.log.Warn().Err(rerr).Msg("release")
	}
	p.fail(err)
}

func (p *VideoPipeline) Running() bool { return p.state.Load() == media.Running }

// Dropped is the number of frames skipped because the worker was behind.
func (p *VideoPipeline) Dropped() int64 { return p.dropped.Load() }

// RenderFrame queues the frame for encoding and never blocks.
// A frame that finds the queue full is dropped.
func (p *VideoPipeline) RenderFrame(f media.Frame) {
	if !p.Running() {
		return
	}
	if !p.looper.TryPost(func() error { return p.frame(f) }) {
		n := p.dropped.Add(1)
		monitoring.FramesDropped.WithLabelValues("video").Inc()
		p.dropLog.Debug().Msgf("encoder is behind, %v frames dropped", n)
	}
}

func (p *VideoPipeline) frame(f media.Frame) error {
	// released by finish or a failure
	if p.enc == nil {
		return nil
	}
	if err := drain(p.enc, media.Video, p.sink, false); err != nil {
		return err
	}
	// the camera has not produced a real frame yet
	if !f.Valid() {
		return nil
	}
	if err := p.surface.MakeCurrent(); err != nil {
		return err
	}
	if err := p.quad.Draw(media.Identity, f.Transform); err != nil {
		return err
	}
	if err := p.surface.SetPresentationTime(p.tb.PTS(f.Timestamp)); err != nil {
		return err
	}
	return p.surface.SwapBuffers()
}

// Stop signals the end of the stream and waits until every encoded
// frame has been handed to the sink.
func (p *VideoPipeline) Stop() error {
	p.stopOnce.Do(func() { p.stopErr = p.stop() })
	return p.stopErr
}

func (p *VideoPipeline) stop() error {
	if p.state.Load() == media.Idle {
		p.state.Store(media.Stopped)
		return nil
	}
	if p.state.Load() != media.Stopped {
		p.state.Store(media.Stopping)
	}
	p.looper.QuitWith(p.finish)
	err := p.looper.Join()
	p.state.Store(media.Stopped)
	if n := p.Dropped(); n > 0 {
		p.log.Info().Msgf("%v frames dropped", n)
	}
	return err
}

func (p *VideoPipeline) finish() error {
	if err := p.enc.SignalEndOfInputStream(); err != nil {
		return fmt.Errorf("video end of stream: %w", err)
	}
	if err := drain(p.enc, media.Video, p.sink, true); err != nil {
		return err
	}
	if err := p.enc.Stop(); err != nil {
		return err
	}
	return p.release()
}

// release frees worker owned objects, it runs on the worker.
func (p *VideoPipeline) release() error {
	var err error
	if p.quad != nil {
		p.quad.Release()
		p.quad = nil
	}
	if p.surface != nil {
		err = errors.Join(err, p.surface.Release())
		p.surface = nil
	}
	if p.ctx != nil {
		err = errors.Join(err, p.ctx.Release())
		p.ctx = nil
	}
	if p.enc != nil {
		err = errors.Join(err, p.enc.Release())
		p.enc = nil
	}
	return err
}
